// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSoftLimitBytesDefault(t *testing.T) {
	t.Setenv("CIE_SOFT_LIMIT_BYTES", "")
	assert.Equal(t, DefaultSoftLimitBytes, SoftLimitBytes())
}

func TestSoftLimitBytesFromEnv(t *testing.T) {
	t.Setenv("CIE_SOFT_LIMIT_BYTES", "1024")
	assert.Equal(t, 1024, SoftLimitBytes())
}

func TestSoftLimitBytesIgnoresInvalidEnv(t *testing.T) {
	t.Setenv("CIE_SOFT_LIMIT_BYTES", "not-a-number")
	assert.Equal(t, DefaultSoftLimitBytes, SoftLimitBytes())
}

func TestSoftLimitBytesIgnoresNonPositiveEnv(t *testing.T) {
	t.Setenv("CIE_SOFT_LIMIT_BYTES", "-5")
	assert.Equal(t, DefaultSoftLimitBytes, SoftLimitBytes())
}

func TestValidateBatchScriptWithinLimit(t *testing.T) {
	result := ValidateBatchScript("small script")
	assert.True(t, result.OK)
	assert.Empty(t, result.Message)
}

func TestValidateBatchScriptExceedsLimit(t *testing.T) {
	t.Setenv("CIE_SOFT_LIMIT_BYTES", "10")
	result := ValidateBatchScript(strings.Repeat("x", 11))
	assert.False(t, result.OK)
	assert.NotEmpty(t, result.Message)
}
