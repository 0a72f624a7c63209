package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	assert.True(t, ValidKeyFormat(key), "generated key %q must match the issued format", key)

	other, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestValidKeyFormat(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		valid bool
	}{
		{"generated shape", "sk_" + "A1b2C3d4E5f6G7h8I9j0K1l2M3n4O5p6Q7r8S9t0Uvw", true},
		{"minimum random length", "sk_" + "abcdefghijklmnopqrstuvwxyz012345", true},
		{"underscore and dash allowed", "sk_" + "abc_def-ghi_jkl-mno_pqr-stu_vwx-yz012345", true},
		{"missing prefix", "pk_abcdefghijklmnopqrstuvwxyz012345", false},
		{"too short", "sk_abc", false},
		{"illegal characters", "sk_abcdefghijklmnopqrstuvwxyz01234+", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidKeyFormat(tt.key))
		})
	}
}

func TestDueForReset(t *testing.T) {
	now := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		lastReset time.Time
		due       bool
	}{
		{"same month", time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), false},
		{"previous month across year boundary", time.Date(2024, time.December, 31, 23, 59, 0, 0, time.UTC), true},
		{"earlier year with later month", time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), true},
		{"later year", time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), false},
		{"non-UTC location normalized", time.Date(2025, time.January, 1, 5, 0, 0, 0, time.FixedZone("UTC+9", 9*3600)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := &KeyRecord{LastReset: tt.lastReset}
			assert.Equal(t, tt.due, record.DueForReset(now))
		})
	}
}

func TestEffectiveUsageLimit(t *testing.T) {
	assert.Equal(t, int64(500), (&KeyRecord{UsageLimit: 500}).EffectiveUsageLimit())
	assert.Equal(t, DefaultUsageLimit, (&KeyRecord{UsageLimit: 0}).EffectiveUsageLimit())
	assert.Equal(t, DefaultUsageLimit, (&KeyRecord{UsageLimit: -1}).EffectiveUsageLimit())
}

func TestShortKey(t *testing.T) {
	assert.Equal(t, "sk_abc...", ShortKey("sk_abcdefghijklmnop"))
	assert.Equal(t, "sk_ab", ShortKey("sk_ab"))
}
