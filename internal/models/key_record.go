package models

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
	"time"
)

const (
	// KeyPrefix marks every key issued by this gateway.
	KeyPrefix = "sk_"

	// DefaultUsageLimit is the monthly quota applied when a record carries none.
	DefaultUsageLimit int64 = 100

	keyRandomBytes = 32
)

// KeyRecord is one issued API key with its monthly usage counters.
// Rows are never deleted by the gateway; the metering transaction is
// the only writer of UsageCount and LastReset.
type KeyRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Key        string    `gorm:"uniqueIndex;not null;size:64" json:"-"`
	OwnerID    string    `gorm:"index;not null;size:128" json:"owner_id"`
	OwnerEmail string    `gorm:"size:255;default:''" json:"owner_email,omitempty"`
	IsEnabled  bool      `gorm:"default:true;index" json:"is_enabled"`
	UsageCount int64     `gorm:"not null;default:0" json:"usage_count"`
	UsageLimit int64     `gorm:"not null;default:100" json:"usage_limit"`
	LastReset  time.Time `gorm:"not null" json:"last_reset"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (KeyRecord) TableName() string {
	return "key_records"
}

// EffectiveUsageLimit returns the stored limit, substituting the default
// for legacy rows persisted without one.
func (r *KeyRecord) EffectiveUsageLimit() int64 {
	if r.UsageLimit <= 0 {
		return DefaultUsageLimit
	}
	return r.UsageLimit
}

// DueForReset reports whether the record's last reset falls in an earlier
// billing month than now, comparing year before month in UTC. A record
// reset in December 2024 is due in January 2025 even though 12 > 1.
func (r *KeyRecord) DueForReset(now time.Time) bool {
	last := r.LastReset.UTC()
	nowUTC := now.UTC()
	if last.Year() != nowUTC.Year() {
		return last.Year() < nowUTC.Year()
	}
	return last.Month() < nowUTC.Month()
}

// GenerateKey returns a new opaque API key: the fixed prefix followed by
// 32 bytes of cryptographically random data, URL-safe base64 encoded.
func GenerateKey() (string, error) {
	b := make([]byte, keyRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return KeyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

var keyPattern = regexp.MustCompile(`^sk_[A-Za-z0-9_-]{32,}$`)

// ValidKeyFormat reports whether s looks like a key this gateway issued.
func ValidKeyFormat(s string) bool {
	return keyPattern.MatchString(s)
}

// ShortKey truncates a key for log output so full secrets never reach logs.
func ShortKey(key string) string {
	const visible = len(KeyPrefix) + 3
	if len(key) <= visible {
		return key
	}
	return key[:visible] + "..."
}

// KeyStatus is the read-only projection returned by the status endpoint.
// UsageCount is the effective count: zero when a month rollover is due
// but has not yet been committed by a metered call.
type KeyStatus struct {
	IsValid         bool       `json:"isValid"`
	IsEnabled       bool       `json:"isEnabled"`
	UsageCount      int64      `json:"usageCount"`
	UsageLimit      int64      `json:"usageLimit"`
	RemainingUsages int64      `json:"remainingUsages"`
	IsLimitReached  bool       `json:"isLimitReached"`
	LastReset       *time.Time `json:"lastReset"`
}
