package models

// MeteringConfig tunes the usage-metering core. Zero values fall back to
// the defaults the gateway ships with.
type MeteringConfig struct {
	// DefaultUsageLimit overrides the monthly quota applied to newly
	// issued keys. Existing records keep their stored limit.
	DefaultUsageLimit int64 `json:"default_usage_limit,omitempty" yaml:"default_usage_limit"`

	// SweepIntervalMinutes controls how often expired idempotency
	// records are purged. Defaults to 60.
	SweepIntervalMinutes int `json:"sweep_interval_minutes,omitempty" yaml:"sweep_interval_minutes"`
}
