package models

// CacheConfig holds the optional Redis configuration. When a URL is set
// the idempotency ledger mirrors committed records into Redis for a
// fast replay-detection path; the SQL row stays the source of truth.
type CacheConfig struct {
	RedisURL string `json:"redis_url,omitempty" yaml:"redis_url"`
}
