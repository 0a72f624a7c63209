package models

import "time"

// IdempotencyRetention is how long a committed operation token is kept
// before the sweeper may remove it.
const IdempotencyRetention = 24 * time.Hour

// IdempotencyRecord marks one usage-recording operation as applied.
// Created once when the metering transaction commits, never mutated;
// duplicate submissions of the same token read it back verbatim.
type IdempotencyRecord struct {
	ID                 uint      `gorm:"primaryKey" json:"-"`
	OperationToken     string    `gorm:"uniqueIndex;not null;size:128" json:"operation_token"`
	KeyRecordID        uint      `gorm:"not null;index" json:"key_record_id"`
	KeyPrefix          string    `gorm:"not null;size:16;default:''" json:"-"`
	RecordedUsageCount int64     `gorm:"not null" json:"recorded_usage_count"`
	WasReset           bool      `gorm:"not null;default:false" json:"was_reset"`
	ProcessedAt        time.Time `gorm:"not null;autoCreateTime" json:"processed_at"`
	ExpiresAt          time.Time `gorm:"not null;index" json:"expires_at"`
}

func (IdempotencyRecord) TableName() string {
	return "idempotency_records"
}
