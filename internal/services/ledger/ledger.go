package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/keymeter/keymeter/internal/models"
)

// ErrTokenNotFound indicates the operation token has no committed record.
var ErrTokenNotFound = errors.New("operation token not recorded")

const redisKeyPrefix = "keymeter:idem:"

// Ledger stores processed operation tokens so retried usage reports are
// answered from the original outcome instead of double counting. The
// database is authoritative; Redis, when configured, is a best-effort
// read-through mirror that absorbs hot retry loops.
type Ledger struct {
	db    *gorm.DB
	redis *redis.Client
}

func New(db *gorm.DB, redisClient *redis.Client) *Ledger {
	return &Ledger{db: db, redis: redisClient}
}

// Lookup returns the committed record for token, or ErrTokenNotFound.
// Expired records still present in the database are treated as absent.
func (l *Ledger) Lookup(ctx context.Context, token string) (*models.IdempotencyRecord, error) {
	if record := l.lookupMirror(ctx, token); record != nil {
		return record, nil
	}

	var record models.IdempotencyRecord
	err := l.db.WithContext(ctx).
		Where("operation_token = ?", token).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up operation token: %w", err)
	}

	if !record.ExpiresAt.IsZero() && time.Now().UTC().After(record.ExpiresAt) {
		return nil, ErrTokenNotFound
	}

	l.mirrorSet(ctx, &record)
	return &record, nil
}

// Commit persists the record for a freshly processed token. A concurrent
// commit of the same token is tolerated; the row already in place wins and
// tells the same story this one would have.
func (l *Ledger) Commit(ctx context.Context, record *models.IdempotencyRecord) error {
	if record.ProcessedAt.IsZero() {
		record.ProcessedAt = time.Now().UTC()
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.ProcessedAt.Add(models.IdempotencyRetention)
	}

	err := l.db.WithContext(ctx).Create(record).Error
	if err != nil && !isDuplicateError(err) {
		return fmt.Errorf("failed to commit operation token: %w", err)
	}

	l.mirrorSet(ctx, record)
	return nil
}

// PurgeExpired removes records past their expiry and returns how many went.
func (l *Ledger) PurgeExpired(ctx context.Context) (int64, error) {
	result := l.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now().UTC()).
		Delete(&models.IdempotencyRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge expired tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (l *Ledger) lookupMirror(ctx context.Context, token string) *models.IdempotencyRecord {
	if l.redis == nil {
		return nil
	}

	payload, err := l.redis.Get(ctx, redisKeyPrefix+token).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			fiberlog.Warnf("ledger mirror read failed: %v", err)
		}
		return nil
	}

	var record models.IdempotencyRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		fiberlog.Warnf("ledger mirror entry corrupt, falling back to store: %v", err)
		return nil
	}
	return &record
}

func (l *Ledger) mirrorSet(ctx context.Context, record *models.IdempotencyRecord) {
	if l.redis == nil {
		return
	}

	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return
	}
	if err := l.redis.Set(ctx, redisKeyPrefix+record.OperationToken, payload, ttl).Err(); err != nil {
		fiberlog.Warnf("ledger mirror write failed: %v", err)
	}
}

func isDuplicateError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}
