package keystore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/keymeter/keymeter/internal/models"
)

var (
	// ErrKeyNotFound indicates no record matches the requested key or owner.
	ErrKeyNotFound = errors.New("key record not found")

	// ErrKeyVanished indicates a record read moments earlier was deleted
	// before the quota transaction could lock it.
	ErrKeyVanished = errors.New("key record deleted during transaction")

	// ErrDuplicateKey indicates a freshly generated key collided with an
	// existing record. Callers regenerate and retry.
	ErrDuplicateKey = errors.New("generated key collides with an existing record")
)

const (
	maxTxAttempts = 3
	txBackoffBase = 50 * time.Millisecond
)

// Store is the persistence adapter for key records. All quota mutations go
// through Transact so the read-check-write cycle runs under a row lock.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindByKey returns the record for an opaque API key, or ErrKeyNotFound.
func (s *Store) FindByKey(ctx context.Context, key string) (*models.KeyRecord, error) {
	var record models.KeyRecord

	err := s.db.WithContext(ctx).
		Where("key = ?", key).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up key record: %w", err)
	}

	return &record, nil
}

// FindActiveByOwner returns the newest enabled key owned by ownerID, or
// ErrKeyNotFound when the owner has none. An owner holding more than one
// enabled key is logged; issuance is supposed to keep it at most one.
func (s *Store) FindActiveByOwner(ctx context.Context, ownerID string) (*models.KeyRecord, error) {
	var records []models.KeyRecord

	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND is_enabled = ?", ownerID, true).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up keys for owner: %w", err)
	}

	if len(records) == 0 {
		return nil, ErrKeyNotFound
	}
	if len(records) > 1 {
		fiberlog.Warnf("owner %s holds %d enabled keys, serving newest", ownerID, len(records))
	}

	return &records[0], nil
}

// Create persists a new key record. A unique-index violation on the key
// column is reported as ErrDuplicateKey so the issuer can regenerate.
func (s *Store) Create(ctx context.Context, record *models.KeyRecord) error {
	err := s.db.WithContext(ctx).Create(record).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateError(err) {
		return ErrDuplicateKey
	}
	return fmt.Errorf("failed to create key record: %w", err)
}

// TxFunc inspects the freshly locked row state and applies its mutation
// through tx. The returned QuotaResult propagates to the Transact caller.
type TxFunc func(tx *gorm.DB, current *models.KeyRecord) (QuotaResult, error)

// QuotaOutcome tags what the quota transaction decided for one call.
type QuotaOutcome int

const (
	// QuotaIncremented means the count advanced within the current window.
	QuotaIncremented QuotaOutcome = iota
	// QuotaReset means a new calendar month began and the count restarted
	// at one, with this call as the first use.
	QuotaReset
	// QuotaLimitExceeded means the row was left untouched because the
	// count already reached the limit.
	QuotaLimitExceeded
)

// QuotaResult is the value computed under the row lock.
type QuotaResult struct {
	Outcome  QuotaOutcome
	NewCount int64
}

// Transact locks the key record by primary key, re-reads its live state and
// runs fn inside the same transaction. Serialization conflicts are retried
// with exponential backoff a bounded number of times before the error
// surfaces to the caller.
func (s *Store) Transact(ctx context.Context, id uint, fn TxFunc) (QuotaResult, error) {
	var result QuotaResult
	var err error

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if attempt > 0 {
			backoff := txBackoffBase << (attempt - 1)
			fiberlog.Warnf("retrying quota transaction for key record %d in %s: %v", id, backoff, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return QuotaResult{}, ctx.Err()
			}
		}

		result, err = s.runQuotaTx(ctx, id, fn)
		if err == nil || !isRetryableTxError(err) {
			return result, err
		}
	}

	return QuotaResult{}, fmt.Errorf("quota transaction exhausted retries: %w", err)
}

func (s *Store) runQuotaTx(ctx context.Context, id uint, fn TxFunc) (QuotaResult, error) {
	var result QuotaResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.KeyRecord

		q := tx
		// SQLite serializes writers at the database level and has no
		// FOR UPDATE in its grammar.
		if tx.Dialector.Name() != "sqlite" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&current, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrKeyVanished
			}
			return fmt.Errorf("failed to lock key record: %w", err)
		}

		var err error
		result, err = fn(tx, &current)
		return err
	})

	return result, err
}

// isRetryableTxError matches contention errors the drivers report when two
// quota transactions collide on the same row.
func isRetryableTxError(err error) bool {
	if err == nil || errors.Is(err, ErrKeyVanished) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"deadlock",
		"serialization failure",
		"could not serialize",
		"lock wait timeout",
		"database is locked",
		"database table is locked",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// isDuplicateError covers drivers that surface unique violations as raw
// driver errors instead of gorm.ErrDuplicatedKey.
func isDuplicateError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}
