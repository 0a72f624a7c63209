package metering

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/keymeter/keymeter/internal/models"
	"github.com/keymeter/keymeter/internal/services/keystore"
	"github.com/keymeter/keymeter/internal/services/ledger"
)

// OutcomeStatus tags how a metering call concluded.
type OutcomeStatus int

const (
	// StatusVerified means the call consumed one unit of quota.
	StatusVerified OutcomeStatus = iota
	// StatusLimitExceeded means the quota for the current month is spent.
	StatusLimitExceeded
	// StatusAlreadyRecorded means the operation token was seen before and
	// the original outcome was replayed without touching the counter.
	StatusAlreadyRecorded
)

// Outcome is the result of a successful metering call. Rejections that are
// errors (invalid key, disabled key, store failures) travel as AppError
// instead.
type Outcome struct {
	Status     OutcomeStatus
	UsageCount int64
	WasReset   bool
}

// Service runs the metering state machine: resolve key, check enabled,
// optionally consult the idempotency ledger, then apply the quota
// transaction against live row state.
type Service struct {
	store  *keystore.Store
	ledger *ledger.Ledger
	clock  func() time.Time
}

func NewService(store *keystore.Store, idempotency *ledger.Ledger) *Service {
	return &Service{
		store:  store,
		ledger: idempotency,
		clock:  time.Now,
	}
}

// Verify consumes one unit of quota on a best-effort basis. Unlike Record
// it carries no operation token, so client retries count again.
func (s *Service) Verify(ctx context.Context, rawKey string) (*Outcome, error) {
	record, err := s.resolveKey(ctx, rawKey)
	if err != nil {
		return nil, err
	}

	result, err := s.applyQuota(ctx, record)
	if err != nil {
		return nil, err
	}

	return resultToOutcome(result), nil
}

// Record consumes one unit of quota exactly once per operation token.
// A token that already has a ledger entry replays the recorded outcome
// without mutating the counter.
func (s *Service) Record(ctx context.Context, rawKey, operationToken string) (*Outcome, error) {
	token := strings.TrimSpace(operationToken)
	if token == "" {
		return nil, models.NewValidationError("Missing transactionId in request body.")
	}

	record, err := s.resolveKey(ctx, rawKey)
	if err != nil {
		return nil, err
	}

	prior, err := s.ledger.Lookup(ctx, token)
	if err == nil {
		fiberlog.Infof("replaying recorded usage for token %s on key %s", token, models.ShortKey(record.Key))
		return &Outcome{
			Status:     StatusAlreadyRecorded,
			UsageCount: prior.RecordedUsageCount,
			WasReset:   prior.WasReset,
		}, nil
	}
	if !errors.Is(err, ledger.ErrTokenNotFound) {
		return nil, models.NewTransientStoreError(err)
	}

	result, err := s.applyQuota(ctx, record)
	if err != nil {
		return nil, err
	}
	if result.Outcome == keystore.QuotaLimitExceeded {
		return resultToOutcome(result), nil
	}

	entry := &models.IdempotencyRecord{
		OperationToken:     token,
		KeyRecordID:        record.ID,
		KeyPrefix:          models.ShortKey(record.Key),
		RecordedUsageCount: result.NewCount,
		WasReset:           result.Outcome == keystore.QuotaReset,
	}
	if err := s.ledger.Commit(ctx, entry); err != nil {
		// The increment is already durable. Failing here hands the
		// client a retryable error whose retry will count again; that
		// is the documented at-least-once edge of this design.
		fiberlog.Errorf("ledger commit failed for token %s: %v", token, err)
		return nil, models.NewTransientStoreError(err)
	}

	return resultToOutcome(result), nil
}

// Status projects the current state of a key without mutating it. When a
// month rollover is due but no metered call has committed it yet, the
// projection reports the fresh window the next call will observe.
func (s *Service) Status(ctx context.Context, rawKey string) (*models.KeyStatus, error) {
	record, err := s.resolveKey(ctx, rawKey)
	if err != nil {
		return nil, err
	}

	limit := record.EffectiveUsageLimit()
	count := record.UsageCount
	if record.DueForReset(s.clock()) {
		count = 0
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	lastReset := record.LastReset
	return &models.KeyStatus{
		IsValid:         true,
		IsEnabled:       record.IsEnabled,
		UsageCount:      count,
		UsageLimit:      limit,
		RemainingUsages: remaining,
		IsLimitReached:  count >= limit,
		LastReset:       &lastReset,
	}, nil
}

// resolveKey runs the lookup and enabled states shared by every operation.
func (s *Service) resolveKey(ctx context.Context, rawKey string) (*models.KeyRecord, error) {
	key := strings.TrimSpace(rawKey)
	if key == "" {
		return nil, models.NewAuthRejectedError("API key missing.", http.StatusUnauthorized)
	}
	if !models.ValidKeyFormat(key) {
		return nil, models.NewAuthRejectedError("Invalid API key.", http.StatusForbidden)
	}

	record, err := s.store.FindByKey(ctx, key)
	if errors.Is(err, keystore.ErrKeyNotFound) {
		return nil, models.NewAuthRejectedError("Invalid API key.", http.StatusForbidden)
	}
	if err != nil {
		return nil, models.NewTransientStoreError(err)
	}

	if !record.IsEnabled {
		return nil, models.NewAuthRejectedError("API key is disabled.", http.StatusForbidden)
	}

	return record, nil
}

// applyQuota runs the quota decision against live row state under the
// store's row lock. Rollover months accept the call unconditionally with
// the counter restarted at one; otherwise the limit gate applies before
// the atomic increment.
func (s *Service) applyQuota(ctx context.Context, record *models.KeyRecord) (keystore.QuotaResult, error) {
	result, err := s.store.Transact(ctx, record.ID, func(tx *gorm.DB, current *models.KeyRecord) (keystore.QuotaResult, error) {
		now := s.clock().UTC()
		limit := current.EffectiveUsageLimit()

		if current.DueForReset(now) {
			err := tx.Model(current).Updates(map[string]any{
				"usage_count": 1,
				"last_reset":  now,
			}).Error
			if err != nil {
				return keystore.QuotaResult{}, err
			}
			return keystore.QuotaResult{Outcome: keystore.QuotaReset, NewCount: 1}, nil
		}

		if current.UsageCount >= limit {
			return keystore.QuotaResult{
				Outcome:  keystore.QuotaLimitExceeded,
				NewCount: current.UsageCount,
			}, nil
		}

		err := tx.Model(current).
			UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1)).Error
		if err != nil {
			return keystore.QuotaResult{}, err
		}
		return keystore.QuotaResult{
			Outcome:  keystore.QuotaIncremented,
			NewCount: current.UsageCount + 1,
		}, nil
	})

	if errors.Is(err, keystore.ErrKeyVanished) {
		fiberlog.Warnf("key record %d vanished during quota transaction", record.ID)
		return keystore.QuotaResult{}, models.NewAuthRejectedError("Invalid API key.", http.StatusForbidden)
	}
	if err != nil {
		return keystore.QuotaResult{}, models.NewTransientStoreError(err)
	}

	return result, nil
}

func resultToOutcome(result keystore.QuotaResult) *Outcome {
	if result.Outcome == keystore.QuotaLimitExceeded {
		return &Outcome{Status: StatusLimitExceeded, UsageCount: result.NewCount}
	}
	return &Outcome{
		Status:     StatusVerified,
		UsageCount: result.NewCount,
		WasReset:   result.Outcome == keystore.QuotaReset,
	}
}
