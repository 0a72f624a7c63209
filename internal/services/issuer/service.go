package issuer

import (
	"context"
	"errors"
	"net/http"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/keymeter/keymeter/internal/models"
	"github.com/keymeter/keymeter/internal/services/auth"
	"github.com/keymeter/keymeter/internal/services/keystore"
)

// maxGenerateAttempts bounds regeneration when a fresh key collides with
// an existing row. With 32 random bytes a single collision is already
// close to impossible.
const maxGenerateAttempts = 3

// Service issues API keys: one active key per owner, created on first
// request and returned unchanged afterwards.
type Service struct {
	store        *keystore.Store
	defaultLimit int64
	clock        func() time.Time
}

func NewService(store *keystore.Store, defaultLimit int64) *Service {
	if defaultLimit <= 0 {
		defaultLimit = models.DefaultUsageLimit
	}
	return &Service{
		store:        store,
		defaultLimit: defaultLimit,
		clock:        time.Now,
	}
}

// IssueOrFetch returns the caller's active key, creating one if none
// exists. created reports whether this call minted the key.
func (s *Service) IssueOrFetch(ctx context.Context, identity *auth.Identity) (string, bool, error) {
	if identity == nil || identity.SubjectID == "" {
		return "", false, models.NewAuthRejectedError("Unauthorized: Missing or invalid token.", http.StatusUnauthorized)
	}

	existing, err := s.store.FindActiveByOwner(ctx, identity.SubjectID)
	if err == nil {
		if existing.Key == "" {
			return "", false, models.NewDataInconsistencyError("stored key record has an empty key value", nil)
		}
		return existing.Key, false, nil
	}
	if !errors.Is(err, keystore.ErrKeyNotFound) {
		return "", false, models.NewTransientStoreError(err)
	}

	key, err := s.createKey(ctx, identity)
	if err != nil {
		return "", false, err
	}

	fiberlog.Infof("issued key %s to owner %s", models.ShortKey(key), identity.SubjectID)
	return key, true, nil
}

func (s *Service) createKey(ctx context.Context, identity *auth.Identity) (string, error) {
	now := s.clock().UTC()

	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		key, err := models.GenerateKey()
		if err != nil {
			return "", models.NewInternalError(err)
		}

		record := &models.KeyRecord{
			Key:        key,
			OwnerID:    identity.SubjectID,
			OwnerEmail: identity.Email,
			IsEnabled:  true,
			UsageCount: 0,
			UsageLimit: s.defaultLimit,
			LastReset:  now,
		}

		err = s.store.Create(ctx, record)
		if err == nil {
			return key, nil
		}
		if errors.Is(err, keystore.ErrDuplicateKey) {
			fiberlog.Warnf("generated key collided on attempt %d, regenerating", attempt+1)
			continue
		}
		return "", models.NewTransientStoreError(err)
	}

	return "", models.NewInternalError(errors.New("could not generate a unique key"))
}
