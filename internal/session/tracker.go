package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phenopolis/twofactor/internal/models"
)

// Tracker manages the lifecycle of a LoginSession. After BeginAttempt the
// only permitted mutations are MarkSecondFactorChecked and Clear.
type Tracker struct {
	store  Store
	expiry time.Duration
}

func NewTracker(store Store, expiry time.Duration) *Tracker {
	return &Tracker{store: store, expiry: expiry}
}

// BeginAttempt records a password-verified login attempt and returns the
// opaque token identifying it.
func (t *Tracker) BeginAttempt(ctx context.Context, accountID string, rememberMe bool, returnTo string) (string, error) {
	now := time.Now()
	sess := &models.LoginSession{
		AccountID:           accountID,
		PasswordChecked:     true,
		SecondFactorChecked: false,
		RememberMe:          rememberMe,
		ReturnTo:            returnTo,
		CreatedAt:           now,
		ExpiresAt:           now.Add(t.expiry),
	}

	token := uuid.New().String()
	if err := t.store.Write(ctx, token, sess); err != nil {
		return "", fmt.Errorf("failed to store login session: %w", err)
	}
	return token, nil
}

// Current returns the in-progress attempt for the token, or (nil, nil)
// when there is none. Callers must treat nil as "no login in progress"
// and never infer an identity from it.
func (t *Tracker) Current(ctx context.Context, token string) (*models.LoginSession, error) {
	if token == "" {
		return nil, nil
	}

	sess, err := t.store.Read(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if time.Now().After(sess.ExpiresAt) {
		_ = t.store.Delete(ctx, token)
		return nil, nil
	}

	return sess, nil
}

func (t *Tracker) MarkSecondFactorChecked(ctx context.Context, token string) error {
	sess, err := t.store.Read(ctx, token)
	if err != nil {
		return err
	}

	sess.SecondFactorChecked = true
	return t.store.Write(ctx, token, sess)
}

func (t *Tracker) Clear(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return t.store.Delete(ctx, token)
}
