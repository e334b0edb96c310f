package session

import (
	"context"

	"github.com/phenopolis/twofactor/internal/models"
)

// Store persists in-progress login attempts keyed by an opaque token. The
// token itself travels in an httpOnly cookie; the store never sees the
// cookie machinery.
type Store interface {
	Read(ctx context.Context, token string) (*models.LoginSession, error)
	Write(ctx context.Context, token string, session *models.LoginSession) error
	Delete(ctx context.Context, token string) error
}
