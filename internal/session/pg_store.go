package session

import (
	"context"

	"github.com/phenopolis/twofactor/internal/database"
	"github.com/phenopolis/twofactor/internal/models"
)

// PGStore keeps login sessions in Postgres so an attempt survives a
// process restart and is visible to every instance behind a load
// balancer.
type PGStore struct {
	db *database.DB
}

func NewPGStore(db *database.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Read(ctx context.Context, token string) (*models.LoginSession, error) {
	query := `
		SELECT account_id, password_checked, second_factor_checked,
			remember_me, return_to, created_at, expires_at
		FROM login_sessions WHERE token = $1
	`
	var sess models.LoginSession
	err := s.db.Pool.QueryRow(ctx, query, token).Scan(
		&sess.AccountID, &sess.PasswordChecked, &sess.SecondFactorChecked,
		&sess.RememberMe, &sess.ReturnTo, &sess.CreatedAt, &sess.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &sess, nil
}

func (s *PGStore) Write(ctx context.Context, token string, sess *models.LoginSession) error {
	query := `
		INSERT INTO login_sessions (token, account_id, password_checked,
			second_factor_checked, remember_me, return_to, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (token) DO UPDATE SET
			second_factor_checked = EXCLUDED.second_factor_checked,
			remember_me = EXCLUDED.remember_me,
			return_to = EXCLUDED.return_to,
			expires_at = EXCLUDED.expires_at
	`
	_, err := s.db.Pool.Exec(ctx, query,
		token, sess.AccountID, sess.PasswordChecked, sess.SecondFactorChecked,
		sess.RememberMe, sess.ReturnTo, sess.CreatedAt, sess.ExpiresAt,
	)
	return database.MapPostgresError(err)
}

func (s *PGStore) Delete(ctx context.Context, token string) error {
	_, err := s.db.Pool.Exec(ctx, `DELETE FROM login_sessions WHERE token = $1`, token)
	return database.MapPostgresError(err)
}

// DeleteExpired removes sessions past their expiry; called by the
// background cleanup loop.
func (s *PGStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM login_sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
