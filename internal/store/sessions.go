package store

import (
	"context"
	"time"

	"techverse/marketplace/internal/auth"
)

// CreateSession persists a login session.
func (s *Store) CreateSession(ctx context.Context, sess auth.Session) error {
	if s.db == nil {
		s.mu.Lock()
		s.mem.sessions[sess.Token] = sess
		s.mu.Unlock()
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES ($1,$2,$3,$4)`,
		sess.Token, sess.UserID, sess.ExpiresAt, time.Now().UTC())
	return wrapf(err, "insert session")
}

// GetSession returns a live session; expired sessions read as not found.
func (s *Store) GetSession(ctx context.Context, token string) (auth.Session, error) {
	now := time.Now()
	if s.db == nil {
		s.mu.RLock()
		sess, ok := s.mem.sessions[token]
		s.mu.RUnlock()
		if !ok || sess.Expired(now) {
			return auth.Session{}, auth.ErrSessionNotFound
		}
		return sess, nil
	}
	var sess auth.Session
	err := s.db.QueryRowContext(ctx, `SELECT token, user_id, expires_at FROM sessions WHERE token=$1`, token).
		Scan(&sess.Token, &sess.UserID, &sess.ExpiresAt)
	if err != nil {
		if mapDBError(err) == ErrNotFound {
			return auth.Session{}, auth.ErrSessionNotFound
		}
		return auth.Session{}, wrapf(err, "get session")
	}
	if sess.Expired(now) {
		return auth.Session{}, auth.ErrSessionNotFound
	}
	return sess, nil
}

// DeleteSession removes a session. Unknown tokens are not an error.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if s.db == nil {
		s.mu.Lock()
		delete(s.mem.sessions, token)
		s.mu.Unlock()
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token=$1`, token)
	return wrapf(err, "delete session")
}

// PurgeExpiredSessions deletes every expired session and returns how many went.
func (s *Store) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	now := time.Now()
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		var n int64
		for token, sess := range s.mem.sessions {
			if sess.Expired(now) {
				delete(s.mem.sessions, token)
				n++
			}
		}
		return n, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, wrapf(err, "purge sessions")
	}
	return res.RowsAffected()
}
