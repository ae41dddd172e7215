package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned for unknown or expired session tokens.
var ErrSessionNotFound = errors.New("session not found")

// Session binds a token to a user until ExpiresAt.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionStore persists sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, sess Session) error
	GetSession(ctx context.Context, token string) (Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// Open creates a session for userID valid for ttl.
func Open(ctx context.Context, store SessionStore, userID string, ttl time.Duration) (Session, error) {
	token, err := NewToken()
	if err != nil {
		return Session{}, err
	}
	sess := Session{Token: token, UserID: userID, ExpiresAt: time.Now().UTC().Add(ttl)}
	if err := store.CreateSession(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

const redisSessionPrefix = "techverse:session:"

// RedisSessions stores sessions as JSON values with a matching key TTL.
type RedisSessions struct {
	client *redis.Client
}

// NewRedisSessions connects to the Redis instance at url and pings it.
func NewRedisSessions(ctx context.Context, url string) (*RedisSessions, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisSessions{client: client}, nil
}

func (r *RedisSessions) CreateSession(ctx context.Context, sess Session) error {
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return errors.New("session already expired")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisSessionPrefix+sess.Token, raw, ttl).Err()
}

func (r *RedisSessions) GetSession(ctx context.Context, token string) (Session, error) {
	raw, err := r.client.Get(ctx, redisSessionPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, err
	}
	if sess.Expired(time.Now()) {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (r *RedisSessions) DeleteSession(ctx context.Context, token string) error {
	return r.client.Del(ctx, redisSessionPrefix+token).Err()
}

// Close releases the Redis connection pool.
func (r *RedisSessions) Close() error {
	return r.client.Close()
}
