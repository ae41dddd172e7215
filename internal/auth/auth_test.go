package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	require.NoError(t, CheckPassword(hash, "correct horse"))
	require.ErrorIs(t, CheckPassword(hash, "wrong horse"), ErrInvalidCredentials)
	require.ErrorIs(t, CheckPassword("", "anything"), ErrInvalidCredentials)
}

func TestHashPasswordTooShort(t *testing.T) {
	_, err := HashPassword("short")
	require.Error(t, err)
}

func TestNewTokenUnique(t *testing.T) {
	a, err := NewToken()
	require.NoError(t, err)
	b, err := NewToken()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestRedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	store, err := NewRedisSessions(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sess, err := Open(ctx, store, "usr_1", time.Hour)
	require.NoError(t, err)

	got, err := store.GetSession(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "usr_1", got.UserID)
	assert.True(t, mr.TTL(redisSessionPrefix+sess.Token) > 0)

	require.NoError(t, store.DeleteSession(ctx, sess.Token))
	_, err = store.GetSession(ctx, sess.Token)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionsExpire(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	store, err := NewRedisSessions(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sess, err := Open(ctx, store, "usr_1", time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = store.GetSession(ctx, sess.Token)
	require.ErrorIs(t, err, ErrSessionNotFound)
}
