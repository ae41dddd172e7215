package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"techverse/marketplace/internal/auth"
	"techverse/marketplace/internal/inventory"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(nil, Options{CacheTTL: time.Minute, Logger: zerolog.Nop()})
}

func mustUser(t *testing.T, s *Store, email, role string) User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), NewUser{
		Username: strings.Split(email, "@")[0],
		Email:    email,
		Password: "password123",
		Role:     role,
	})
	require.NoError(t, err)
	return u
}

func mustProduct(t *testing.T, s *Store, ownerID, name, price string, stock int) Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), ownerID, NewProduct{
		Name:     name,
		Category: "Electronics",
		Brand:    "Acme",
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
	})
	require.NoError(t, err)
	return p
}

func mustDefaultVariant(t *testing.T, s *Store, productID string) Variant {
	t.Helper()
	v, err := s.DefaultVariant(context.Background(), productID)
	require.NoError(t, err)
	return v
}

func TestNewDefaultsToMemoryMode(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, ModeMemory, s.Mode())
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
}

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 123456789, time.UTC)
	cur := EncodeCursor(ts, "prd_abc")

	gotTS, gotID, err := ParseCursor(cur)
	require.NoError(t, err)
	assert.True(t, gotTS.Equal(ts))
	assert.Equal(t, "prd_abc", gotID)

	for _, bad := range []string{"nocolon", "abc:prd_1", "123:"} {
		_, _, err := ParseCursor(bad)
		var in *InputError
		assert.ErrorAs(t, err, &in, bad)
	}
}

func TestListCacheDropsPagesComputedBeforePurge(t *testing.T) {
	c := newListCache[int](time.Minute)

	_, stale, ok := c.get("k")
	require.False(t, ok)
	c.purge()
	c.set("k", 1, stale)
	_, _, ok = c.get("k")
	assert.False(t, ok)

	_, fresh, _ := c.get("k")
	c.set("k", 2, fresh)
	v, _, ok := c.get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestUsersAndAuthentication(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := mustUser(t, s, "Ada@Example.com", "")
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, RoleCustomer, u.Role)

	_, err := s.CreateUser(ctx, NewUser{Username: "ada2", Email: "ada@example.com", Password: "password123"})
	require.ErrorIs(t, err, ErrConflict)

	_, err = s.CreateUser(ctx, NewUser{Username: "bob", Email: "not-an-email", Password: "password123"})
	var in *InputError
	require.ErrorAs(t, err, &in)

	got, err := s.Authenticate(ctx, "ADA@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.Authenticate(ctx, "ada@example.com", "wrong-password")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "nobody@example.com", "password123")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestEnsureAdminCreatesThenPromotes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	admin, created, err := s.EnsureAdmin(ctx, NewUser{Username: "Administrator", Email: "admin@techverse.com", Password: "password123"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, admin.IsAdmin())

	again, created, err := s.EnsureAdmin(ctx, NewUser{Username: "Administrator", Email: "admin@techverse.com", Password: "password123"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, admin.ID, again.ID)

	customer := mustUser(t, s, "carol@example.com", RoleCustomer)
	promoted, created, err := s.EnsureAdmin(ctx, NewUser{Email: "carol@example.com"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, customer.ID, promoted.ID)
	assert.Equal(t, RoleAdmin, promoted.Role)
}

func TestSessionsExpireAndPurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "dave@example.com", "")

	live, err := auth.Open(ctx, s, u.ID, time.Hour)
	require.NoError(t, err)
	got, err := s.GetSession(ctx, live.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)

	stale := auth.Session{Token: "stale", UserID: u.ID, ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, s.CreateSession(ctx, stale))
	_, err = s.GetSession(ctx, "stale")
	require.ErrorIs(t, err, auth.ErrSessionNotFound)

	n, err := s.PurgeExpiredSessions(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, s.DeleteSession(ctx, live.Token))
	require.NoError(t, s.DeleteSession(ctx, live.Token))
	_, err = s.GetSession(ctx, live.Token)
	require.ErrorIs(t, err, auth.ErrSessionNotFound)
}

func TestAddressDefaultHandling(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "erin@example.com", "")
	str := func(v string) *string { return &v }
	yes := true

	first, err := s.CreateAddress(ctx, u.ID, AddressInput{Line1: str("1 High St"), City: str("Leeds"), Country: str("UK")})
	require.NoError(t, err)
	assert.True(t, first.IsDefault)

	second, err := s.CreateAddress(ctx, u.ID, AddressInput{Line1: str("2 Low Rd"), City: str("York"), Country: str("UK"), IsDefault: &yes})
	require.NoError(t, err)
	assert.True(t, second.IsDefault)

	list, err := s.ListAddresses(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.False(t, list[1].IsDefault)

	_, err = s.CreateAddress(ctx, u.ID, AddressInput{City: str("Leeds"), Country: str("UK")})
	var in *InputError
	require.ErrorAs(t, err, &in)

	other := mustUser(t, s, "frank@example.com", "")
	_, err = s.GetAddress(ctx, other.ID, first.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.DeleteAddress(ctx, other.ID, first.ID), ErrNotFound)

	assert.Equal(t, "1 High St, Leeds, UK", first.Format())
}

func TestMovementTypesMatchSchema(t *testing.T) {
	for _, typ := range []string{inventory.MovementRestock, inventory.MovementAdjustment, inventory.MovementReturn} {
		assert.True(t, inventory.ManualMovement(typ), typ)
	}
	assert.False(t, inventory.ManualMovement(inventory.MovementSale))
}
