package store

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"techverse/marketplace/internal/auth"
)

// Roles a user can hold.
const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// User is a marketplace account. The password hash never leaves the store.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user has the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// NewUser holds registration input.
type NewUser struct {
	Username string
	Email    string
	Password string
	Role     string
}

func normalizeRole(role string) string {
	switch r := strings.ToLower(strings.TrimSpace(role)); r {
	case RoleAdmin, RoleCustomer:
		return r
	default:
		return ""
	}
}

func buildUser(in NewUser) (User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	switch {
	case username == "":
		return User{}, invalidf("username is required")
	case tooLong(username, 255):
		return User{}, invalidf("username must be at most 255 characters")
	case email == "":
		return User{}, invalidf("email is required")
	case tooLong(email, 255) || !validEmail(email):
		return User{}, invalidf("email is invalid")
	case len(in.Password) < auth.MinPasswordLength:
		return User{}, invalidf("password must be at least %d characters", auth.MinPasswordLength)
	}
	role := RoleCustomer
	if in.Role != "" {
		if role = normalizeRole(in.Role); role == "" {
			return User{}, invalidf("invalid role")
		}
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return User{}, &InputError{Msg: err.Error()}
	}
	now := time.Now().UTC()
	return User{
		ID:           newID("usr"),
		Username:     username,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CreateUser registers a new account. A duplicate email is ErrConflict.
func (s *Store) CreateUser(ctx context.Context, in NewUser) (User, error) {
	u, err := buildUser(in)
	if err != nil {
		return User{}, err
	}
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, existing := range s.mem.users {
			if existing.Email == u.Email {
				return User{}, conflictf("email is already registered")
			}
		}
		s.mem.users[u.ID] = u
		return u, nil
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, role, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Role, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if errors.Is(mapDBError(err), ErrConflict) {
			return User{}, conflictf("email is already registered")
		}
		return User{}, wrapf(err, "insert user")
	}
	return u, nil
}

const userColumns = `id, username, email, password_hash, role, created_at, updated_at`

func scanUser(row scanner) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		u, ok := s.mem.users[id]
		if !ok {
			return User{}, ErrNotFound
		}
		return u, nil
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if err != nil {
		return User{}, wrapf(err, "get user %s", id)
	}
	return u, nil
}

// GetUserByEmail loads a user by (case-insensitive) email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, u := range s.mem.users {
			if u.Email == email {
				return u, nil
			}
		}
		return User{}, ErrNotFound
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
	if err != nil {
		return User{}, wrapf(err, "get user by email")
	}
	return u, nil
}

// Authenticate returns the user whose email and password match.
func (s *Store) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, err := s.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return User{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return User{}, err
	}
	return u, nil
}

// EnsureAdmin creates an admin account for email, or promotes the existing
// account to admin. It reports whether a new account was created.
func (s *Store) EnsureAdmin(ctx context.Context, in NewUser) (User, bool, error) {
	in.Role = RoleAdmin
	existing, err := s.GetUserByEmail(ctx, in.Email)
	switch {
	case errors.Is(err, ErrNotFound):
		u, err := s.CreateUser(ctx, in)
		return u, err == nil, err
	case err != nil:
		return User{}, false, err
	case existing.IsAdmin():
		return existing, false, nil
	}

	existing.Role = RoleAdmin
	existing.UpdatedAt = time.Now().UTC()
	if s.db == nil {
		s.mu.Lock()
		s.mem.users[existing.ID] = existing
		s.mu.Unlock()
		return existing, false, nil
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET role=$2, updated_at=$3 WHERE id=$1`,
		existing.ID, existing.Role, existing.UpdatedAt); err != nil {
		return User{}, false, wrapf(err, "promote user %s", existing.ID)
	}
	return existing, false, nil
}
