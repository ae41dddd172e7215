package store

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"
)

// Address is a user's postal address.
type Address struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Line1     string    `json:"line1"`
	Line2     string    `json:"line2,omitempty"`
	City      string    `json:"city"`
	State     string    `json:"state,omitempty"`
	Postcode  string    `json:"postcode,omitempty"`
	Country   string    `json:"country"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Format renders the address on a single line for order snapshots.
func (a Address) Format() string {
	parts := []string{a.Line1, a.Line2, a.City, a.State, a.Postcode, a.Country}
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

type AddressInput struct {
	Line1     *string `json:"line1,omitempty"`
	Line2     *string `json:"line2,omitempty"`
	City      *string `json:"city,omitempty"`
	State     *string `json:"state,omitempty"`
	Postcode  *string `json:"postcode,omitempty"`
	Country   *string `json:"country,omitempty"`
	IsDefault *bool   `json:"is_default,omitempty"`
}

func (in AddressInput) empty() bool {
	return in.Line1 == nil && in.Line2 == nil && in.City == nil && in.State == nil &&
		in.Postcode == nil && in.Country == nil && in.IsDefault == nil
}

func (in AddressInput) apply(a *Address) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&a.Line1, in.Line1)
	set(&a.Line2, in.Line2)
	set(&a.City, in.City)
	set(&a.State, in.State)
	set(&a.Postcode, in.Postcode)
	set(&a.Country, in.Country)
	if in.IsDefault != nil {
		a.IsDefault = *in.IsDefault
	}
}

func validateAddress(a Address) error {
	switch {
	case a.Line1 == "":
		return invalidf("line1 is required")
	case tooLong(a.Line1, 255) || tooLong(a.Line2, 255):
		return invalidf("address lines must be at most 255 characters")
	case a.City == "":
		return invalidf("city is required")
	case tooLong(a.City, 100) || tooLong(a.State, 100):
		return invalidf("city and state must be at most 100 characters")
	case tooLong(a.Postcode, 20):
		return invalidf("postcode must be at most 20 characters")
	case a.Country == "":
		return invalidf("country is required")
	case tooLong(a.Country, 100):
		return invalidf("country must be at most 100 characters")
	}
	return nil
}

// CreateAddress adds an address for userID. The user's first address becomes
// the default.
func (s *Store) CreateAddress(ctx context.Context, userID string, in AddressInput) (Address, error) {
	now := time.Now().UTC()
	a := Address{ID: newID("adr"), UserID: userID, CreatedAt: now, UpdatedAt: now}
	in.apply(&a)
	if err := validateAddress(a); err != nil {
		return Address{}, err
	}

	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		hasAny := false
		for _, other := range s.mem.addresses {
			if other.UserID == userID {
				hasAny = true
				if a.IsDefault && other.IsDefault {
					other.IsDefault = false
					s.mem.addresses[other.ID] = other
				}
			}
		}
		if !hasAny {
			a.IsDefault = true
		}
		s.mem.addresses[a.ID] = a
		return a, nil
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM addresses WHERE user_id=$1`, userID).Scan(&count); err != nil {
			return wrapf(err, "count addresses")
		}
		if count == 0 {
			a.IsDefault = true
		}
		if a.IsDefault {
			if _, err := tx.ExecContext(ctx, `UPDATE addresses SET is_default=FALSE, updated_at=$2 WHERE user_id=$1 AND is_default`, userID, now); err != nil {
				return wrapf(err, "clear default address")
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO addresses (id, user_id, line1, line2, city, state, postcode, country, is_default, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			a.ID, a.UserID, a.Line1, nilIfEmpty(a.Line2), a.City, nilIfEmpty(a.State), nilIfEmpty(a.Postcode),
			a.Country, a.IsDefault, a.CreatedAt, a.UpdatedAt)
		return wrapf(err, "insert address")
	})
	if err != nil {
		return Address{}, err
	}
	return a, nil
}

const addressColumns = `id, user_id, line1, line2, city, state, postcode, country, is_default, created_at, updated_at`

func scanAddress(row scanner) (Address, error) {
	var a Address
	var line2, state, postcode sql.NullString
	if err := row.Scan(&a.ID, &a.UserID, &a.Line1, &line2, &a.City, &state, &postcode, &a.Country, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Address{}, err
	}
	a.Line2 = line2.String
	a.State = state.String
	a.Postcode = postcode.String
	return a, nil
}

// GetAddress loads an address. A non-empty userID restricts it to that owner.
func (s *Store) GetAddress(ctx context.Context, userID, id string) (Address, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		a, ok := s.mem.addresses[id]
		if !ok || (userID != "" && a.UserID != userID) {
			return Address{}, ErrNotFound
		}
		return a, nil
	}
	w := &where{}
	w.and("id = " + w.arg(id))
	if userID != "" {
		w.and("user_id = " + w.arg(userID))
	}
	a, err := scanAddress(s.db.QueryRowContext(ctx, `SELECT `+addressColumns+` FROM addresses `+w.String(), w.args...))
	if err != nil {
		return Address{}, wrapf(err, "get address %s", id)
	}
	return a, nil
}

// ListAddresses returns a user's addresses, default first.
func (s *Store) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	out := make([]Address, 0)
	if s.db == nil {
		s.mu.RLock()
		for _, a := range s.mem.addresses {
			if a.UserID == userID {
				out = append(out, a)
			}
		}
		s.mu.RUnlock()
		sortAddresses(out)
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE user_id=$1 ORDER BY is_default DESC, created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, wrapf(err, "list addresses")
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, wrapf(err, "scan address")
		}
		out = append(out, a)
	}
	return out, wrapf(rows.Err(), "list addresses")
}

func sortAddresses(list []Address) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].IsDefault != list[j].IsDefault {
			return list[i].IsDefault
		}
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

// UpdateAddress patches an address owned by userID.
func (s *Store) UpdateAddress(ctx context.Context, userID, id string, in AddressInput) (Address, error) {
	if in.empty() {
		return Address{}, errEmptyUpdate
	}
	now := time.Now().UTC()
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		a, ok := s.mem.addresses[id]
		if !ok || a.UserID != userID {
			return Address{}, ErrNotFound
		}
		in.apply(&a)
		if err := validateAddress(a); err != nil {
			return Address{}, err
		}
		a.UpdatedAt = now
		if a.IsDefault {
			for _, other := range s.mem.addresses {
				if other.UserID == userID && other.ID != id && other.IsDefault {
					other.IsDefault = false
					s.mem.addresses[other.ID] = other
				}
			}
		}
		s.mem.addresses[id] = a
		return a, nil
	}

	var out Address
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		a, err := scanAddress(tx.QueryRowContext(ctx,
			`SELECT `+addressColumns+` FROM addresses WHERE id=$1 AND user_id=$2 FOR UPDATE`, id, userID))
		if err != nil {
			return wrapf(err, "load address %s", id)
		}
		in.apply(&a)
		if err := validateAddress(a); err != nil {
			return err
		}
		a.UpdatedAt = now
		if a.IsDefault {
			if _, err := tx.ExecContext(ctx,
				`UPDATE addresses SET is_default=FALSE, updated_at=$3 WHERE user_id=$1 AND id<>$2 AND is_default`, userID, id, now); err != nil {
				return wrapf(err, "clear default address")
			}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE addresses SET line1=$2, line2=$3, city=$4, state=$5, postcode=$6, country=$7, is_default=$8, updated_at=$9 WHERE id=$1`,
			a.ID, a.Line1, nilIfEmpty(a.Line2), a.City, nilIfEmpty(a.State), nilIfEmpty(a.Postcode), a.Country, a.IsDefault, a.UpdatedAt)
		if err != nil {
			return wrapf(err, "update address %s", id)
		}
		out = a
		return nil
	})
	return out, err
}

// DeleteAddress removes an address owned by userID.
func (s *Store) DeleteAddress(ctx context.Context, userID, id string) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		a, ok := s.mem.addresses[id]
		if !ok || a.UserID != userID {
			return ErrNotFound
		}
		delete(s.mem.addresses, id)
		return nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM addresses WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return wrapf(err, "delete address %s", id)
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
