package store

import (
	"context"
	"sort"
	"strings"
	"time"
)

// ProductAttribute is a free-form name/value specification line.
type ProductAttribute struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AttributeInput struct {
	Name  *string `json:"name,omitempty"`
	Value *string `json:"value,omitempty"`
}

func (in AttributeInput) apply(a *ProductAttribute) error {
	if in.Name != nil {
		a.Name = strings.TrimSpace(*in.Name)
	}
	if in.Value != nil {
		a.Value = strings.TrimSpace(*in.Value)
	}
	switch {
	case a.Name == "":
		return invalidf("name is required")
	case tooLong(a.Name, 100):
		return invalidf("name must be at most 100 characters")
	case a.Value == "":
		return invalidf("value is required")
	case tooLong(a.Value, 255):
		return invalidf("value must be at most 255 characters")
	}
	return nil
}

func (s *Store) CreateAttribute(ctx context.Context, productID string, in AttributeInput) (ProductAttribute, error) {
	now := time.Now().UTC()
	a := ProductAttribute{ID: newID("att"), ProductID: productID, CreatedAt: now, UpdatedAt: now}
	if err := in.apply(&a); err != nil {
		return ProductAttribute{}, err
	}
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.mem.products[productID]; !ok {
			return ProductAttribute{}, ErrNotFound
		}
		s.mem.attributes[a.ID] = a
		return a, nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO product_attributes (id, product_id, name, value, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.ProductID, a.Name, a.Value, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isConflict(mapDBError(err)) {
			return ProductAttribute{}, ErrNotFound
		}
		return ProductAttribute{}, wrapf(err, "insert attribute")
	}
	return a, nil
}

const attributeColumns = `id, product_id, name, value, created_at, updated_at`

func scanAttribute(row scanner) (ProductAttribute, error) {
	var a ProductAttribute
	err := row.Scan(&a.ID, &a.ProductID, &a.Name, &a.Value, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *Store) GetAttribute(ctx context.Context, id string) (ProductAttribute, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		a, ok := s.mem.attributes[id]
		if !ok {
			return ProductAttribute{}, ErrNotFound
		}
		return a, nil
	}
	a, err := scanAttribute(s.db.QueryRowContext(ctx, `SELECT `+attributeColumns+` FROM product_attributes WHERE id=$1`, id))
	if err != nil {
		return ProductAttribute{}, wrapf(err, "get attribute %s", id)
	}
	return a, nil
}

// ListAttributes returns a product's attributes in insertion order.
func (s *Store) ListAttributes(ctx context.Context, productID string) ([]ProductAttribute, error) {
	out := make([]ProductAttribute, 0)
	if s.db == nil {
		s.mu.RLock()
		for _, a := range s.mem.attributes {
			if a.ProductID == productID {
				out = append(out, a)
			}
		}
		s.mu.RUnlock()
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attributeColumns+` FROM product_attributes WHERE product_id=$1 ORDER BY created_at, id`, productID)
	if err != nil {
		return nil, wrapf(err, "list attributes")
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanAttribute(rows)
		if err != nil {
			return nil, wrapf(err, "scan attribute")
		}
		out = append(out, a)
	}
	return out, wrapf(rows.Err(), "list attributes")
}

func (s *Store) UpdateAttribute(ctx context.Context, id string, in AttributeInput) (ProductAttribute, error) {
	if in.Name == nil && in.Value == nil {
		return ProductAttribute{}, errEmptyUpdate
	}
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		a, ok := s.mem.attributes[id]
		if !ok {
			return ProductAttribute{}, ErrNotFound
		}
		if err := in.apply(&a); err != nil {
			return ProductAttribute{}, err
		}
		a.UpdatedAt = time.Now().UTC()
		s.mem.attributes[id] = a
		return a, nil
	}
	a, err := s.GetAttribute(ctx, id)
	if err != nil {
		return ProductAttribute{}, err
	}
	if err := in.apply(&a); err != nil {
		return ProductAttribute{}, err
	}
	a.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `UPDATE product_attributes SET name=$2, value=$3, updated_at=$4 WHERE id=$1`,
		a.ID, a.Name, a.Value, a.UpdatedAt)
	if err != nil {
		return ProductAttribute{}, wrapf(err, "update attribute %s", id)
	}
	return a, expectAffected(res)
}

func (s *Store) DeleteAttribute(ctx context.Context, id string) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.mem.attributes[id]; !ok {
			return ErrNotFound
		}
		delete(s.mem.attributes, id)
		return nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM product_attributes WHERE id=$1`, id)
	if err != nil {
		return wrapf(err, "delete attribute %s", id)
	}
	return expectAffected(res)
}
