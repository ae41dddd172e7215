package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Category groups products for browsing.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Brand is a product manufacturer.
type Brand struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaxonomyInput creates or patches a category or brand. Description is
// ignored for categories.
type TaxonomyInput struct {
	Name        *string `json:"name,omitempty"`
	Slug        *string `json:"slug,omitempty"`
	Description *string `json:"description,omitempty"`
}

func titleCase(s string) string {
	return cases.Title(language.English).String(strings.TrimSpace(s))
}

func taxonomyFields(in TaxonomyInput, name, slug string) (string, string, error) {
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
	}
	if in.Slug != nil {
		slug = Slugify(*in.Slug)
	} else if in.Name != nil {
		slug = Slugify(name)
	}
	switch {
	case name == "":
		return "", "", invalidf("name is required")
	case tooLong(name, 100):
		return "", "", invalidf("name must be at most 100 characters")
	case slug == "":
		return "", "", invalidf("slug must contain letters or digits")
	case tooLong(slug, 150):
		return "", "", invalidf("slug must be at most 150 characters")
	}
	return name, slug, nil
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

func (s *Store) CreateCategory(ctx context.Context, in TaxonomyInput) (Category, error) {
	name, slug, err := taxonomyFields(in, "", "")
	if err != nil {
		return Category{}, err
	}
	now := time.Now().UTC()
	c := Category{ID: newID("cat"), Name: name, Slug: slug, CreatedAt: now, UpdatedAt: now}
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, other := range s.mem.categories {
			if other.Slug == slug {
				return Category{}, conflictf("category slug %q already exists", slug)
			}
		}
		s.mem.categories[c.ID] = c
		return c, nil
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO categories (id, name, slug, created_at, updated_at) VALUES ($1,$2,$3,$4,$5)`,
		c.ID, c.Name, c.Slug, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return Category{}, wrapf(err, "insert category")
	}
	return c, nil
}

func scanCategory(row scanner) (Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// GetCategory finds a category by id or slug.
func (s *Store) GetCategory(ctx context.Context, ref string) (Category, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if c, ok := s.mem.categories[ref]; ok {
			return c, nil
		}
		for _, c := range s.mem.categories {
			if c.Slug == ref {
				return c, nil
			}
		}
		return Category{}, ErrNotFound
	}
	c, err := scanCategory(s.db.QueryRowContext(ctx,
		`SELECT id, name, slug, created_at, updated_at FROM categories WHERE id=$1 OR slug=$1 LIMIT 1`, ref))
	if err != nil {
		return Category{}, wrapf(err, "get category %s", ref)
	}
	return c, nil
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	out := make([]Category, 0)
	if s.db == nil {
		s.mu.RLock()
		for _, c := range s.mem.categories {
			out = append(out, c)
		}
		s.mu.RUnlock()
		sortByName(out, func(c Category) (string, string) { return c.Name, c.ID })
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, slug, created_at, updated_at FROM categories ORDER BY name, id`)
	if err != nil {
		return nil, wrapf(err, "list categories")
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, wrapf(err, "scan category")
		}
		out = append(out, c)
	}
	return out, wrapf(rows.Err(), "list categories")
}

func (s *Store) UpdateCategory(ctx context.Context, id string, in TaxonomyInput) (Category, error) {
	if in.Name == nil && in.Slug == nil {
		return Category{}, errEmptyUpdate
	}
	c, err := s.GetCategory(ctx, id)
	if err != nil {
		return Category{}, err
	}
	if c.Name, c.Slug, err = taxonomyFields(in, c.Name, c.Slug); err != nil {
		return Category{}, err
	}
	c.UpdatedAt = time.Now().UTC()
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, other := range s.mem.categories {
			if other.Slug == c.Slug && other.ID != c.ID {
				return Category{}, conflictf("category slug %q already exists", c.Slug)
			}
		}
		s.mem.categories[c.ID] = c
		s.listCache.purge()
		return c, nil
	}
	res, err := s.db.ExecContext(ctx, `UPDATE categories SET name=$2, slug=$3, updated_at=$4 WHERE id=$1`, c.ID, c.Name, c.Slug, c.UpdatedAt)
	if err != nil {
		return Category{}, wrapf(err, "update category %s", id)
	}
	if err := expectAffected(res); err != nil {
		return Category{}, err
	}
	s.listCache.purge()
	return c, nil
}

// DeleteCategory removes a category that no product references.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.mem.categories[id]; !ok {
			return ErrNotFound
		}
		for _, p := range s.mem.products {
			if p.CategoryID == id {
				return conflictf("category still has products")
			}
		}
		delete(s.mem.categories, id)
		return nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id=$1`, id)
	if err != nil {
		return wrapf(err, "delete category %s", id)
	}
	return expectAffected(res)
}

// ResolveCategory finds a category by slug or name, creating it with a
// title-cased name when missing. An empty ref picks the oldest category, or
// creates "Uncategorized" in an empty catalog.
func (s *Store) ResolveCategory(ctx context.Context, ref string) (Category, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		c, err := s.firstCategory(ctx)
		if err == nil || !isNotFound(err) {
			return c, err
		}
		ref = "Uncategorized"
	}
	if c, err := s.findCategory(ctx, ref); err == nil || !isNotFound(err) {
		return c, err
	}
	name := titleCase(ref)
	c, err := s.CreateCategory(ctx, TaxonomyInput{Name: &name})
	if isConflict(err) {
		return s.findCategory(ctx, ref)
	}
	return c, err
}

func (s *Store) findCategory(ctx context.Context, ref string) (Category, error) {
	slug := Slugify(ref)
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, c := range s.mem.categories {
			if c.Slug == slug || strings.EqualFold(c.Name, ref) {
				return c, nil
			}
		}
		return Category{}, ErrNotFound
	}
	c, err := scanCategory(s.db.QueryRowContext(ctx,
		`SELECT id, name, slug, created_at, updated_at FROM categories WHERE slug=$1 OR lower(name)=lower($2) ORDER BY created_at LIMIT 1`, slug, ref))
	if err != nil {
		return Category{}, wrapf(err, "find category %q", ref)
	}
	return c, nil
}

func (s *Store) firstCategory(ctx context.Context) (Category, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		var first Category
		for _, c := range s.mem.categories {
			if first.ID == "" || c.CreatedAt.Before(first.CreatedAt) || (c.CreatedAt.Equal(first.CreatedAt) && c.ID < first.ID) {
				first = c
			}
		}
		if first.ID == "" {
			return Category{}, ErrNotFound
		}
		return first, nil
	}
	c, err := scanCategory(s.db.QueryRowContext(ctx,
		`SELECT id, name, slug, created_at, updated_at FROM categories ORDER BY created_at, id LIMIT 1`))
	if err != nil {
		return Category{}, wrapf(err, "first category")
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Brands
// ---------------------------------------------------------------------------

func (s *Store) CreateBrand(ctx context.Context, in TaxonomyInput) (Brand, error) {
	name, slug, err := taxonomyFields(in, "", "")
	if err != nil {
		return Brand{}, err
	}
	now := time.Now().UTC()
	b := Brand{ID: newID("brd"), Name: name, Slug: slug, CreatedAt: now, UpdatedAt: now}
	if in.Description != nil {
		b.Description = strings.TrimSpace(*in.Description)
	}
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, other := range s.mem.brands {
			if other.Slug == slug {
				return Brand{}, conflictf("brand slug %q already exists", slug)
			}
		}
		s.mem.brands[b.ID] = b
		return b, nil
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO brands (id, name, slug, description, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		b.ID, b.Name, b.Slug, nilIfEmpty(b.Description), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return Brand{}, wrapf(err, "insert brand")
	}
	return b, nil
}

const brandColumns = `id, name, slug, description, created_at, updated_at`

func scanBrand(row scanner) (Brand, error) {
	var b Brand
	var desc sql.NullString
	if err := row.Scan(&b.ID, &b.Name, &b.Slug, &desc, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return Brand{}, err
	}
	b.Description = desc.String
	return b, nil
}

// GetBrand finds a brand by id or slug.
func (s *Store) GetBrand(ctx context.Context, ref string) (Brand, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if b, ok := s.mem.brands[ref]; ok {
			return b, nil
		}
		for _, b := range s.mem.brands {
			if b.Slug == ref {
				return b, nil
			}
		}
		return Brand{}, ErrNotFound
	}
	b, err := scanBrand(s.db.QueryRowContext(ctx, `SELECT `+brandColumns+` FROM brands WHERE id=$1 OR slug=$1 LIMIT 1`, ref))
	if err != nil {
		return Brand{}, wrapf(err, "get brand %s", ref)
	}
	return b, nil
}

func (s *Store) ListBrands(ctx context.Context) ([]Brand, error) {
	out := make([]Brand, 0)
	if s.db == nil {
		s.mu.RLock()
		for _, b := range s.mem.brands {
			out = append(out, b)
		}
		s.mu.RUnlock()
		sortByName(out, func(b Brand) (string, string) { return b.Name, b.ID })
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+brandColumns+` FROM brands ORDER BY name, id`)
	if err != nil {
		return nil, wrapf(err, "list brands")
	}
	defer rows.Close()
	for rows.Next() {
		b, err := scanBrand(rows)
		if err != nil {
			return nil, wrapf(err, "scan brand")
		}
		out = append(out, b)
	}
	return out, wrapf(rows.Err(), "list brands")
}

func (s *Store) UpdateBrand(ctx context.Context, id string, in TaxonomyInput) (Brand, error) {
	if in.Name == nil && in.Slug == nil && in.Description == nil {
		return Brand{}, errEmptyUpdate
	}
	b, err := s.GetBrand(ctx, id)
	if err != nil {
		return Brand{}, err
	}
	if b.Name, b.Slug, err = taxonomyFields(in, b.Name, b.Slug); err != nil {
		return Brand{}, err
	}
	if in.Description != nil {
		b.Description = strings.TrimSpace(*in.Description)
	}
	b.UpdatedAt = time.Now().UTC()
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, other := range s.mem.brands {
			if other.Slug == b.Slug && other.ID != b.ID {
				return Brand{}, conflictf("brand slug %q already exists", b.Slug)
			}
		}
		s.mem.brands[b.ID] = b
		return b, nil
	}
	res, err := s.db.ExecContext(ctx, `UPDATE brands SET name=$2, slug=$3, description=$4, updated_at=$5 WHERE id=$1`,
		b.ID, b.Name, b.Slug, nilIfEmpty(b.Description), b.UpdatedAt)
	if err != nil {
		return Brand{}, wrapf(err, "update brand %s", id)
	}
	return b, expectAffected(res)
}

// DeleteBrand removes a brand that no product references.
func (s *Store) DeleteBrand(ctx context.Context, id string) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.mem.brands[id]; !ok {
			return ErrNotFound
		}
		for _, p := range s.mem.products {
			if p.BrandID == id {
				return conflictf("brand still has products")
			}
		}
		delete(s.mem.brands, id)
		return nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM brands WHERE id=$1`, id)
	if err != nil {
		return wrapf(err, "delete brand %s", id)
	}
	return expectAffected(res)
}

// ResolveBrand mirrors ResolveCategory; the empty-catalog fallback is "Generic".
func (s *Store) ResolveBrand(ctx context.Context, ref string) (Brand, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		b, err := s.firstBrand(ctx)
		if err == nil || !isNotFound(err) {
			return b, err
		}
		ref = "Generic"
	}
	if b, err := s.findBrand(ctx, ref); err == nil || !isNotFound(err) {
		return b, err
	}
	name := titleCase(ref)
	b, err := s.CreateBrand(ctx, TaxonomyInput{Name: &name})
	if isConflict(err) {
		return s.findBrand(ctx, ref)
	}
	return b, err
}

func (s *Store) findBrand(ctx context.Context, ref string) (Brand, error) {
	slug := Slugify(ref)
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, b := range s.mem.brands {
			if b.Slug == slug || strings.EqualFold(b.Name, ref) {
				return b, nil
			}
		}
		return Brand{}, ErrNotFound
	}
	b, err := scanBrand(s.db.QueryRowContext(ctx,
		`SELECT `+brandColumns+` FROM brands WHERE slug=$1 OR lower(name)=lower($2) ORDER BY created_at LIMIT 1`, slug, ref))
	if err != nil {
		return Brand{}, wrapf(err, "find brand %q", ref)
	}
	return b, nil
}

func (s *Store) firstBrand(ctx context.Context) (Brand, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		var first Brand
		for _, b := range s.mem.brands {
			if first.ID == "" || b.CreatedAt.Before(first.CreatedAt) || (b.CreatedAt.Equal(first.CreatedAt) && b.ID < first.ID) {
				first = b
			}
		}
		if first.ID == "" {
			return Brand{}, ErrNotFound
		}
		return first, nil
	}
	b, err := scanBrand(s.db.QueryRowContext(ctx, `SELECT `+brandColumns+` FROM brands ORDER BY created_at, id LIMIT 1`))
	if err != nil {
		return Brand{}, wrapf(err, "first brand")
	}
	return b, nil
}
