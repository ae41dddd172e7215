package store

import (
	"context"
	"embed"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed seed/default.yaml
var seedFS embed.FS

// SeedData is the YAML document accepted by Seed.
type SeedData struct {
	Categories []SeedTaxon   `yaml:"categories"`
	Brands     []SeedTaxon   `yaml:"brands"`
	Users      []SeedUser    `yaml:"users"`
	Products   []SeedProduct `yaml:"products"`
}

type SeedTaxon struct {
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
}

type SeedUser struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// SeedProduct is listed by the user whose email is Owner.
type SeedProduct struct {
	Owner       string            `yaml:"owner"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	SKU         string            `yaml:"sku"`
	Category    string            `yaml:"category"`
	Brand       string            `yaml:"brand"`
	Price       string            `yaml:"price"`
	Stock       int               `yaml:"stock"`
	Images      []string          `yaml:"images"`
	Attributes  map[string]string `yaml:"attributes"`
}

// SeedResult counts what Seed created; existing rows are skipped.
type SeedResult struct {
	Categories int `json:"categories"`
	Brands     int `json:"brands"`
	Users      int `json:"users"`
	Products   int `json:"products"`
}

// ParseSeed decodes a seed document, rejecting unknown keys.
func ParseSeed(r io.Reader) (SeedData, error) {
	var data SeedData
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&data); err != nil && !errors.Is(err, io.EOF) {
		return SeedData{}, errors.Wrap(err, "decode seed data")
	}
	return data, nil
}

// DefaultSeed is the baseline catalog shipped with the binary.
func DefaultSeed() (SeedData, error) {
	f, err := seedFS.Open("seed/default.yaml")
	if err != nil {
		return SeedData{}, errors.Wrap(err, "open default seed")
	}
	defer f.Close()
	return ParseSeed(f)
}

// Seed loads data idempotently: categories and brands are matched by slug or
// name, users by email and products by owner and name.
func (s *Store) Seed(ctx context.Context, data SeedData) (SeedResult, error) {
	var res SeedResult
	for _, c := range data.Categories {
		if _, err := s.findCategory(ctx, c.Name); err == nil {
			continue
		} else if !isNotFound(err) {
			return res, err
		}
		in := TaxonomyInput{Name: &c.Name}
		if c.Slug != "" {
			in.Slug = &c.Slug
		}
		if _, err := s.CreateCategory(ctx, in); err != nil {
			return res, errors.Wrapf(err, "seed category %q", c.Name)
		}
		res.Categories++
	}
	for _, b := range data.Brands {
		if _, err := s.findBrand(ctx, b.Name); err == nil {
			continue
		} else if !isNotFound(err) {
			return res, err
		}
		in := TaxonomyInput{Name: &b.Name, Description: &b.Description}
		if b.Slug != "" {
			in.Slug = &b.Slug
		}
		if _, err := s.CreateBrand(ctx, in); err != nil {
			return res, errors.Wrapf(err, "seed brand %q", b.Name)
		}
		res.Brands++
	}
	for _, u := range data.Users {
		if _, err := s.GetUserByEmail(ctx, u.Email); err == nil {
			continue
		} else if !isNotFound(err) {
			return res, err
		}
		if _, err := s.CreateUser(ctx, NewUser{Username: u.Username, Email: u.Email, Password: u.Password, Role: u.Role}); err != nil {
			return res, errors.Wrapf(err, "seed user %q", u.Email)
		}
		res.Users++
	}
	for _, p := range data.Products {
		created, err := s.seedProduct(ctx, p)
		if err != nil {
			return res, errors.Wrapf(err, "seed product %q", p.Name)
		}
		if created {
			res.Products++
		}
	}
	return res, nil
}

func (s *Store) seedProduct(ctx context.Context, sp SeedProduct) (bool, error) {
	owner, err := s.GetUserByEmail(ctx, sp.Owner)
	if isNotFound(err) {
		return false, invalidf("owner %q does not exist", sp.Owner)
	}
	if err != nil {
		return false, err
	}
	exists, err := s.ownerHasProduct(ctx, owner.ID, sp.Name)
	if err != nil || exists {
		return false, err
	}
	price := decimal.Zero
	if sp.Price != "" {
		if price, err = decimal.NewFromString(sp.Price); err != nil {
			return false, invalidf("price %q is not a number", sp.Price)
		}
	}
	p, err := s.CreateProduct(ctx, owner.ID, NewProduct{
		Name:        sp.Name,
		Description: sp.Description,
		SKU:         sp.SKU,
		Category:    sp.Category,
		Brand:       sp.Brand,
		Price:       price,
		Stock:       sp.Stock,
		ImagePaths:  sp.Images,
	})
	if err != nil {
		return false, err
	}
	for name, value := range sp.Attributes {
		if _, err := s.CreateAttribute(ctx, p.ID, AttributeInput{Name: &name, Value: &value}); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *Store) ownerHasProduct(ctx context.Context, ownerID, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, p := range s.mem.products {
			if p.UserID == ownerID && strings.EqualFold(p.Name, name) {
				return true, nil
			}
		}
		return false, nil
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE user_id=$1 AND lower(name)=lower($2))`, ownerID, name).Scan(&exists)
	return exists, wrapf(err, "check product")
}
