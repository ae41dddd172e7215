package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"techverse/marketplace/internal/inventory"
)

// Product is a listing owned by a seller. Stock is the sum of its variants'
// stock and is never stored on the product row.
type Product struct {
	ID           string          `json:"id"`
	CategoryID   string          `json:"category_id"`
	BrandID      string          `json:"brand_id"`
	UserID       string          `json:"user_id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	Description  string          `json:"description,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	ImageURL     string          `json:"image_url,omitempty"`
	TrackingLink string          `json:"tracking_link,omitempty"`
	IsSold       bool            `json:"is_sold"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Purchasable reports whether the product can be put in a basket.
func (p Product) Purchasable() bool { return p.IsActive && !p.IsSold }

// ProductFilter narrows ListProducts. CategoryID and BrandID accept ids or slugs.
type ProductFilter struct {
	CategoryID string
	BrandID    string
	OwnerID    string
	Query      string
	PublicOnly bool
	Cursor     string
	Limit      int
}

// NewProduct is the input for CreateProduct. Category and Brand are slugs or
// names; ImagePaths are already-stored media paths or remote URLs.
type NewProduct struct {
	Name         string
	Description  string
	SKU          string
	Category     string
	Brand        string
	Price        decimal.Decimal
	Stock        int
	TrackingLink string
	ImagePaths   []string
}

// ProductUpdate patches a product. Price and Stock are written through to the
// default variant.
type ProductUpdate struct {
	Name         *string          `json:"name,omitempty"`
	Description  *string          `json:"description,omitempty"`
	TrackingLink *string          `json:"tracking_link,omitempty"`
	IsSold       *bool            `json:"is_sold,omitempty"`
	IsActive     *bool            `json:"is_active,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Stock        *int             `json:"stock,omitempty"`
}

func (u ProductUpdate) empty() bool {
	return u.Name == nil && u.Description == nil && u.TrackingLink == nil &&
		u.IsSold == nil && u.IsActive == nil && u.Price == nil && u.Stock == nil
}

// ProductDetail is a product with everything the product page shows.
type ProductDetail struct {
	Product
	Category   *Category          `json:"category,omitempty"`
	Brand      *Brand             `json:"brand,omitempty"`
	Images     []ProductImage     `json:"images"`
	Attributes []ProductAttribute `json:"attributes"`
	Variants   []Variant          `json:"variants"`
	Reviews    ReviewSummary      `json:"review_summary"`
}

func validateProduct(p Product) error {
	switch {
	case p.Name == "":
		return invalidf("name is required")
	case tooLong(p.Name, 255):
		return invalidf("name must be at most 255 characters")
	case tooLong(p.Description, 5000):
		return invalidf("description must be at most 5000 characters")
	case tooLong(p.SKU, 64):
		return invalidf("sku must be at most 64 characters")
	case tooLong(p.TrackingLink, 500):
		return invalidf("tracking_link must be at most 500 characters")
	case p.Price.IsNegative():
		return invalidf("price must not be negative")
	}
	return nil
}

func generateSKU() string {
	return "TV-" + strings.ToUpper(randomHex(4))
}

// CreateProduct lists a new product for ownerID together with its default
// variant and images.
func (s *Store) CreateProduct(ctx context.Context, ownerID string, in NewProduct) (Product, error) {
	now := time.Now().UTC()
	p := Product{
		ID:           newID("prd"),
		UserID:       ownerID,
		SKU:          strings.TrimSpace(in.SKU),
		Name:         strings.TrimSpace(in.Name),
		Description:  strings.TrimSpace(in.Description),
		Price:        in.Price.Round(2),
		TrackingLink: strings.TrimSpace(in.TrackingLink),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if p.SKU == "" {
		p.SKU = generateSKU()
	}
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}
	if in.Stock < 0 {
		return Product{}, invalidf("stock must not be negative")
	}
	p.Slug = Slugify(p.Name)
	if p.Slug == "" {
		p.Slug = "product"
	}

	cat, err := s.ResolveCategory(ctx, in.Category)
	if err != nil {
		return Product{}, err
	}
	brand, err := s.ResolveBrand(ctx, in.Brand)
	if err != nil {
		return Product{}, err
	}
	p.CategoryID, p.BrandID = cat.ID, brand.ID

	v := Variant{
		ID:        newID("var"),
		ProductID: p.ID,
		SKU:       p.SKU,
		Label:     "Default",
		Price:     p.Price,
		StockQty:  in.Stock,
		IsDefault: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	images := make([]ProductImage, 0, len(in.ImagePaths))
	for i, path := range in.ImagePaths {
		images = append(images, ProductImage{
			ID:        newID("img"),
			ProductID: p.ID,
			ImagePath: path,
			IsPrimary: i == 0,
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		})
	}
	if len(images) > 0 {
		p.ImageURL = images[0].ImagePath
	}
	var initial *StockMovement
	if in.Stock > 0 {
		m := newMovement(v.ID, in.Stock, inventory.MovementRestock, "Initial stock", ownerID)
		initial = &m
	}

	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		base := p.Slug
		for s.mem.slugTaken(p.Slug) {
			p.Slug = base + "-" + randomHex(3)
		}
		if s.mem.skuTaken(p.SKU) {
			return Product{}, conflictf("sku %q already exists", p.SKU)
		}
		s.mem.products[p.ID] = p
		s.mem.variants[v.ID] = v
		for _, img := range images {
			s.mem.images[img.ID] = img
		}
		if initial != nil {
			s.mem.movements[initial.ID] = *initial
		}
		s.listCache.purge()
		p.Stock = in.Stock
		return p, nil
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		base := p.Slug
		for {
			var taken bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE slug=$1)`, p.Slug).Scan(&taken); err != nil {
				return wrapf(err, "check slug")
			}
			if !taken {
				break
			}
			p.Slug = base + "-" + randomHex(3)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO products (id, category_id, brand_id, user_id, sku, name, slug, description, price, image_url, tracking_link, is_sold, is_active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			p.ID, p.CategoryID, p.BrandID, p.UserID, p.SKU, p.Name, p.Slug, nilIfEmpty(p.Description), p.Price,
			nilIfEmpty(p.ImageURL), nilIfEmpty(p.TrackingLink), p.IsSold, p.IsActive, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			if isConflict(mapDBError(err)) {
				return conflictf("sku %q already exists", p.SKU)
			}
			return wrapf(err, "insert product")
		}
		if err := insertVariant(ctx, tx, v); err != nil {
			return err
		}
		for _, img := range images {
			if err := insertImage(ctx, tx, img); err != nil {
				return err
			}
		}
		if initial != nil {
			return insertMovement(ctx, tx, *initial)
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.listCache.purge()
	p.Stock = in.Stock
	return p, nil
}

func (m *memory) slugTaken(slug string) bool {
	for _, p := range m.products {
		if p.Slug == slug {
			return true
		}
	}
	return false
}

func (m *memory) skuTaken(sku string) bool {
	for _, v := range m.variants {
		if strings.EqualFold(v.SKU, sku) {
			return true
		}
	}
	for _, p := range m.products {
		if strings.EqualFold(p.SKU, sku) {
			return true
		}
	}
	return false
}

func (m *memory) productStock(productID string) int {
	total := 0
	for _, v := range m.variants {
		if v.ProductID == productID {
			total += v.StockQty
		}
	}
	return total
}

func (m *memory) defaultVariant(productID string) (Variant, bool) {
	for _, v := range m.variants {
		if v.ProductID == productID && v.IsDefault {
			return v, true
		}
	}
	return Variant{}, false
}

const productColumns = `p.id, p.category_id, p.brand_id, p.user_id, p.sku, p.name, p.slug, p.description, p.price,
	p.image_url, p.tracking_link, p.is_sold, p.is_active, p.created_at, p.updated_at,
	COALESCE((SELECT SUM(v.stock_qty) FROM product_variants v WHERE v.product_id = p.id), 0)`

func scanProduct(row scanner) (Product, error) {
	var p Product
	var desc, image, tracking sql.NullString
	if err := row.Scan(&p.ID, &p.CategoryID, &p.BrandID, &p.UserID, &p.SKU, &p.Name, &p.Slug, &desc, &p.Price,
		&image, &tracking, &p.IsSold, &p.IsActive, &p.CreatedAt, &p.UpdatedAt, &p.Stock); err != nil {
		return Product{}, err
	}
	p.Description = desc.String
	p.ImageURL = image.String
	p.TrackingLink = tracking.String
	return p, nil
}

// GetProduct loads a product by id or slug.
func (s *Store) GetProduct(ctx context.Context, ref string) (Product, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		p, ok := s.mem.products[ref]
		if !ok {
			for _, candidate := range s.mem.products {
				if candidate.Slug == ref {
					p, ok = candidate, true
					break
				}
			}
		}
		if !ok {
			return Product{}, ErrNotFound
		}
		p.Stock = s.mem.productStock(p.ID)
		return p, nil
	}
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id=$1 OR p.slug=$1 LIMIT 1`, ref))
	if err != nil {
		return Product{}, wrapf(err, "get product %s", ref)
	}
	return p, nil
}

// ProductDetail loads a product with its category, brand, images, attributes,
// variants and review summary.
func (s *Store) ProductDetail(ctx context.Context, ref string) (ProductDetail, error) {
	p, err := s.GetProduct(ctx, ref)
	if err != nil {
		return ProductDetail{}, err
	}
	d := ProductDetail{Product: p}
	if c, err := s.GetCategory(ctx, p.CategoryID); err == nil {
		d.Category = &c
	} else if !isNotFound(err) {
		return ProductDetail{}, err
	}
	if b, err := s.GetBrand(ctx, p.BrandID); err == nil {
		d.Brand = &b
	} else if !isNotFound(err) {
		return ProductDetail{}, err
	}
	if d.Images, err = s.ListProductImages(ctx, p.ID); err != nil {
		return ProductDetail{}, err
	}
	if d.Attributes, err = s.ListAttributes(ctx, p.ID); err != nil {
		return ProductDetail{}, err
	}
	if d.Variants, err = s.ListVariants(ctx, p.ID); err != nil {
		return ProductDetail{}, err
	}
	if d.Reviews, err = s.ReviewSummary(ctx, p.ID); err != nil {
		return ProductDetail{}, err
	}
	return d, nil
}

// ListProducts returns one page of products, newest first. Cursor-less pages
// are cached until the next catalog write.
func (s *Store) ListProducts(ctx context.Context, f ProductFilter) (Page[Product], error) {
	limit := clampLimit(f.Limit)
	f.Query = strings.ToLower(strings.TrimSpace(f.Query))
	key := productCacheKey(f, limit)
	cached, gen, ok := s.listCache.get(key)
	if ok && f.Cursor == "" {
		cached.Cached = true
		return cached, nil
	}

	var page Page[Product]
	var err error
	if s.db == nil {
		page, err = s.listProductsMemory(f, limit)
	} else {
		page, err = s.listProductsSQL(ctx, f, limit)
	}
	if err != nil {
		return Page[Product]{}, err
	}
	if f.Cursor == "" {
		s.listCache.set(key, page, gen)
	}
	return page, nil
}

func productKey(p Product) (time.Time, string) { return p.CreatedAt, p.ID }

func (s *Store) listProductsMemory(f ProductFilter, limit int) (Page[Product], error) {
	s.mu.RLock()
	catID := f.CategoryID
	if c, ok := s.lookupCategoryLocked(f.CategoryID); ok {
		catID = c
	}
	brandID := f.BrandID
	if b, ok := s.lookupBrandLocked(f.BrandID); ok {
		brandID = b
	}
	items := make([]Product, 0)
	for _, p := range s.mem.products {
		switch {
		case f.PublicOnly && !p.Purchasable():
			continue
		case f.OwnerID != "" && p.UserID != f.OwnerID:
			continue
		case catID != "" && p.CategoryID != catID:
			continue
		case brandID != "" && p.BrandID != brandID:
			continue
		case f.Query != "" && !strings.Contains(strings.ToLower(p.Name), f.Query) &&
			!strings.Contains(strings.ToLower(p.Description), f.Query):
			continue
		}
		p.Stock = s.mem.productStock(p.ID)
		items = append(items, p)
	}
	s.mu.RUnlock()
	return paginate(items, productKey, f.Cursor, limit)
}

func (s *Store) lookupCategoryLocked(ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	for _, c := range s.mem.categories {
		if c.ID == ref || c.Slug == ref {
			return c.ID, true
		}
	}
	return "", false
}

func (s *Store) lookupBrandLocked(ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	for _, b := range s.mem.brands {
		if b.ID == ref || b.Slug == ref {
			return b.ID, true
		}
	}
	return "", false
}

func productWhere(f ProductFilter) (*where, error) {
	w := &where{}
	if f.PublicOnly {
		w.and("p.is_active AND NOT p.is_sold")
	}
	if f.OwnerID != "" {
		w.and("p.user_id = " + w.arg(f.OwnerID))
	}
	if f.CategoryID != "" {
		n := w.arg(f.CategoryID)
		w.and("p.category_id IN (SELECT id FROM categories WHERE id = " + n + " OR slug = " + n + ")")
	}
	if f.BrandID != "" {
		n := w.arg(f.BrandID)
		w.and("p.brand_id IN (SELECT id FROM brands WHERE id = " + n + " OR slug = " + n + ")")
	}
	if f.Query != "" {
		n := w.arg("%" + f.Query + "%")
		w.and("(p.name ILIKE " + n + " OR p.description ILIKE " + n + ")")
	}
	if err := w.keyset("p.", f.Cursor); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Store) listProductsSQL(ctx context.Context, f ProductFilter, limit int) (Page[Product], error) {
	w, err := productWhere(f)
	if err != nil {
		return Page[Product]{}, err
	}
	q := `SELECT ` + productColumns + ` FROM products p ` + w.String() +
		` ORDER BY p.created_at DESC, p.id DESC LIMIT ` + w.arg(limit+1)
	rows, err := s.db.QueryContext(ctx, q, w.args...)
	if err != nil {
		return Page[Product]{}, wrapf(err, "list products")
	}
	defer rows.Close()
	items := make([]Product, 0, limit+1)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return Page[Product]{}, wrapf(err, "scan product")
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return Page[Product]{}, wrapf(err, "list products")
	}
	return cutPage(items, productKey, limit), nil
}

// ExplainProducts returns the query plan of the listing query for f.
func (s *Store) ExplainProducts(ctx context.Context, f ProductFilter) (any, error) {
	if s.db == nil {
		return map[string]any{"mode": ModeMemory, "note": "no SQL plan available"}, nil
	}
	f.Query = strings.ToLower(strings.TrimSpace(f.Query))
	w, err := productWhere(f)
	if err != nil {
		return nil, err
	}
	q := `EXPLAIN (ANALYZE FALSE, FORMAT JSON) SELECT ` + productColumns + ` FROM products p ` + w.String() +
		` ORDER BY p.created_at DESC, p.id DESC LIMIT ` + w.arg(clampLimit(f.Limit)+1)
	var raw []byte
	if err := s.db.QueryRowContext(ctx, q, w.args...).Scan(&raw); err != nil {
		return nil, wrapf(err, "explain products")
	}
	var plan any
	if err := json.Unmarshal(raw, &plan); err != nil {
		return string(raw), nil
	}
	return plan, nil
}

// UpdateProduct patches a product. actorID is recorded on any stock movement.
func (s *Store) UpdateProduct(ctx context.Context, id, actorID string, u ProductUpdate) (Product, error) {
	if u.empty() {
		return Product{}, errEmptyUpdate
	}
	if u.Stock != nil && *u.Stock < 0 {
		return Product{}, invalidf("stock must not be negative")
	}
	now := time.Now().UTC()
	apply := func(p *Product) error {
		if u.Name != nil {
			p.Name = strings.TrimSpace(*u.Name)
		}
		if u.Description != nil {
			p.Description = strings.TrimSpace(*u.Description)
		}
		if u.TrackingLink != nil {
			p.TrackingLink = strings.TrimSpace(*u.TrackingLink)
		}
		if u.IsSold != nil {
			p.IsSold = *u.IsSold
		}
		if u.IsActive != nil {
			p.IsActive = *u.IsActive
		}
		if u.Price != nil {
			p.Price = u.Price.Round(2)
		}
		p.UpdatedAt = now
		return validateProduct(*p)
	}

	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		p, ok := s.mem.products[id]
		if !ok {
			return Product{}, ErrNotFound
		}
		if err := apply(&p); err != nil {
			return Product{}, err
		}
		if v, ok := s.mem.defaultVariant(id); ok && (u.Price != nil || u.Stock != nil) {
			if u.Price != nil {
				v.Price = p.Price
			}
			if u.Stock != nil && *u.Stock != v.StockQty {
				m := newMovement(v.ID, *u.Stock-v.StockQty, inventory.MovementAdjustment, "Product stock updated", actorID)
				s.mem.movements[m.ID] = m
				v.StockQty = *u.Stock
			}
			v.UpdatedAt = now
			s.mem.variants[v.ID] = v
		}
		s.mem.products[id] = p
		s.listCache.purge()
		p.Stock = s.mem.productStock(id)
		return p, nil
	}

	var out Product
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := scanProduct(tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id=$1 FOR UPDATE OF p`, id))
		if err != nil {
			return wrapf(err, "load product %s", id)
		}
		if err := apply(&p); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE products SET name=$2, description=$3, tracking_link=$4, is_sold=$5, is_active=$6, price=$7, updated_at=$8 WHERE id=$1`,
			p.ID, p.Name, nilIfEmpty(p.Description), nilIfEmpty(p.TrackingLink), p.IsSold, p.IsActive, p.Price, p.UpdatedAt)
		if err != nil {
			return wrapf(err, "update product %s", id)
		}
		if u.Price != nil || u.Stock != nil {
			var variantID string
			var qty int
			err := tx.QueryRowContext(ctx,
				`SELECT id, stock_qty FROM product_variants WHERE product_id=$1 AND is_default FOR UPDATE`, id).Scan(&variantID, &qty)
			switch {
			case isNotFound(mapDBError(err)):
			case err != nil:
				return wrapf(err, "load default variant")
			default:
				newQty := qty
				if u.Stock != nil {
					newQty = *u.Stock
				}
				if _, err := tx.ExecContext(ctx, `UPDATE product_variants SET price=$2, stock_qty=$3, updated_at=$4 WHERE id=$1`,
					variantID, p.Price, newQty, now); err != nil {
					return wrapf(err, "update default variant")
				}
				if newQty != qty {
					if err := insertMovement(ctx, tx, newMovement(variantID, newQty-qty, inventory.MovementAdjustment, "Product stock updated", actorID)); err != nil {
						return err
					}
					p.Stock += newQty - qty
				}
			}
		}
		out = p
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.listCache.purge()
	return out, nil
}

// DeleteProduct removes a product with its variants, images, attributes and
// reviews. It returns the removed image paths so stored media can be cleaned.
func (s *Store) DeleteProduct(ctx context.Context, id string) ([]string, error) {
	paths := make([]string, 0)
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.mem.products[id]; !ok {
			return nil, ErrNotFound
		}
		for vid, v := range s.mem.variants {
			if v.ProductID != id {
				continue
			}
			for iid, it := range s.mem.items {
				if it.VariantID == vid {
					delete(s.mem.items, iid)
				}
			}
			delete(s.mem.variants, vid)
		}
		for iid, img := range s.mem.images {
			if img.ProductID == id {
				paths = append(paths, img.ImagePath)
				delete(s.mem.images, iid)
			}
		}
		for aid, a := range s.mem.attributes {
			if a.ProductID == id {
				delete(s.mem.attributes, aid)
			}
		}
		for rid, r := range s.mem.reviews {
			if r.ProductID == id {
				delete(s.mem.reviews, rid)
			}
		}
		delete(s.mem.products, id)
		s.listCache.purge()
		return paths, nil
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT image_path FROM product_images WHERE product_id=$1`, id)
		if err != nil {
			return wrapf(err, "list product images")
		}
		for rows.Next() {
			var path string
			if err := rows.Scan(&path); err != nil {
				rows.Close()
				return wrapf(err, "scan image path")
			}
			paths = append(paths, path)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return wrapf(err, "list product images")
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id=$1`, id)
		if err != nil {
			return wrapf(err, "delete product %s", id)
		}
		return expectAffected(res)
	})
	if err != nil {
		return nil, err
	}
	s.listCache.purge()
	return paths, nil
}
