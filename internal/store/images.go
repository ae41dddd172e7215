package store

import (
	"context"
	"database/sql"
	"sort"
	"time"
)

// ProductImage is a stored media path or remote URL shown on a product page.
type ProductImage struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	ImagePath string    `json:"image_path"`
	IsPrimary bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
}

func insertImage(ctx context.Context, tx *sql.Tx, img ProductImage) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO product_images (id, product_id, image_path, is_primary, created_at) VALUES ($1,$2,$3,$4,$5)`,
		img.ID, img.ProductID, img.ImagePath, img.IsPrimary, img.CreatedAt)
	return wrapf(err, "insert product image")
}

// AddProductImages attaches images to a product. When the product has no
// primary image yet, the first new one becomes primary and the product's
// image_url.
func (s *Store) AddProductImages(ctx context.Context, productID string, paths []string) ([]ProductImage, error) {
	if len(paths) == 0 {
		return nil, invalidf("at least one image is required")
	}
	now := time.Now().UTC()
	images := make([]ProductImage, 0, len(paths))
	for i, path := range paths {
		images = append(images, ProductImage{
			ID:        newID("img"),
			ProductID: productID,
			ImagePath: path,
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		})
	}

	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		p, ok := s.mem.products[productID]
		if !ok {
			return nil, ErrNotFound
		}
		hasPrimary := false
		for _, img := range s.mem.images {
			if img.ProductID == productID && img.IsPrimary {
				hasPrimary = true
				break
			}
		}
		if !hasPrimary {
			images[0].IsPrimary = true
			p.ImageURL = images[0].ImagePath
			p.UpdatedAt = now
			s.mem.products[productID] = p
		}
		for _, img := range images {
			s.mem.images[img.ID] = img
		}
		s.listCache.purge()
		return images, nil
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var hasPrimary bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM product_images WHERE product_id=$1 AND is_primary) FROM products WHERE id=$1 FOR UPDATE`, productID).
			Scan(&hasPrimary)
		if err != nil {
			return wrapf(err, "load product %s", productID)
		}
		if !hasPrimary {
			images[0].IsPrimary = true
			if _, err := tx.ExecContext(ctx, `UPDATE products SET image_url=$2, updated_at=$3 WHERE id=$1`,
				productID, images[0].ImagePath, now); err != nil {
				return wrapf(err, "set product image")
			}
		}
		for _, img := range images {
			if err := insertImage(ctx, tx, img); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.listCache.purge()
	return images, nil
}

func scanImage(row scanner) (ProductImage, error) {
	var img ProductImage
	err := row.Scan(&img.ID, &img.ProductID, &img.ImagePath, &img.IsPrimary, &img.CreatedAt)
	return img, err
}

// ListProductImages returns a product's images, primary first.
func (s *Store) ListProductImages(ctx context.Context, productID string) ([]ProductImage, error) {
	out := make([]ProductImage, 0)
	if s.db == nil {
		s.mu.RLock()
		for _, img := range s.mem.images {
			if img.ProductID == productID {
				out = append(out, img)
			}
		}
		s.mu.RUnlock()
		sortImages(out)
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, image_path, is_primary, created_at FROM product_images WHERE product_id=$1 ORDER BY is_primary DESC, created_at, id`, productID)
	if err != nil {
		return nil, wrapf(err, "list product images")
	}
	defer rows.Close()
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, wrapf(err, "scan product image")
		}
		out = append(out, img)
	}
	return out, wrapf(rows.Err(), "list product images")
}

func sortImages(list []ProductImage) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].IsPrimary != list[j].IsPrimary {
			return list[i].IsPrimary
		}
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

func (s *Store) GetProductImage(ctx context.Context, id string) (ProductImage, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		img, ok := s.mem.images[id]
		if !ok {
			return ProductImage{}, ErrNotFound
		}
		return img, nil
	}
	img, err := scanImage(s.db.QueryRowContext(ctx,
		`SELECT id, product_id, image_path, is_primary, created_at FROM product_images WHERE id=$1`, id))
	if err != nil {
		return ProductImage{}, wrapf(err, "get product image %s", id)
	}
	return img, nil
}

// DeleteProductImage removes an image. Removing the primary image promotes
// the oldest remaining one, or clears the product's image_url.
func (s *Store) DeleteProductImage(ctx context.Context, id string) (ProductImage, error) {
	now := time.Now().UTC()
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		img, ok := s.mem.images[id]
		if !ok {
			return ProductImage{}, ErrNotFound
		}
		delete(s.mem.images, id)
		if img.IsPrimary {
			rest := make([]ProductImage, 0)
			for _, other := range s.mem.images {
				if other.ProductID == img.ProductID {
					rest = append(rest, other)
				}
			}
			sortImages(rest)
			nextPath := ""
			if len(rest) > 0 {
				rest[0].IsPrimary = true
				s.mem.images[rest[0].ID] = rest[0]
				nextPath = rest[0].ImagePath
			}
			if p, ok := s.mem.products[img.ProductID]; ok {
				p.ImageURL = nextPath
				p.UpdatedAt = now
				s.mem.products[p.ID] = p
			}
		}
		s.listCache.purge()
		return img, nil
	}

	var out ProductImage
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		img, err := scanImage(tx.QueryRowContext(ctx,
			`DELETE FROM product_images WHERE id=$1 RETURNING id, product_id, image_path, is_primary, created_at`, id))
		if err != nil {
			return wrapf(err, "delete product image %s", id)
		}
		out = img
		if !img.IsPrimary {
			return nil
		}
		var nextID, nextPath sql.NullString
		err = tx.QueryRowContext(ctx,
			`SELECT id, image_path FROM product_images WHERE product_id=$1 ORDER BY created_at, id LIMIT 1`, img.ProductID).
			Scan(&nextID, &nextPath)
		if err != nil && !isNotFound(mapDBError(err)) {
			return wrapf(err, "next primary image")
		}
		if nextID.Valid {
			if _, err := tx.ExecContext(ctx, `UPDATE product_images SET is_primary=TRUE WHERE id=$1`, nextID.String); err != nil {
				return wrapf(err, "promote image")
			}
		}
		_, err = tx.ExecContext(ctx, `UPDATE products SET image_url=$2, updated_at=$3 WHERE id=$1`,
			img.ProductID, nilIfEmpty(nextPath.String), now)
		return wrapf(err, "update product image")
	})
	if err != nil {
		return ProductImage{}, err
	}
	s.listCache.purge()
	return out, nil
}
