package store

import (
	"context"
	"database/sql"
	"math"
	"strings"
	"time"
)

// Review is one user's rating of a product.
type Review struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReviewSummary aggregates a product's ratings.
type ReviewSummary struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

type ReviewInput struct {
	Rating  *int    `json:"rating,omitempty"`
	Comment *string `json:"comment,omitempty"`
}

func (in ReviewInput) apply(r *Review) error {
	if in.Rating != nil {
		r.Rating = *in.Rating
	}
	if in.Comment != nil {
		r.Comment = strings.TrimSpace(*in.Comment)
	}
	switch {
	case r.Rating < 1 || r.Rating > 5:
		return invalidf("rating must be between 1 and 5")
	case tooLong(r.Comment, 2000):
		return invalidf("comment must be at most 2000 characters")
	}
	return nil
}

// CreateReview records userID's review of a product. A second review by the
// same user is a conflict.
func (s *Store) CreateReview(ctx context.Context, productID, userID string, in ReviewInput) (Review, error) {
	if in.Rating == nil {
		return Review{}, invalidf("rating is required")
	}
	now := time.Now().UTC()
	r := Review{ID: newID("rev"), ProductID: productID, UserID: userID, CreatedAt: now, UpdatedAt: now}
	if err := in.apply(&r); err != nil {
		return Review{}, err
	}
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.mem.products[productID]; !ok {
			return Review{}, ErrNotFound
		}
		for _, other := range s.mem.reviews {
			if other.ProductID == productID && other.UserID == userID {
				return Review{}, conflictf("you have already reviewed this product")
			}
		}
		s.mem.reviews[r.ID] = r
		r.Username = s.mem.users[userID].Username
		return r, nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id=$1)`, productID).Scan(&exists); err != nil {
		return Review{}, wrapf(err, "check product")
	}
	if !exists {
		return Review{}, ErrNotFound
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reviews (id, product_id, user_id, rating, comment, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		r.ID, r.ProductID, r.UserID, r.Rating, nilIfEmpty(r.Comment), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if isConflict(mapDBError(err)) {
			return Review{}, conflictf("you have already reviewed this product")
		}
		return Review{}, wrapf(err, "insert review")
	}
	return r, nil
}

const reviewColumns = `r.id, r.product_id, r.user_id, u.username, r.rating, r.comment, r.created_at, r.updated_at`

func scanReview(row scanner) (Review, error) {
	var r Review
	var comment sql.NullString
	if err := row.Scan(&r.ID, &r.ProductID, &r.UserID, &r.Username, &r.Rating, &comment, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Review{}, err
	}
	r.Comment = comment.String
	return r, nil
}

func (s *Store) GetReview(ctx context.Context, id string) (Review, error) {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		r, ok := s.mem.reviews[id]
		if !ok {
			return Review{}, ErrNotFound
		}
		r.Username = s.mem.users[r.UserID].Username
		return r, nil
	}
	r, err := scanReview(s.db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews r JOIN users u ON u.id = r.user_id WHERE r.id=$1`, id))
	if err != nil {
		return Review{}, wrapf(err, "get review %s", id)
	}
	return r, nil
}

func reviewKey(r Review) (time.Time, string) { return r.CreatedAt, r.ID }

// ListReviews returns a page of a product's reviews, newest first.
func (s *Store) ListReviews(ctx context.Context, productID, cursor string, limit int) (Page[Review], error) {
	limit = clampLimit(limit)
	if s.db == nil {
		s.mu.RLock()
		items := make([]Review, 0)
		for _, r := range s.mem.reviews {
			if r.ProductID == productID {
				r.Username = s.mem.users[r.UserID].Username
				items = append(items, r)
			}
		}
		s.mu.RUnlock()
		return paginate(items, reviewKey, cursor, limit)
	}
	w := &where{}
	w.and("r.product_id = " + w.arg(productID))
	if err := w.keyset("r.", cursor); err != nil {
		return Page[Review]{}, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+reviewColumns+` FROM reviews r JOIN users u ON u.id = r.user_id `+
		w.String()+` ORDER BY r.created_at DESC, r.id DESC LIMIT `+w.arg(limit+1), w.args...)
	if err != nil {
		return Page[Review]{}, wrapf(err, "list reviews")
	}
	defer rows.Close()
	items := make([]Review, 0, limit+1)
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return Page[Review]{}, wrapf(err, "scan review")
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return Page[Review]{}, wrapf(err, "list reviews")
	}
	return cutPage(items, reviewKey, limit), nil
}

// ReviewSummary counts a product's reviews and averages their rating to one
// decimal place.
func (s *Store) ReviewSummary(ctx context.Context, productID string) (ReviewSummary, error) {
	var sum ReviewSummary
	if s.db == nil {
		s.mu.RLock()
		total := 0
		for _, r := range s.mem.reviews {
			if r.ProductID == productID {
				sum.Count++
				total += r.Rating
			}
		}
		s.mu.RUnlock()
		if sum.Count > 0 {
			sum.Average = roundTenth(float64(total) / float64(sum.Count))
		}
		return sum, nil
	}
	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), AVG(rating)::float8 FROM reviews WHERE product_id=$1`, productID).
		Scan(&sum.Count, &avg); err != nil {
		return ReviewSummary{}, wrapf(err, "review summary")
	}
	sum.Average = roundTenth(avg.Float64)
	return sum, nil
}

func roundTenth(f float64) float64 { return math.Round(f*10) / 10 }

func (s *Store) UpdateReview(ctx context.Context, id string, in ReviewInput) (Review, error) {
	if in.Rating == nil && in.Comment == nil {
		return Review{}, errEmptyUpdate
	}
	r, err := s.GetReview(ctx, id)
	if err != nil {
		return Review{}, err
	}
	if err := in.apply(&r); err != nil {
		return Review{}, err
	}
	r.UpdatedAt = time.Now().UTC()
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.mem.reviews[id]; !ok {
			return Review{}, ErrNotFound
		}
		stored := r
		stored.Username = ""
		s.mem.reviews[id] = stored
		return r, nil
	}
	res, err := s.db.ExecContext(ctx, `UPDATE reviews SET rating=$2, comment=$3, updated_at=$4 WHERE id=$1`,
		r.ID, r.Rating, nilIfEmpty(r.Comment), r.UpdatedAt)
	if err != nil {
		return Review{}, wrapf(err, "update review %s", id)
	}
	return r, expectAffected(res)
}

func (s *Store) DeleteReview(ctx context.Context, id string) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.mem.reviews[id]; !ok {
			return ErrNotFound
		}
		delete(s.mem.reviews, id)
		return nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM reviews WHERE id=$1`, id)
	if err != nil {
		return wrapf(err, "delete review %s", id)
	}
	return expectAffected(res)
}
