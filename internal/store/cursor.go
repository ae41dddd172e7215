package store

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Page is one keyset-paginated slice of a listing.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	Cached     bool   `json:"cached"`
}

// ParseCursor decodes a "<unix-nanos>:<id>" cursor. An empty cursor yields zero values.
func ParseCursor(cursor string) (time.Time, string, error) {
	if cursor == "" {
		return time.Time{}, "", nil
	}
	parts := strings.SplitN(cursor, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, "", &InputError{Msg: "invalid cursor format"}
	}
	n, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, "", &InputError{Msg: "invalid cursor timestamp"}
	}
	if parts[1] == "" {
		return time.Time{}, "", &InputError{Msg: "invalid cursor id"}
	}
	return time.Unix(0, n).UTC(), parts[1], nil
}

// EncodeCursor is the inverse of ParseCursor.
func EncodeCursor(ts time.Time, id string) string {
	return fmt.Sprintf("%d:%s", ts.UTC().UnixNano(), id)
}

// paginate orders items newest first (ties broken by id) and cuts the page
// that follows cursor.
func paginate[T any](items []T, key func(T) (time.Time, string), cursor string, limit int) (Page[T], error) {
	cursorTime, cursorID, err := ParseCursor(cursor)
	if err != nil {
		return Page[T]{}, err
	}
	sort.Slice(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if ti.Equal(tj) {
			return idi > idj
		}
		return ti.After(tj)
	})
	if !cursorTime.IsZero() {
		filtered := items[:0]
		for _, it := range items {
			ts, id := key(it)
			if ts.Before(cursorTime) || (ts.Equal(cursorTime) && id < cursorID) {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	page := Page[T]{Items: make([]T, 0, min(len(items), limit))}
	if len(items) <= limit {
		page.Items = append(page.Items, items...)
		return page, nil
	}
	page.Items = append(page.Items, items[:limit]...)
	ts, id := key(items[limit-1])
	page.NextCursor = EncodeCursor(ts, id)
	return page, nil
}

// cutPage trims a limit+1 result set fetched from SQL into a page.
func cutPage[T any](items []T, key func(T) (time.Time, string), limit int) Page[T] {
	page := Page[T]{Items: items}
	if page.Items == nil {
		page.Items = []T{}
	}
	if len(items) > limit {
		page.Items = items[:limit]
		ts, id := key(items[limit-1])
		page.NextCursor = EncodeCursor(ts, id)
	}
	return page
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 200:
		return 200
	default:
		return limit
	}
}

// where accumulates numbered SQL conditions.
type where struct {
	conds []string
	args  []any
}

func (w *where) arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *where) and(cond string) {
	w.conds = append(w.conds, cond)
}

// keyset restricts rows to those strictly after the cursor position.
func (w *where) keyset(prefix, cursor string) error {
	ts, id, err := ParseCursor(cursor)
	if err != nil {
		return err
	}
	if ts.IsZero() {
		return nil
	}
	w.and(fmt.Sprintf("(%screated_at, %sid) < (%s, %s)", prefix, prefix, w.arg(ts), w.arg(id)))
	return nil
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conds, " AND ")
}

var errEmptyUpdate = &InputError{Msg: "empty update payload"}

// wrapf wraps err with context unless it is one of the package's caller-facing errors.
func wrapf(err error, format string, args ...any) error {
	err = mapDBError(err)
	var in *InputError
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.As(err, &in) {
		return err
	}
	return errors.Wrapf(err, format, args...)
}
