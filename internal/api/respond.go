package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"techverse/marketplace/internal/auth"
	"techverse/marketplace/internal/media"
	"techverse/marketplace/internal/store"
)

const (
	maxImagesPerRequest = 8
	// maxBodyBytes leaves room for maxImagesPerRequest base64 images at the
	// media size cap plus the rest of the payload.
	maxBodyBytes = maxImagesPerRequest*media.MaxImageBytes*4/3 + 1<<20
)

var (
	errUnauthenticated = errors.New("authentication required")
	errForbidden       = errors.New("forbidden")
	errBodyTooLarge    = errors.New("request body too large")
)

func topic(entity, action string) string {
	return "techverse.marketplace." + entity + "." + action
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeItem(w http.ResponseWriter, code int, entity, action string, item any) {
	writeJSON(w, code, map[string]any{"item": item, "event_topic": topic(entity, action)})
}

func writeItems(w http.ResponseWriter, entity string, items any) {
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "event_topic": topic(entity, "listed")})
}

func writePage[T any](w http.ResponseWriter, entity string, page store.Page[T]) {
	body := map[string]any{"items": page.Items, "cached": page.Cached, "event_topic": topic(entity, "listed")}
	if page.NextCursor != "" {
		body["next_cursor"] = page.NextCursor
	}
	writeJSON(w, http.StatusOK, body)
}

func writeDeleted(w http.ResponseWriter, entity, id string) {
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "event_topic": topic(entity, "deleted")})
}

// writeError maps domain errors onto HTTP statuses. entity names the resource
// in 404 messages.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, entity string, err error) {
	var (
		input    *store.InputError
		stock    *store.StockError
		conflict *store.ConflictError
	)
	switch {
	case errors.As(err, &input):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": input.Msg})
	case errors.Is(err, store.ErrEmptyBasket):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "basket is empty"})
	case errors.Is(err, media.ErrUnsupported):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, errUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	case errors.Is(err, errForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": entity + " not found"})
	case errors.As(err, &stock):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":              stock.Error(),
			"product_variant_id": stock.VariantID,
			"requested":          stock.Requested,
			"available":          stock.Available,
		})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": conflict.Msg})
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "conflict"})
	default:
		hlogFrom(r).Error().Err(err).Str("entity", entity).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return errors.New("empty request body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.New("invalid JSON payload")
	}
	return nil
}

func decodeFailed(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
		return
	}
	badRequest(w, err.Error())
}

func intParam(r *http.Request, key string, def, min, max int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func query(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}
