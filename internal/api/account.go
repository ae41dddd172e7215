package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"techverse/marketplace/internal/auth"
	"techverse/marketplace/internal/store"
)

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	AdminCode string `json:"admin_code"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		decodeFailed(w, err)
		return
	}
	if strings.EqualFold(strings.TrimSpace(req.Role), store.RoleAdmin) {
		if s.adminCode == "" {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin registration is disabled"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(req.AdminCode), []byte(s.adminCode)) != 1 {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid admin code"})
			return
		}
	}
	u, err := s.store.CreateUser(r.Context(), store.NewUser{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		s.writeError(w, r, "user", err)
		return
	}
	sess, err := s.openSession(w, r, u)
	if err != nil {
		s.writeError(w, r, "session", err)
		return
	}
	hlogFrom(r).Info().Str("user_id", u.ID).Str("role", u.Role).Msg("user registered")
	writeJSON(w, http.StatusCreated, map[string]any{
		"item":          u,
		"session_token": sess.Token,
		"event_topic":   topic("user", "registered"),
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		decodeFailed(w, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		badRequest(w, "email and password are required")
		return
	}
	u, err := s.store.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, "user", err)
		return
	}
	sess, err := s.openSession(w, r, u)
	if err != nil {
		s.writeError(w, r, "session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"item":          u,
		"session_token": sess.Token,
		"event_topic":   topic("user", "logged_in"),
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := r.Context().Value(tokenKey).(string); ok && token != "" {
		if err := s.sessions.DeleteSession(r.Context(), token); err != nil {
			s.writeError(w, r, "session", err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out", "event_topic": topic("user", "logged_out")})
}

func (s *Server) currentUserHandler(w http.ResponseWriter, r *http.Request, u store.User) {
	writeItem(w, http.StatusOK, "user", "read", u)
}

func (s *Server) openSession(w http.ResponseWriter, r *http.Request, u store.User) (auth.Session, error) {
	sess, err := auth.Open(r.Context(), s.sessions, u.ID, s.sessionTTL)
	if err != nil {
		return auth.Session{}, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, nil
}

// ---------------------------------------------------------------------------
// Addresses
// ---------------------------------------------------------------------------

func (s *Server) listAddresses(w http.ResponseWriter, r *http.Request, u store.User) {
	list, err := s.store.ListAddresses(r.Context(), u.ID)
	if err != nil {
		s.writeError(w, r, "address", err)
		return
	}
	writeItems(w, "address", list)
}

func (s *Server) createAddress(w http.ResponseWriter, r *http.Request, u store.User) {
	var in store.AddressInput
	if err := decodeJSON(w, r, &in); err != nil {
		decodeFailed(w, err)
		return
	}
	a, err := s.store.CreateAddress(r.Context(), u.ID, in)
	if err != nil {
		s.writeError(w, r, "address", err)
		return
	}
	writeItem(w, http.StatusCreated, "address", "created", a)
}

func (s *Server) getAddress(w http.ResponseWriter, r *http.Request, u store.User) {
	owner := u.ID
	if u.IsAdmin() {
		owner = ""
	}
	a, err := s.store.GetAddress(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "address", err)
		return
	}
	writeItem(w, http.StatusOK, "address", "read", a)
}

func (s *Server) updateAddress(w http.ResponseWriter, r *http.Request, u store.User) {
	var in store.AddressInput
	if err := decodeJSON(w, r, &in); err != nil {
		decodeFailed(w, err)
		return
	}
	a, err := s.store.UpdateAddress(r.Context(), u.ID, r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, "address", err)
		return
	}
	writeItem(w, http.StatusOK, "address", "updated", a)
}

func (s *Server) deleteAddress(w http.ResponseWriter, r *http.Request, u store.User) {
	id := r.PathValue("id")
	if err := s.store.DeleteAddress(r.Context(), u.ID, id); err != nil {
		s.writeError(w, r, "address", err)
		return
	}
	writeDeleted(w, "address", id)
}
