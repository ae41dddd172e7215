package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// ContactMessage is a note left through the storefront's contact form.
type ContactMessage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) CreateContactMessage(ctx context.Context, in ContactMessage) (ContactMessage, error) {
	m := ContactMessage{
		ID:        newID("msg"),
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		Subject:   strings.TrimSpace(in.Subject),
		Message:   strings.TrimSpace(in.Message),
		CreatedAt: time.Now().UTC(),
	}
	switch {
	case m.Name == "" || tooLong(m.Name, 255):
		return ContactMessage{}, invalidf("name is required (at most 255 characters)")
	case !validEmail(m.Email) || tooLong(m.Email, 255):
		return ContactMessage{}, invalidf("email is invalid")
	case tooLong(m.Subject, 255):
		return ContactMessage{}, invalidf("subject must be at most 255 characters")
	case m.Message == "":
		return ContactMessage{}, invalidf("message is required")
	case tooLong(m.Message, 5000):
		return ContactMessage{}, invalidf("message must be at most 5000 characters")
	}
	if s.db == nil {
		s.mu.Lock()
		s.mem.messages[m.ID] = m
		s.mu.Unlock()
		return m, nil
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO contact_messages (id, name, email, subject, message, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		m.ID, m.Name, m.Email, nilIfEmpty(m.Subject), m.Message, m.CreatedAt)
	if err != nil {
		return ContactMessage{}, wrapf(err, "insert contact message")
	}
	return m, nil
}

func messageKey(m ContactMessage) (time.Time, string) { return m.CreatedAt, m.ID }

func (s *Store) ListContactMessages(ctx context.Context, cursor string, limit int) (Page[ContactMessage], error) {
	limit = clampLimit(limit)
	if s.db == nil {
		s.mu.RLock()
		items := make([]ContactMessage, 0, len(s.mem.messages))
		for _, m := range s.mem.messages {
			items = append(items, m)
		}
		s.mu.RUnlock()
		return paginate(items, messageKey, cursor, limit)
	}
	w := &where{}
	if err := w.keyset("", cursor); err != nil {
		return Page[ContactMessage]{}, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email, subject, message, created_at FROM contact_messages `+
		w.String()+` ORDER BY created_at DESC, id DESC LIMIT `+w.arg(limit+1), w.args...)
	if err != nil {
		return Page[ContactMessage]{}, wrapf(err, "list contact messages")
	}
	defer rows.Close()
	items := make([]ContactMessage, 0, limit+1)
	for rows.Next() {
		var m ContactMessage
		var subject sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &subject, &m.Message, &m.CreatedAt); err != nil {
			return Page[ContactMessage]{}, wrapf(err, "scan contact message")
		}
		m.Subject = subject.String
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return Page[ContactMessage]{}, wrapf(err, "list contact messages")
	}
	return cutPage(items, messageKey, limit), nil
}
