package database

import (
	"database/sql"
	"errors"
	"time"

	"shortclaim/internal/model"
)

func (db *DB) CreateSession(s model.Session, csrfToken string) error {
	_, err := db.conn.Exec(
		"INSERT INTO sessions (token, csrf_token, username, expires_at) VALUES ($1, $2, $3, $4)",
		s.Token, csrfToken, s.Username, s.ExpiresAt,
	)
	return err
}

// GetSession returns the session for token and its CSRF token. A missing or
// expired session yields a nil session and no error.
func (db *DB) GetSession(token string) (*model.Session, string, error) {
	s := &model.Session{Token: token}
	var csrfToken string
	err := db.conn.QueryRow(
		"SELECT username, csrf_token, created_at, expires_at FROM sessions WHERE token = $1", token,
	).Scan(&s.Username, &csrfToken, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	if time.Now().After(s.ExpiresAt) {
		return nil, "", nil
	}
	return s, csrfToken, nil
}

func (db *DB) DeleteSession(token string) error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE token = $1", token)
	return err
}

// DeleteUserSessions logs a user out everywhere, e.g. after deactivation.
func (db *DB) DeleteUserSessions(username string) error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE username = $1", username)
	return err
}

func (db *DB) PurgeExpiredSessions() (int64, error) {
	res, err := db.conn.Exec("DELETE FROM sessions WHERE expires_at < NOW()")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
