package store

import (
	"database/sql"
	"errors"
	"time"
)

// SelectUser returns the cached profile for id, or nil if none is cached.
func (db *DB) SelectUser(id string) (*User, error) {
	var (
		u  User
		pm sql.NullString
	)
	err := db.QueryRow(`SELECT id, personal_message, display_picture FROM users WHERE id = ?`, id).
		Scan(&u.ID, &pm, &u.DisplayPicture)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if pm.Valid {
		u.PersonalMessage = &pm.String
	}
	return &u, nil
}

// UpsertUser stores the personal message of u. A nil display picture leaves
// the cached one untouched.
func (db *DB) UpsertUser(u *User) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO users (id, personal_message, display_picture, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			personal_message = excluded.personal_message,
			display_picture = COALESCE(excluded.display_picture, users.display_picture),
			updated_at = excluded.updated_at`,
		u.ID, nullString(u.PersonalMessage), u.DisplayPicture, now)
	return err
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
