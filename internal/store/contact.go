package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertContacts inserts or replaces contacts in a single transaction. The
// cached display picture survives unless a new one is given or the contact
// now advertises a different picture.
func (db *DB) UpsertContacts(contacts []Contact) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, c := range contacts {
		if _, err := tx.Exec(`
			INSERT INTO contacts (id, display_name, lists, personal_message, display_picture_ref, display_picture, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				display_name = excluded.display_name,
				lists = excluded.lists,
				personal_message = excluded.personal_message,
				display_picture_ref = excluded.display_picture_ref,
				display_picture = CASE
					WHEN excluded.display_picture IS NOT NULL THEN excluded.display_picture
					WHEN excluded.display_picture_ref != contacts.display_picture_ref THEN NULL
					ELSE contacts.display_picture
				END,
				updated_at = excluded.updated_at`,
			c.ID, c.DisplayName, c.Lists, nullString(c.PersonalMessage), c.DisplayPictureRef, c.DisplayPicture, now); err != nil {
			return fmt.Errorf("upsert contact %q: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// SetContactDisplayPicture caches a processed thumbnail for id.
func (db *DB) SetContactDisplayPicture(id string, data []byte) error {
	_, err := db.Exec(`UPDATE contacts SET display_picture = ?, updated_at = ? WHERE id = ?`,
		data, time.Now().UnixMilli(), id)
	return err
}

// ListContacts returns every cached contact ordered by id.
func (db *DB) ListContacts() ([]Contact, error) {
	rows, err := db.Query(`
		SELECT id, display_name, lists, personal_message, display_picture_ref, display_picture
		FROM contacts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Contact
	for rows.Next() {
		var (
			c  Contact
			pm sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.DisplayName, &c.Lists, &pm, &c.DisplayPictureRef, &c.DisplayPicture); err != nil {
			return nil, err
		}
		if pm.Valid {
			c.PersonalMessage = &pm.String
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteContact removes id from the cache.
func (db *DB) DeleteContact(id string) error {
	_, err := db.Exec(`DELETE FROM contacts WHERE id = ?`, id)
	return err
}
