// Package prefs persists the user's media preferences in a local SQLite file.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"ringring-backend/internal/client/media"
)

// Store keeps a single preferences row
type Store struct {
	db *sql.DB
}

// Open opens or creates the preferences database at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open preferences db: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to configure preferences db: %w", err)
		}
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS media_preferences (
		id                INTEGER PRIMARY KEY CHECK (id = 1),
		audio_device_id   TEXT NOT NULL DEFAULT '',
		video_device_id   TEXT NOT NULL DEFAULT '',
		echo_cancellation INTEGER NOT NULL DEFAULT 1,
		noise_suppression INTEGER NOT NULL DEFAULT 1,
		auto_gain_control INTEGER NOT NULL DEFAULT 1,
		updated_at        INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create preferences table: %w", err)
	}

	return &Store{db: db}, nil
}

// Load returns the saved preferences, or the defaults when none were saved
func (s *Store) Load(ctx context.Context) (media.Preferences, error) {
	var p media.Preferences
	err := s.db.QueryRowContext(ctx, `SELECT audio_device_id, video_device_id,
		echo_cancellation, noise_suppression, auto_gain_control
		FROM media_preferences WHERE id = 1`).
		Scan(&p.AudioDeviceID, &p.VideoDeviceID, &p.EchoCancellation, &p.NoiseSuppression, &p.AutoGainControl)
	if errors.Is(err, sql.ErrNoRows) {
		return media.DefaultPreferences(), nil
	}
	if err != nil {
		return media.Preferences{}, fmt.Errorf("failed to load preferences: %w", err)
	}
	return p, nil
}

// Save replaces the stored preferences
func (s *Store) Save(ctx context.Context, p media.Preferences) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO media_preferences
		(id, audio_device_id, video_device_id, echo_cancellation, noise_suppression, auto_gain_control, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, strftime('%s', 'now'))
		ON CONFLICT(id) DO UPDATE SET
			audio_device_id=excluded.audio_device_id,
			video_device_id=excluded.video_device_id,
			echo_cancellation=excluded.echo_cancellation,
			noise_suppression=excluded.noise_suppression,
			auto_gain_control=excluded.auto_gain_control,
			updated_at=excluded.updated_at`,
		p.AudioDeviceID, p.VideoDeviceID, p.EchoCancellation, p.NoiseSuppression, p.AutoGainControl)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
