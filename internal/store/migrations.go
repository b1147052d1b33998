package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Seat events journal - every event the occupancy consumer applied
		`CREATE TABLE IF NOT EXISTS seat_events (
			id TEXT PRIMARY KEY,
			seat_id INTEGER NOT NULL,
			event_type TEXT NOT NULL CHECK(event_type IN ('CHECK_IN', 'CHECK_OUT', 'LOST_ITEM')),
			detected_at DATETIME NOT NULL,
			usage_id INTEGER,
			camera_id TEXT NOT NULL DEFAULT '',
			minutes INTEGER,
			items TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Lost-item results - one row per booking session
		`CREATE TABLE IF NOT EXISTS lost_item_results (
			usage_id INTEGER PRIMARY KEY,
			seat_id INTEGER NOT NULL,
			done INTEGER NOT NULL DEFAULT 0,
			items TEXT NOT NULL DEFAULT '[]',
			image_base64 TEXT NOT NULL DEFAULT '',
			detected_at DATETIME,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_seat_events_seat_id ON seat_events(seat_id, detected_at)`,
		`CREATE INDEX IF NOT EXISTS idx_seat_events_usage_id ON seat_events(usage_id)`,
		`CREATE INDEX IF NOT EXISTS idx_lost_item_results_seat_id ON lost_item_results(seat_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
