package store

import (
	"database/sql"
	"errors"

	"github.com/nitz7155/HiSmartStudy/internal/occupancy"
)

// LostItemRepository provides access to lost-item scan results.
type LostItemRepository struct {
	db *sql.DB
}

// LostItems returns a LostItemRepository for result operations.
func (s *Store) LostItems() *LostItemRepository {
	return &LostItemRepository{db: s.db}
}

// SaveLostItemResult satisfies occupancy.Recorder.
func (s *Store) SaveLostItemResult(res occupancy.LostItemResult) error {
	return s.LostItems().Save(res)
}

// LoadLostItemResult satisfies occupancy.Recorder. A missing result is
// reported through the bool, not as an error.
func (s *Store) LoadLostItemResult(usageID int64) (occupancy.LostItemResult, bool, error) {
	res, err := s.LostItems().Get(usageID)
	if errors.Is(err, ErrNotFound) {
		return occupancy.LostItemResult{}, false, nil
	}
	if err != nil {
		return occupancy.LostItemResult{}, false, err
	}
	return *res, true, nil
}

// Save upserts a result. A completed result is never replaced by a pending
// one.
func (r *LostItemRepository) Save(res occupancy.LostItemResult) error {
	items, err := marshalItems(res.Items)
	if err != nil {
		return err
	}

	var detectedAt sql.NullTime
	if res.DetectedAt != nil {
		detectedAt = sql.NullTime{Time: res.DetectedAt.UTC(), Valid: true}
	}

	_, err = r.db.Exec(
		`INSERT INTO lost_item_results (usage_id, seat_id, done, items, image_base64, detected_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(usage_id) DO UPDATE SET
			seat_id = excluded.seat_id,
			done = excluded.done,
			items = excluded.items,
			image_base64 = excluded.image_base64,
			detected_at = excluded.detected_at,
			updated_at = CURRENT_TIMESTAMP
		 WHERE lost_item_results.done = 0 OR excluded.done = 1`,
		res.UsageID, res.SeatID, res.Done, items, res.ImageBase64, detectedAt,
	)
	return err
}

// Get retrieves the result for a booking session.
func (r *LostItemRepository) Get(usageID int64) (*occupancy.LostItemResult, error) {
	var (
		res        occupancy.LostItemResult
		items      string
		detectedAt sql.NullTime
	)

	err := r.db.QueryRow(
		`SELECT usage_id, seat_id, done, items, image_base64, detected_at
		 FROM lost_item_results WHERE usage_id = ?`,
		usageID,
	).Scan(&res.UsageID, &res.SeatID, &res.Done, &items, &res.ImageBase64, &detectedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if res.Items, err = unmarshalItems(items); err != nil {
		return nil, err
	}
	if detectedAt.Valid {
		t := detectedAt.Time
		res.DetectedAt = &t
	}
	return &res, nil
}

// ListPending returns the usage ids whose scan has not completed.
func (r *LostItemRepository) ListPending() ([]int64, error) {
	rows, err := r.db.Query(`SELECT usage_id FROM lost_item_results WHERE done = 0 ORDER BY updated_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
