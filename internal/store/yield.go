package store

import (
	"context"
	"fmt"

	"github.com/lox/sapweather/internal/models"
)

// YieldRecordsBySeason returns raw collection entries for a season ordered by date.
func (s *Store) YieldRecordsBySeason(ctx context.Context, seasonID string) ([]models.YieldRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, volume
		FROM yield_entries
		WHERE season_id = ?
		ORDER BY date ASC, id ASC
	`, seasonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.YieldRecord
	for rows.Next() {
		var dateStr string
		var r models.YieldRecord
		if err := rows.Scan(&dateStr, &r.Volume); err != nil {
			return nil, err
		}
		if r.Date, err = models.ParseDay(dateStr); err != nil {
			return nil, fmt.Errorf("yield entry date %q: %w", dateStr, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// TapCountBySeason sums current tap counts across the season's zones.
func (s *Store) TapCountBySeason(ctx context.Context, seasonID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(taps), 0) FROM zones WHERE season_id = ?`, seasonID).Scan(&total)
	return total, err
}

func (s *Store) InsertYieldEntry(ctx context.Context, seasonID string, r models.YieldRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO yield_entries (season_id, date, volume)
		VALUES (?, ?, ?)
	`, seasonID, r.Date.Format(models.DateLayout), r.Volume)
	return err
}

func (s *Store) UpsertZone(ctx context.Context, seasonID, zoneID string, taps int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO zones (season_id, zone_id, taps)
		VALUES (?, ?, ?)
		ON CONFLICT(season_id, zone_id) DO UPDATE SET taps = excluded.taps
	`, seasonID, zoneID, taps)
	return err
}
