package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/kalshi-trader/internal/settings"
)

// SaveSettings upserts one applied settings version.
func (s *Store) SaveSettings(ctx context.Context, snap *settings.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO settings_versions (version, payload, applied_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (version) DO UPDATE
			SET payload = EXCLUDED.payload, applied_at = EXCLUDED.applied_at
	`, snap.Version, payload, snap.AppliedAt)
	if err != nil {
		return fmt.Errorf("save settings v%d: %w", snap.Version, err)
	}
	return nil
}

// LoadLatestSettings returns the newest persisted settings, or nil when
// none have been saved yet.
func (s *Store) LoadLatestSettings(ctx context.Context) (*settings.Snapshot, error) {
	var payload []byte
	err := s.db.QueryRow(ctx, `
		SELECT payload FROM settings_versions ORDER BY version DESC LIMIT 1
	`).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	var snap settings.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decode settings payload: %w", err)
	}
	return &snap, nil
}
