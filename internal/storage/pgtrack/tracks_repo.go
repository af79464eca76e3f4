package pgtrack

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/dcmn/ordertrack/internal/models"
)

func (s *Storage) CreateTrack(ctx context.Context, t *models.Track) error {
	data, err := json.Marshal(t.Data)
	if err != nil {
		return errors.Wrap(err, "marshal track data")
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(ctx, `
INSERT INTO tracks (tid, service, data, created_at, updated_at)
VALUES ($1,$2,$3,$4,$4)
`, t.TID, t.Service, data, now)
	if err != nil {
		return errors.Wrap(err, "insert track")
	}

	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

func (s *Storage) GetTrack(ctx context.Context, tid string) (*models.Track, error) {
	var t models.Track
	var data []byte
	err := s.db.QueryRow(ctx, `
SELECT tid, service, data, created_at, updated_at
FROM tracks
WHERE tid = $1
`, tid).Scan(&t.TID, &t.Service, &data, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select track")
	}

	if err := json.Unmarshal(data, &t.Data); err != nil {
		return nil, errors.Wrap(err, "unmarshal track data")
	}
	return &t, nil
}

// UpdateTrackData перезаписывает атрибуты целиком (last-write-wins,
// см. модель конкурентности) и поднимает updated_at. Вызывающая
// сторона сама решает, было ли реальное изменение: no-op сюда
// не доходит.
func (s *Storage) UpdateTrackData(ctx context.Context, tid string, data models.TrackData) error {
	b, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "marshal track data")
	}

	tag, err := s.db.Exec(ctx, `
UPDATE tracks SET data = $2, updated_at = now() WHERE tid = $1
`, tid, b)
	if err != nil {
		return errors.Wrap(err, "update track")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
