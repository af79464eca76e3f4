package tracking

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/dcmn/ordertrack/internal/stages"
)

// PublicTrack — то, что видит клиент по публичной ссылке. Без email,
// имя маскировано.
type PublicTrack struct {
	TID          string             `json:"tid"`
	Name         string             `json:"name"`
	Service      string             `json:"service"`
	ServiceLabel string             `json:"service_label"`
	Steps        []stages.Step      `json:"steps"`
	Active       stages.ActiveStage `json:"active"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// PublicView отдаёт отрисованный таймлайн по tid. Только чтение; ответ
// кэшируется в redis с коротким TTL, смена стадии инвалидирует ключ.
func (s *Service) PublicView(ctx context.Context, tid string) (*PublicTrack, error) {
	if s.cache != nil && s.publicTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, publicKey(tid)); err == nil && ok {
			var pt PublicTrack
			if json.Unmarshal(b, &pt) == nil {
				return &pt, nil
			}
		}
	}

	t, err := s.repo.GetTrack(ctx, tid)
	if err != nil {
		return nil, err
	}

	tl, err := stages.BuildTimeline(t.Service, t.Data.CurrentStage, t.Data.Translation(), t.Data.Comment)
	if err != nil {
		return nil, err
	}

	pt := &PublicTrack{
		TID:          t.TID,
		Name:         PublicName(t.Data.Name),
		Service:      t.Service,
		ServiceLabel: stages.ServiceLabel(t.Service),
		Steps:        tl.Steps,
		Active:       tl.Active,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}

	if s.cache != nil && s.publicTTL > 0 {
		if b, err := json.Marshal(pt); err == nil {
			_ = s.cache.Set(ctx, publicKey(tid), b, s.publicTTL)
		}
	}
	return pt, nil
}

func (s *Service) invalidatePublic(ctx context.Context, tid string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, publicKey(tid)); err != nil {
		slog.Warn("invalidate public cache", "tid", tid, "error", err.Error())
	}
}

func publicKey(tid string) string {
	return "track:" + tid + ":public"
}

// PublicName маскирует имя клиента: "John Doe" -> "John D.".
func PublicName(fullName string) string {
	parts := strings.Fields(fullName)
	if len(parts) == 0 {
		return ""
	}
	if len(parts) >= 2 && len(parts[1]) > 0 {
		return parts[0] + " " + string([]rune(parts[1])[0]) + "."
	}
	return parts[0]
}

const tidAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const tidLength = 10

// NewTID генерирует непрозрачный идентификатор трека: 10 символов
// A-Z/0-9, криптослучайно. Это внешняя ручка (URL, поле в CRM),
// последовательные id не годятся.
func NewTID() string {
	var b strings.Builder
	b.Grow(tidLength)
	max := big.NewInt(int64(len(tidAlphabet)))
	for i := 0; i < tidLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand на линуксе не ломается; если сломался — паника честнее тихой деградации
			panic(err)
		}
		b.WriteByte(tidAlphabet[n.Int64()])
	}
	return b.String()
}
