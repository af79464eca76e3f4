package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/dcmn/ordertrack/internal/broker/messages"
	"github.com/dcmn/ordertrack/internal/cache"
	"github.com/dcmn/ordertrack/internal/integrations/zoho"
	"github.com/dcmn/ordertrack/internal/models"
	"github.com/dcmn/ordertrack/internal/stages"
	"github.com/dcmn/ordertrack/internal/storage/pgtrack"
)

// ErrUnknownService: в отличие от стадий, безопасного дефолта на уровне
// услуги нет — создание отклоняем.
var ErrUnknownService = errors.New("unknown service")

// ErrNotFound пробрасываем из стораджа, чтобы API не импортировал pgtrack.
var ErrNotFound = pgtrack.ErrNotFound

type Repository interface {
	CreateTrack(ctx context.Context, t *models.Track) error
	GetTrack(ctx context.Context, tid string) (*models.Track, error)
	UpdateTrackData(ctx context.Context, tid string, data models.TrackData) error
	EnqueueWritebackJob(ctx context.Context, tid, zohoModule, recordID string, nextAttemptAt time.Time) (uint64, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Service struct {
	repo     Repository
	crm      zoho.Client
	producer Producer
	cache    cache.BytesCache

	topic     string
	publicTTL time.Duration
}

func New(repo Repository, crm zoho.Client, producer Producer, c cache.BytesCache, topic string, publicTTL time.Duration) *Service {
	return &Service{
		repo:      repo,
		crm:       crm,
		producer:  producer,
		cache:     c,
		topic:     topic,
		publicTTL: publicTTL,
	}
}

type CreateRequest struct {
	Name    string
	Email   string
	Service string
	// Код либо сырой текст стадии из CRM; пусто — intake-этап услуги.
	Stage string

	// Куда записывать Tracking_ID (имя модуля из webhook + id записи).
	ZohoModule string
	RecordID   string

	Shipping       string
	TranslationRaw string
	OrderID        string
	OrderType      string

	Extra map[string]any
}

// CreateFromCRM создаёт запись трекинга и запускает write-back
// сгенерированного tid в CRM: сначала синхронная попытка, при неудаче —
// фоновая задача с ретраями. Для вызывающего создание успешно в любом
// случае: CRM-автоматизации не умеют обрабатывать наши ошибки.
func (s *Service) CreateFromCRM(ctx context.Context, req CreateRequest) (*models.Track, error) {
	svc, ok := stages.ResolveService(req.Service)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownService, "%q", req.Service)
	}

	stage := stages.IntakeStage(svc)
	if req.Stage != "" {
		stage = stages.Normalize(svc, req.Stage)
	}

	data := models.TrackData{
		Name:         req.Name,
		Email:        req.Email,
		CurrentStage: stage,
		Shipping:     req.Shipping,
		ZohoModule:   req.ZohoModule,
		RecordID:     req.RecordID,
		OrderID:      req.OrderID,
		OrderType:    req.OrderType,
		Extra:        req.Extra,
	}
	if req.TranslationRaw != "" {
		tr := coerceTranslation(req.TranslationRaw)
		data.TranslationRequired = &tr
	}

	t := &models.Track{
		TID:     NewTID(),
		Service: svc,
		Data:    data,
	}
	if err := s.repo.CreateTrack(ctx, t); err != nil {
		return nil, err
	}
	slog.Info("tracking created", "tid", t.TID, "service", svc, "stage", stage)

	if req.ZohoModule != "" && req.RecordID != "" {
		s.writebackTID(ctx, t.TID, req.ZohoModule, req.RecordID)
	}

	s.publishEvent(ctx, messages.StageChanged{
		EventID:    uuid.NewString(),
		Kind:       messages.EventKindCreated,
		TID:        t.TID,
		Service:    svc,
		NewStage:   stage,
		Name:       req.Name,
		Email:      req.Email,
		OccurredAt: time.Now().UTC(),
	})

	return t, nil
}

// writebackTID — синхронная попытка, при неудаче очередь. Ошибки здесь
// никогда не доходят до вызывающего.
func (s *Service) writebackTID(ctx context.Context, tid, webhookModule, recordID string) {
	module := zoho.APIModule(webhookModule)
	err := s.crm.UpdateRecordFields(ctx, module, recordID, map[string]any{zoho.TrackingIDField: tid})
	if err == nil {
		slog.Info("tid written to crm", "tid", tid, "module", module, "record_id", recordID)
		return
	}
	slog.Warn("sync tid write-back failed, enqueueing retry", "tid", tid, "module", module, "record_id", recordID, "error", err.Error())

	if _, err := s.repo.EnqueueWritebackJob(ctx, tid, module, recordID, time.Now().UTC()); err != nil {
		slog.Error("enqueue write-back job", "tid", tid, "error", err.Error())
	}
}

type UpdateRequest struct {
	TID string
	// Канонический код, приоритетнее сырого текста.
	CurrentStage string
	// Сырой текст стадии из CRM (нормализуется).
	CRMStageName string
	Comment      *string
	// Прочие поля запроса, мержатся в атрибуты как есть.
	Passthrough map[string]any
}

// UpdateStage применяет CRM-обновление к записи. Пишем в БД только при
// фактическом изменении: повторный вызов с той же стадией не трогает
// updated_at и не порождает событий.
func (s *Service) UpdateStage(ctx context.Context, req UpdateRequest) (bool, error) {
	t, err := s.repo.GetTrack(ctx, req.TID)
	if err != nil {
		return false, err
	}

	data := t.Data
	// Копия структуры делит map с оригиналом; без клона мерж ниже
	// мутировал бы t.Data и сравнение не увидело бы изменений.
	data.Extra = maps.Clone(t.Data.Extra)
	oldStage := data.CurrentStage

	stageChanged := false
	switch {
	case req.CurrentStage != "":
		// невалидный код отклоняем молча, прежняя стадия сохраняется
		if stages.ValidStage(t.Service, req.CurrentStage) && req.CurrentStage != oldStage {
			data.CurrentStage = req.CurrentStage
			stageChanged = true
		}
	case req.CRMStageName != "":
		mapped := stages.Normalize(t.Service, req.CRMStageName)
		if mapped != "" && mapped != oldStage {
			data.CurrentStage = mapped
			stageChanged = true
		}
	}

	if req.Comment != nil {
		data.Comment = *req.Comment
	}
	mergePassthrough(&data, req.Passthrough)

	if reflect.DeepEqual(data, t.Data) {
		return false, nil
	}

	if err := s.repo.UpdateTrackData(ctx, t.TID, data); err != nil {
		return false, err
	}
	s.invalidatePublic(ctx, t.TID)

	if stageChanged {
		slog.Info("stage changed", "tid", t.TID, "old", oldStage, "new", data.CurrentStage)
		s.publishEvent(ctx, messages.StageChanged{
			EventID:    uuid.NewString(),
			Kind:       messages.EventKindStageChanged,
			TID:        t.TID,
			Service:    t.Service,
			OldStage:   oldStage,
			NewStage:   data.CurrentStage,
			Name:       data.Name,
			Email:      data.Email,
			Comment:    data.Comment,
			OccurredAt: time.Now().UTC(),
		})
	}

	return stageChanged, nil
}

// Ключи запроса, которые не являются атрибутами записи.
var controlKeys = map[string]bool{
	"tid":            true,
	"tracking_id":    true,
	"Tracking_ID":    true,
	"current_stage":  true,
	"crm_stage_name": true,
	"stage":          true,
	"token":          true,
	"data":           true,
	"comment":        true,
}

// mergePassthrough — оборонительный мерж: известные ключи ложатся в
// типизированные поля, неизвестные сохраняются в Extra ради совместимости
// с дрейфующей upstream-схемой.
func mergePassthrough(data *models.TrackData, src map[string]any) {
	for k, v := range src {
		if controlKeys[k] {
			continue
		}
		switch k {
		case "name":
			data.Name = asString(v)
		case "email":
			data.Email = asString(v)
		case "shipping":
			data.Shipping = asString(v)
		case "translation_r":
			tr := coerceTranslation(asString(v))
			data.TranslationRequired = &tr
		case "zoho_module":
			data.ZohoModule = asString(v)
		case "record_id":
			data.RecordID = asString(v)
		case "order_id":
			data.OrderID = asString(v)
		case "order_type":
			data.OrderType = asString(v)
		default:
			if data.Extra == nil {
				data.Extra = map[string]any{}
			}
			data.Extra[k] = v
		}
	}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if b, ok := v.(bool); ok {
		if b {
			return "true"
		}
		return "false"
	}
	return fmt.Sprint(v)
}

// coerceTranslation приводит разнобой из CRM ("yes", "Yes - Translate",
// "true", "1") к булеву флагу.
func coerceTranslation(raw string) bool {
	norm := strings.ToLower(strings.TrimSpace(raw))
	if strings.Contains(norm, "translate") && strings.Contains(norm, "yes") {
		return true
	}
	switch norm {
	case "yes", "true", "1":
		return true
	}
	return false
}

func (s *Service) publishEvent(ctx context.Context, ev messages.StageChanged) {
	if s.producer == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal stage event", "tid", ev.TID, "error", err.Error())
		return
	}
	if err := s.producer.Publish(ctx, s.topic, []byte(ev.TID), b); err != nil {
		// событие для писем — best effort, запись уже обновлена
		slog.Error("publish stage event", "tid", ev.TID, "error", err.Error())
	}
}
