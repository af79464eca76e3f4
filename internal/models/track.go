package models

import (
	"encoding/json"
	"time"
)

// StageCompleted — скрытый терминальный маркер. Никогда не показывается
// в таймлайне, но допустим как current_stage ("всё закончено").
const StageCompleted = "completed"

type Track struct {
	TID       string
	Service   string
	Data      TrackData
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TrackData — атрибуты трека. Известные поля типизированы, всё остальное
// из CRM складываем в Extra как есть (upstream-схема дрейфует).
type TrackData struct {
	Name         string
	Email        string
	CurrentStage string
	Comment      string
	Shipping     string

	// nil = флаг не приходил; для таймлайна это то же, что false.
	TranslationRequired *bool

	ZohoModule string
	RecordID   string
	OrderID    string
	OrderType  string

	Extra map[string]any
}

const (
	keyName         = "name"
	keyEmail        = "email"
	keyCurrentStage = "current_stage"
	keyComment      = "comment"
	keyShipping     = "shipping"
	keyTranslationR = "translation_r"
	keyZohoModule   = "zoho_module"
	keyRecordID     = "record_id"
	keyOrderID      = "order_id"
	keyOrderType    = "order_type"
)

// MarshalJSON кладёт известные поля и Extra в один плоский объект,
// совместимый с историческим JSONB-форматом.
func (d TrackData) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(d.Extra)+10)
	for k, v := range d.Extra {
		m[k] = v
	}
	m[keyName] = d.Name
	m[keyEmail] = d.Email
	m[keyCurrentStage] = d.CurrentStage
	if d.Comment != "" {
		m[keyComment] = d.Comment
	}
	if d.Shipping != "" {
		m[keyShipping] = d.Shipping
	}
	if d.TranslationRequired != nil {
		m[keyTranslationR] = *d.TranslationRequired
	}
	if d.ZohoModule != "" {
		m[keyZohoModule] = d.ZohoModule
	}
	if d.RecordID != "" {
		m[keyRecordID] = d.RecordID
	}
	if d.OrderID != "" {
		m[keyOrderID] = d.OrderID
	}
	if d.OrderType != "" {
		m[keyOrderType] = d.OrderType
	}
	return json.Marshal(m)
}

func (d *TrackData) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*d = TrackData{}
	d.Name = popString(m, keyName)
	d.Email = popString(m, keyEmail)
	d.CurrentStage = popString(m, keyCurrentStage)
	d.Comment = popString(m, keyComment)
	d.Shipping = popString(m, keyShipping)
	if v, ok := m[keyTranslationR]; ok {
		if b, ok := v.(bool); ok {
			d.TranslationRequired = &b
		}
		delete(m, keyTranslationR)
	}
	d.ZohoModule = popString(m, keyZohoModule)
	d.RecordID = popString(m, keyRecordID)
	d.OrderID = popString(m, keyOrderID)
	d.OrderType = popString(m, keyOrderType)
	if len(m) > 0 {
		d.Extra = m
	}
	return nil
}

func popString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	delete(m, key)
	s, _ := v.(string)
	return s
}

// Translation сообщает, нужен ли перевод (nil трактуем как false).
func (d TrackData) Translation() bool {
	return d.TranslationRequired != nil && *d.TranslationRequired
}

// Статусы отложенной записи Tracking_ID обратно в CRM.
const (
	WritebackStatusPending = "PENDING"
	WritebackStatusDone    = "DONE"
	WritebackStatusDead    = "DEAD"
)

type WritebackJob struct {
	ID            uint64
	TID           string
	ZohoModule    string
	RecordID      string
	Status        string
	FailCount     int32
	LastError     *string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
