package messages

import "time"

// Виды событий трекинга в топике tracking.stage_changed.
const (
	EventKindCreated      = "created"
	EventKindStageChanged = "stage_changed"
)

// StageChanged — событие для почтового коллаборатора (fire-and-forget):
// создание трека или фактическая смена стадии. No-op апдейты событий
// не порождают, чтобы клиенту не сыпались повторные письма.
type StageChanged struct {
	EventID string `json:"event_id"`
	Kind    string `json:"kind"`

	TID     string `json:"tid"`
	Service string `json:"service"`

	OldStage string `json:"old_stage,omitempty"`
	NewStage string `json:"new_stage"`

	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Comment string `json:"comment,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}
