package stages

import (
	"github.com/pkg/errors"

	"github.com/dcmn/ordertrack/internal/models"
)

type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepCurrent   StepStatus = "current"
	StepPending   StepStatus = "pending"
)

type Step struct {
	Code   string     `json:"code"`
	Name   string     `json:"name"`
	Status StepStatus `json:"status"`
}

// ActiveStage — развёрнутое описание активного этапа для страницы трекинга.
type ActiveStage struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Timeline struct {
	Steps  []Step      `json:"steps"`
	Active ActiveStage `json:"active"`
}

// Этапы, которые показываем только когда заказ требует перевода.
// В услуге "translation" перевод — основной этап, там правило не действует.
var optionalStages = map[string]map[string]bool{
	"fbi_apostille":        {"translated": true},
	"embassy_legalization": {"translated": true},
}

// BuildTimeline строит таймлайн по текущему этапу записи. Чистая функция:
// одинаковый вход всегда даёт одинаковый выход, побочных эффектов нет.
//
// Правила отображения:
//   - опциональный этап перевода скрыт, если перевод не нужен;
//   - терминальный маркер не показывается, current_stage == "completed"
//     означает "все видимые этапы завершены";
//   - если активен самый первый (intake) этап, показываем его завершённым,
//     а текущим — следующий: сам факт записи означает, что приём
//     документов уже состоялся;
//   - комментарий менеджера заменяет каноническое описание активного этапа.
func BuildTimeline(service, currentStage string, translationRequired bool, comment string) (Timeline, error) {
	pipeline, ok := Pipeline(service)
	if !ok {
		return Timeline{}, errors.Errorf("unknown service %q", service)
	}

	visible := make([]StageDefinition, 0, len(pipeline))
	for _, d := range pipeline {
		if d.Code == models.StageCompleted {
			continue
		}
		if optionalStages[service][d.Code] && !translationRequired {
			continue
		}
		visible = append(visible, d)
	}

	idx := locateStage(pipeline, visible, currentStage)

	steps := make([]Step, 0, len(visible))
	for i, d := range visible {
		st := StepPending
		switch {
		case i < idx:
			st = StepCompleted
		case i == idx:
			st = StepCurrent
		}
		steps = append(steps, Step{Code: d.Code, Name: d.Name, Status: st})
	}

	// Intake выполнен в тот же момент, когда запись вообще появилась;
	// показывать его "в процессе" было бы неправдой для клиента.
	if idx == 0 && len(visible) > 0 && visible[0].Code == pipeline[0].Code {
		steps[0].Status = StepCompleted
		if len(steps) > 1 {
			steps[1].Status = StepCurrent
		}
	}

	active := terminalStage
	if idx < len(visible) {
		d := visible[idx]
		active = StageDefinition{Code: d.Code, Name: d.Name, Description: d.Description}
	}
	if comment != "" {
		active.Description = comment
	}

	return Timeline{
		Steps: steps,
		Active: ActiveStage{
			Code:        active.Code,
			Name:        active.Name,
			Description: active.Description,
		},
	}, nil
}

// locateStage возвращает индекс текущего этапа в видимом списке.
// Терминальный маркер — "за концом" (len). Если текущий этап скрыт
// фильтром, берём число видимых этапов до него; совсем неизвестный
// код прижимаем к началу.
func locateStage(pipeline, visible []StageDefinition, currentStage string) int {
	if currentStage == models.StageCompleted {
		return len(visible)
	}
	for i, d := range visible {
		if d.Code == currentStage {
			return i
		}
	}
	pos := -1
	for i, d := range pipeline {
		if d.Code == currentStage {
			pos = i
			break
		}
	}
	if pos < 0 {
		return 0
	}
	n := 0
	for _, v := range visible {
		for i, d := range pipeline {
			if d.Code == v.Code && i < pos {
				n++
				break
			}
		}
	}
	return n
}
