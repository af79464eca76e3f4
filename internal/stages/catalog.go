package stages

import "github.com/dcmn/ordertrack/internal/models"

// StageDefinition — один шаг канонического пайплайна услуги.
type StageDefinition struct {
	Code        string
	Name        string
	Description string
}

// Пайплайны по услугам. Порядок определяет порядок прогресса
// (индекс 0 — самый ранний этап, он же intake).
var stageDefs = map[string][]StageDefinition{
	"fbi_apostille": {
		{
			Code:        "document_received",
			Name:        "Document Received",
			Description: "We have received your documents and are preparing them for the next stage of processing.",
		},
		{
			Code:        "notarized",
			Name:        "Notarization",
			Description: "Your documents are undergoing notary verification by a certified notary public.",
		},
		{
			Code:        "submitted",
			Name:        "State Submission",
			Description: "Your documents are being submitted to the state authority for authentication.",
		},
		{
			Code:        "processed_dos",
			Name:        "U.S. DoS Processing",
			Description: "Your documents are under review at the U.S. Department of State for federal authentication. Our liaison is monitoring the process to ensure timely completion.",
		},
		{
			Code:        "translated",
			Name:        "Translation",
			Description: "Your documents are being translated by certified translators to meet the requirements of the destination country.",
		},
		{
			Code:        "delivered",
			Name:        "Delivery",
			Description: "Your documents are ready for final delivery. Thank you for choosing our services!",
		},
	},

	"state_apostille": {
		{
			Code:        "document_received",
			Name:        "Document Received",
			Description: "We have received your documents and are preparing them for the next stage of processing.",
		},
		{
			Code:        "notarized",
			Name:        "Notarization",
			Description: "Your documents are undergoing notary verification by a certified notary public.",
		},
		{
			Code:        "submitted",
			Name:        "State Submission",
			Description: "Your documents are being submitted to the state authority for apostille certification.",
		},
		{
			Code:        "processed_state",
			Name:        "State Processing",
			Description: "Your documents are being reviewed and processed by the state authority. We are monitoring the progress to ensure timely completion.",
		},
		{
			Code:        "delivered",
			Name:        "Delivery",
			Description: "Your documents are ready for final delivery. Thank you for choosing our services!",
		},
	},

	"embassy_legalization": {
		{
			Code:        "document_received",
			Name:        "Document Received",
			Description: "We have received your documents and are preparing them for the embassy legalization process.",
		},
		{
			Code:        "notarized",
			Name:        "Notarization",
			Description: "Your documents are undergoing notary verification by a certified notary public.",
		},
		{
			Code:        "state_authenticated",
			Name:        "State Authentication",
			Description: "Your documents are being authenticated by the state authority as part of the legalization process.",
		},
		{
			Code:        "federal_authenticated",
			Name:        "U.S. DoS Authentication",
			Description: "Your documents are being authenticated by the U.S. Department of State before embassy legalization.",
		},
		{
			Code:        "embassy_legalized",
			Name:        "Embassy / Consulate Legalization",
			Description: "Your documents are undergoing legalization at the embassy or consulate of the destination country.",
		},
		{
			Code:        "translated",
			Name:        "Translation",
			Description: "Your documents are being translated by certified translators to meet the requirements of the destination country.",
		},
		{
			Code:        "delivered",
			Name:        "Delivery",
			Description: "Your documents are ready for final delivery. Thank you for choosing our services!",
		},
	},

	"translation": {
		{
			Code:        "document_received",
			Name:        "Document Received",
			Description: "We have received your documents and are preparing them for translation.",
		},
		{
			Code:        "translated",
			Name:        "Translation",
			Description: "Your documents are being translated by our certified translators.",
		},
		{
			Code:        "quality_approved",
			Name:        "Quality Review",
			Description: "Your translation is undergoing quality assurance review to ensure accuracy and compliance.",
		},
		{
			Code:        "delivered",
			Name:        "Delivery",
			Description: "Your translated documents are ready for final delivery. Thank you for choosing our services!",
		},
	},
}

var serviceLabels = map[string]string{
	"fbi_apostille":        "FBI Apostille",
	"state_apostille":      "State Apostille",
	"embassy_legalization": "Embassy Legalization",
	"translation":          "Translation",
}

// Алиасы услуг из webhook JSON (короткие имена форм).
var serviceAliases = map[string]string{
	"embassy":   "embassy_legalization",
	"apostille": "state_apostille",
}

// Терминальный маркер. Не является записью пайплайна и никогда не
// отображается в списке шагов; деталь активного этапа для него — ниже.
var terminalStage = StageDefinition{
	Code:        models.StageCompleted,
	Name:        "Completed",
	Description: "Your order has been completed. Thank you for choosing our services!",
}

// Pipeline возвращает упорядоченный пайплайн услуги.
func Pipeline(service string) ([]StageDefinition, bool) {
	p, ok := stageDefs[service]
	return p, ok
}

// ResolveService приводит обозначение услуги к каноническому ключу
// каталога. Неизвестная услуга — ошибка уровня создания записи,
// безопасного дефолта здесь нет.
func ResolveService(service string) (string, bool) {
	if alias, ok := serviceAliases[service]; ok {
		service = alias
	}
	_, ok := stageDefs[service]
	return service, ok
}

// IntakeStage — первый (intake) код пайплайна.
func IntakeStage(service string) string {
	p, ok := stageDefs[service]
	if !ok || len(p) == 0 {
		return ""
	}
	return p[0].Code
}

func ServiceLabel(service string) string {
	if l, ok := serviceLabels[service]; ok {
		return l
	}
	return service
}

// Services — ключи каталога (для валидации и тестов).
func Services() []string {
	out := make([]string, 0, len(stageDefs))
	for s := range stageDefs {
		out = append(out, s)
	}
	return out
}

// ValidStage сообщает, допустим ли код как current_stage записи:
// код пайплайна либо терминальный маркер.
func ValidStage(service, code string) bool {
	if code == models.StageCompleted {
		return true
	}
	p, ok := stageDefs[service]
	if !ok {
		return false
	}
	for _, d := range p {
		if d.Code == code {
			return true
		}
	}
	return false
}
