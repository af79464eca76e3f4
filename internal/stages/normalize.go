package stages

import (
	"strings"

	"github.com/dcmn/ordertrack/internal/models"
)

// Маппинг названий стадий из Zoho → канонические коды.
// Ключи в нижнем регистре; тексты приходят как есть из чужой CRM
// (опечатки и старые названия сохранены намеренно).
var crmStageMap = map[string]map[string]string{
	"fbi_apostille": {
		"pending submission":                                    "submitted",
		"order submission stage ( automation email)":            "submitted",
		"state department submission with drop-off/pick-up slip": "submitted",
		"pick-up of documents from the state department":        "processed_dos",
		"ups label has been generated (automation email)":       "delivered",
		"resubmissions on company cost":                         "submitted",
		"rejected":                                              "document_received",
		"send review (happy clients) (automation emails)":       "delivered",
		"no review ( unhappy client)":                           "delivered",
		"documents dropped off at ups store or client’s address": "delivered",
		"under translation":                                     "translated",
		"no label / not yet dropped off":                        "delivered",
		"fully refunded ( cancelled orders)":                    "delivered",
		"from apostille request":                                "document_received",
		"notarization":                                          "notarized",
		"court":                                                 "notarized",
		"secretary of state":                                    "processed_dos",
		"usdos":                                                 "processed_dos",
		"translation":                                           "translated",
		"embassy":                                               "processed_dos",
		"ups/fedex/dhl drop off":                                "delivered",
		"delivery and reviews":                                  "delivered",
	},
	"state_apostille": {
		"order received":               "document_received",
		"document received":            "document_received",
		"notarized":                    "notarized",
		"submitted":                    "submitted",
		"processed at state authority": "processed_state",
		"delivered":                    "delivered",
	},
	"embassy_legalization": {
		"order received":            "document_received",
		"document received":         "document_received",
		"notarized":                 "notarized",
		"state authenticated":       "state_authenticated",
		"federal dos authenticated": "federal_authenticated",
		"embassy / consulate legalized": "embassy_legalized",
		"translated":                "translated",
		"delivered":                 "delivered",
	},
	"translation": {
		"client placed request": "document_received",
		"document received":     "document_received",
		"in translation":        "translated",
		"under review":          "quality_approved",
		"delivered":             "delivered",
	},
}

// Normalize приводит произвольный внешний текст стадии к каноническому
// коду услуги. Никогда не возвращает код вне пайплайна: уже канонический
// код (включая терминальный маркер) проходит как есть, известный алиас
// маппится, всё остальное — первый этап пайплайна. Тексты стадий
// контролирует чужая команда и они дрейфуют; молча откатиться на ранний
// этап безопаснее, чем вернуть ошибку системе, которая не умеет её
// обрабатывать.
func Normalize(service, raw string) string {
	p, ok := stageDefs[service]
	if !ok || len(p) == 0 {
		return ""
	}

	norm := strings.ToLower(strings.TrimSpace(raw))
	if norm == models.StageCompleted {
		return models.StageCompleted
	}
	for _, d := range p {
		if d.Code == norm {
			return d.Code
		}
	}
	if mapped, ok := crmStageMap[service][norm]; ok && ValidStage(service, mapped) {
		return mapped
	}
	return p[0].Code
}
