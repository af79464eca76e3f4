package zoho

import "context"

// Client — две операции CRM, от которых зависит ядро. Всё остальное
// (HTTP, OAuth) — забота реализации.
type Client interface {
	ReadRecordField(ctx context.Context, module, recordID, field string) (string, error)
	UpdateRecordFields(ctx context.Context, module, recordID string, fields map[string]any) error
}

// Поле в CRM, куда записывается идентификатор трекинга.
// Зафиксировано контрактом с командой CRM.
const TrackingIDField = "Tracking_ID"

// Маппинг названий модулей из Zoho webhook → API имена модулей для Zoho API.
var moduleMap = map[string]string{
	"FBI_Background_Checks":  "Deals",
	"Embassy_Legalization":   "Embassy_Legalization",
	"Translation_Services":   "Translation_Services",
	"Apostille_Services":     "Apostille_Services",
	"Triple_Seal_Apostilles": "Triple_Seal_Apostilles",
	"I_9_Verification":       "I_9_Verification",
	"Get_A_Quote_Leads":      "Get_A_Quote_Leads",
}

// APIModule переводит имя модуля из webhook-пейлоада в API-имя.
// Неизвестные модули отдаём как есть: в webhook может приехать уже
// правильное API-имя.
func APIModule(webhookModule string) string {
	if m, ok := moduleMap[webhookModule]; ok {
		return m
	}
	return webhookModule
}
