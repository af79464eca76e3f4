package trackhttp

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/dcmn/ordertrack/internal/services/tracking"
)

// TokenHeader — заголовок с shared secret для CRM-вебхуков.
const TokenHeader = "X-Zoho-Token"

type API struct {
	svc   *tracking.Service
	token string
}

func New(svc *tracking.Service, token string) *API {
	return &API{svc: svc, token: token}
}

func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Post("/api/tracking/crm/create", a.handleCreate)
	r.Post("/api/tracking/crm/update", a.handleUpdate)
	r.Get("/api/track/{tid}", a.handleTrack)

	return r
}

// readPayload читает тело запроса и разворачивает обёртку "data":
// часть CRM-интеграций шлёт поля плоско, часть — вложенными в data.
// Вложенные значения приоритетнее.
func readPayload(r *http.Request) (map[string]any, error) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "decode body")
	}
	if nested, ok := body["data"].(map[string]any); ok {
		for k, v := range nested {
			body[k] = v
		}
	}
	delete(body, "data")
	return body, nil
}

// authorized проверяет shared secret до какой-либо обработки. Zoho-ворк-
// флоу не всегда умеет заголовки, поэтому токен принимается и полем тела.
func (a *API) authorized(r *http.Request, body map[string]any) bool {
	if a.token == "" {
		return false
	}
	if r.Header.Get(TokenHeader) == a.token {
		return true
	}
	t, _ := body["token"].(string)
	return t == a.token
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := readPayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !a.authorized(r, body) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req := tracking.CreateRequest{
		Name:           str(body, "name"),
		Email:          str(body, "email"),
		Service:        str(body, "service"),
		Stage:          firstStr(body, "current_stage", "stage"),
		ZohoModule:     str(body, "zoho_module"),
		RecordID:       str(body, "record_id"),
		Shipping:       str(body, "shipping"),
		TranslationRaw: str(body, "translation_r"),
		OrderID:        str(body, "order_id"),
		OrderType:      str(body, "order_type"),
		Extra:          extraFields(body),
	}
	if req.Service == "" {
		writeError(w, http.StatusBadRequest, "service is required")
		return
	}

	t, err := a.svc.CreateFromCRM(r.Context(), req)
	if err != nil {
		if errors.Is(err, tracking.ErrUnknownService) {
			writeError(w, http.StatusBadRequest, "unknown service")
			return
		}
		slog.Error("create tracking", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"tid": t.TID})
}

func (a *API) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := readPayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !a.authorized(r, body) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	tid := firstStr(body, "tid", "tracking_id", "Tracking_ID")
	if tid == "" {
		writeError(w, http.StatusBadRequest, "tid is required")
		return
	}

	req := tracking.UpdateRequest{
		TID:          tid,
		CurrentStage: str(body, "current_stage"),
		CRMStageName: firstStr(body, "crm_stage_name", "stage"),
		Passthrough:  body,
	}
	if c, ok := body["comment"].(string); ok {
		req.Comment = &c
	}
	// ключ услуги фиксируется при создании, из апдейтов он игнорируется
	delete(body, "service")

	changed, err := a.svc.UpdateStage(r.Context(), req)
	if err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tracking not found")
			return
		}
		slog.Error("update tracking", "tid", tid, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "changed": changed})
}

func (a *API) handleTrack(w http.ResponseWriter, r *http.Request) {
	tid := chi.URLParam(r, "tid")

	pt, err := a.svc.PublicView(r.Context(), tid)
	if err != nil {
		if errors.Is(err, tracking.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tracking not found")
			return
		}
		slog.Error("public view", "tid", tid, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, pt)
}

// Ключи, уже разобранные в типизированный запрос create. Комментарий
// формы сюда же: на создании он не принимается, иначе через Extra он
// стал бы описанием активного этапа.
var createKeys = map[string]bool{
	"name": true, "email": true, "service": true,
	"current_stage": true, "stage": true,
	"zoho_module": true, "record_id": true,
	"shipping": true, "translation_r": true,
	"order_id": true, "order_type": true,
	"comment": true, "token": true,
}

func extraFields(body map[string]any) map[string]any {
	var extra map[string]any
	for k, v := range body {
		if createKeys[k] {
			continue
		}
		if extra == nil {
			extra = map[string]any{}
		}
		extra[k] = v
	}
	return extra
}

func str(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return s
}

func firstStr(body map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := str(body, k); s != "" {
			return s
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
