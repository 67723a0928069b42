package api

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/shaiso/Herald/internal/domain"
)

// APIKeyHeader — заголовок с общим секретом webhook.
const APIKeyHeader = "X-API-Key"

// maxTriggerBody — предел размера тела webhook.
const maxTriggerBody = 4 << 10

// TriggerSchedules выполняет один проход по due schedules.
// POST /webhook/trigger-schedules
//
// Ключ передаётся в заголовке X-API-Key или в поле api_key тела.
// Ответ: {executed_count, timestamp} без обёртки data; 401 при неверном
// ключе (хранилище не читается), 500 при ошибке прохода.
func (h *Handler) TriggerSchedules(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeWebhook(r) {
		h.logger.Warn("webhook rejected", "remote_addr", r.RemoteAddr)
		Unauthorized(w, "invalid api key")
		return
	}

	result, err := h.engine.RunDue(r.Context(), domain.SurfaceWebhook)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	JSON(w, http.StatusOK, TriggerResponse{
		ExecutedCount: result.Executed,
		Timestamp:     h.now(),
	})
}

// authorizeWebhook сравнивает ключ за постоянное время.
// Пустой настроенный ключ отклоняет все запросы.
func (h *Handler) authorizeWebhook(r *http.Request) bool {
	if h.webhookKey == "" {
		return false
	}

	key := strings.TrimSpace(r.Header.Get(APIKeyHeader))
	if key == "" {
		var req TriggerRequest
		body, err := io.ReadAll(io.LimitReader(r.Body, maxTriggerBody))
		if err == nil && len(body) > 0 && json.Unmarshal(body, &req) == nil {
			key = strings.TrimSpace(req.APIKey)
		}
	}
	if key == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(key), []byte(h.webhookKey)) == 1
}
