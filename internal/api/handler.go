package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sony/gobreaker/v2"

	"whale-futures/config"
	"whale-futures/export"
	"whale-futures/internal/app"
	"whale-futures/internal/settings"
	"whale-futures/models"
	"whale-futures/observability"
	"whale-futures/services"
	"whale-futures/templates"
	"whale-futures/tracker"
)

// Handler handles HTTP API requests
type Handler struct {
	app *app.App
	cfg *config.Config
}

// NewHandler creates a new Handler
func NewHandler(application *app.App, cfg *config.Config) *Handler {
	return &Handler{app: application, cfg: cfg}
}

// RowsResponse is the body of GET /api/rows
type RowsResponse struct {
	Rows     []models.Position      `json:"rows"`
	Count    int                    `json:"count"`
	UIDCount int                    `json:"uidCount"`
	Status   tracker.StatusSnapshot `json:"status"`
}

// SummaryResponse mirrors the upstream AI reply shape
type SummaryResponse struct {
	Success        bool   `json:"success"`
	ResultMarkdown string `json:"resultMarkdown,omitempty"`
	Error          string `json:"error,omitempty"`
	ID             string `json:"id,omitempty"`
}

// APIKeyRequest is the body of PUT /api/settings/api-key
type APIKeyRequest struct {
	Key string `json:"key"`
}

// HandleIndex serves the dashboard page
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	h.htmlResponse(w, templates.Dashboard(h.dashboardView(r)), r)
}

func (h *Handler) dashboardView(r *http.Request) templates.DashboardView {
	hide := hideNegative(r)
	return templates.DashboardView{
		Rows:          h.app.Rows(hide),
		Status:        h.app.Status(),
		UIDCount:      len(h.app.UIDs()),
		HideNegative:  hide,
		KeyConfigured: h.app.KeyStatus().Configured,
		VIP:           h.app.VIP(),
		Location:      h.app.Location(),
		Now:           h.app.Now(),
		RefreshEvery:  h.cfg.PollInterval() * 2,
	}
}

// HandleHealth returns the health status of the application
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	deps := h.app.Health(r.Context())
	status := map[string]interface{}{
		"status":   "ok",
		"services": deps,
	}
	for _, state := range deps {
		if state == app.HealthDisconnected {
			status["status"] = "degraded"
		}
	}

	cbStatus := services.GetGlobalRegistry().Status()
	status["circuit_breakers"] = cbStatus
	for _, cb := range cbStatus {
		if cb.State == "open" {
			status["status"] = "degraded"
			break
		}
	}

	snap := h.app.Status()
	status["tasks"] = snap

	h.jsonResponse(w, status)
}

// HandleGetRows returns the enriched rows newest first
func (h *Handler) HandleGetRows(w http.ResponseWriter, r *http.Request) {
	if isHTMXRequest(r) {
		h.htmlResponse(w, templates.PositionsTable(h.dashboardView(r)), r)
		return
	}

	rows := h.app.Rows(hideNegative(r))
	h.jsonResponse(w, RowsResponse{
		Rows:     rows,
		Count:    len(rows),
		UIDCount: len(h.app.UIDs()),
		Status:   h.app.Status(),
	})
}

// HandleExportCSV downloads the visible rows as CSV
func (h *Handler) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	csv, err := h.app.CSV(hideNegative(r))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(h.app.Now())+`"`)
	io.WriteString(w, csv)
}

// HandleArchiveCSV uploads the visible rows to the snapshot archive
func (h *Handler) HandleArchiveCSV(w http.ResponseWriter, r *http.Request) {
	obj, err := h.app.ArchiveCSV(r.Context(), hideNegative(r))
	if err != nil {
		h.jsonError(w, err.Error(), errorStatus(err))
		return
	}
	h.jsonResponse(w, obj)
}

// HandleGetUIDs returns the traders being polled
func (h *Handler) HandleGetUIDs(w http.ResponseWriter, r *http.Request) {
	uids := h.app.UIDs()
	h.jsonResponse(w, map[string]interface{}{
		"uids":       uids,
		"count":      len(uids),
		"refreshing": h.app.Status().Refreshing,
	})
}

// HandleRefreshUIDs rediscovers the traders to poll
func (h *Handler) HandleRefreshUIDs(w http.ResponseWriter, r *http.Request) {
	uids, err := h.app.RefreshUIDs(r.Context())
	if err != nil {
		h.jsonError(w, err.Error(), errorStatus(err))
		return
	}
	h.jsonResponse(w, map[string]interface{}{
		"uids":  uids,
		"count": len(uids),
	})
}

// HandleRefreshPrices runs one price tick now
func (h *Handler) HandleRefreshPrices(w http.ResponseWriter, r *http.Request) {
	if err := h.app.RefreshPrices(r.Context()); err != nil {
		h.jsonError(w, err.Error(), errorStatus(err))
		return
	}
	h.jsonResponse(w, StatusResponse{Status: "ok"})
}

// HandleRecommend summarizes the visible rows
func (h *Handler) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.Recommend(r.Context(), hideNegative(r))
	h.summaryResponse(w, s, err)
}

// HandleRecommendOrders asks the upstream for its orders summary
func (h *Handler) HandleRecommendOrders(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.RecommendOrders(r.Context())
	h.summaryResponse(w, s, err)
}

func (h *Handler) summaryResponse(w http.ResponseWriter, s *models.Summary, err error) {
	if err != nil {
		observability.WithError(err).Warn("summary request failed")
		h.jsonStatus(w, SummaryResponse{Success: false, Error: summaryErrorMessage(err)}, errorStatus(err))
		return
	}
	h.jsonResponse(w, SummaryResponse{
		Success:        true,
		ResultMarkdown: s.Markdown,
		ID:             s.ID.String(),
	})
}

// summaryErrorMessage prefers the upstream's own message
func summaryErrorMessage(err error) string {
	var upstream *services.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Message
	}
	return err.Error()
}

// HandleGetHistory returns stored AI summaries
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	kind := models.SummaryKind(r.URL.Query().Get("kind"))
	switch kind {
	case "", models.SummaryKindCSV, models.SummaryKindOrders:
	default:
		h.jsonError(w, "kind must be csv or orders", http.StatusBadRequest)
		return
	}

	summaries, err := h.app.SummaryHistory(r.Context(), kind, h.ParseLimitParam(r, 20))
	if err != nil {
		h.jsonError(w, err.Error(), errorStatus(err))
		return
	}
	h.jsonResponse(w, summaries)
}

// HandleGetAPIKey returns the masked key status
func (h *Handler) HandleGetAPIKey(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.KeyStatus())
}

// HandleUpdateAPIKey stores a new internal API key
func (h *Handler) HandleUpdateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req APIKeyRequest
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
			h.jsonError(w, "Invalid JSON request", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.jsonError(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		req.Key = r.FormValue("key")
	}

	if err := h.app.SetAPIKey(req.Key); err != nil {
		h.jsonError(w, err.Error(), errorStatus(err))
		return
	}
	h.jsonResponse(w, h.app.KeyStatus())
}

// HandleDeleteAPIKey clears the stored key
func (h *Handler) HandleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	if err := h.app.ClearAPIKey(); err != nil {
		h.jsonError(w, err.Error(), errorStatus(err))
		return
	}
	h.jsonResponse(w, h.app.KeyStatus())
}

// HandleStream upgrades to the WebSocket row stream
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	h.app.Hub().HandleWS(w, r)
}

// errorStatus maps domain errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, settings.ErrInvalidAPIKey):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrMissingAPIKey):
		return http.StatusUnauthorized
	case errors.Is(err, tracker.ErrRefreshInProgress):
		return http.StatusConflict
	case errors.Is(err, app.ErrArchiveNotConfigured),
		errors.Is(err, app.ErrHistoryNotConfigured),
		errors.Is(err, app.ErrNoSummarizer),
		errors.Is(err, app.ErrKeyStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, tracker.ErrNoTraders),
		errors.Is(err, services.ErrUpstream),
		errors.Is(err, services.ErrHTTPStatus),
		errors.Is(err, services.ErrTransport),
		errors.Is(err, services.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Helper functions

func hideNegative(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("hideNegative")) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// isHTMXRequest checks if the request is from HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// templComponent matches the templ.Component interface
type templComponent interface {
	Render(ctx context.Context, w io.Writer) error
}

// htmlResponse renders a templ component as HTML
func (h *Handler) htmlResponse(w http.ResponseWriter, component templComponent, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := component.Render(r.Context(), w); err != nil {
		observability.WithError(err).Error("failed to render page")
	}
}

// ParseLimitParam parses the limit query parameter
func (h *Handler) ParseLimitParam(r *http.Request, defaultLimit int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			return min(l, 200)
		}
	}
	return defaultLimit
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data interface{}) {
	h.jsonStatus(w, data, http.StatusOK)
}

func (h *Handler) jsonStatus(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	h.jsonStatus(w, map[string]string{"error": message}, status)
}

// StatusResponse represents a status response
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
