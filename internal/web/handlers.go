package web

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"kotonoha/internal/cost"
	"kotonoha/internal/engine"
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Handlers exposes the session to the presentation layer
type Handlers struct {
	logger   *zap.Logger
	session  *engine.Session
	governor *cost.Governor
	hub      *EventHub
}

func NewHandlers(session *engine.Session, governor *cost.Governor, hub *EventHub, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		logger:   logger.Named("web"),
		session:  session,
		governor: governor,
		hub:      hub,
	}
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "kotonoha",
	})
}

// State returns the read-only session projection
func (h *Handlers) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// Submit runs a player action through the generation pipeline
func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	if err := h.session.Submit(r.Context(), req.Text); err != nil {
		if errors.Is(err, engine.ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// Retry regenerates the trailing agent turn
func (h *Handlers) Retry(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Retry(r.Context()); err != nil {
		switch {
		case errors.Is(err, engine.ErrBusy):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, engine.ErrNoAgentTurn):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// Summarize refreshes the long-term memory summary
func (h *Handlers) Summarize(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Summarize(r.Context()); err != nil {
		if errors.Is(err, engine.ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// UpdateSettings applies a partial configuration update
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch engine.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings payload")
		return
	}
	writeJSON(w, http.StatusOK, h.session.UpdateSettings(patch))
}

// DismissError clears the session-level error
func (h *Handlers) DismissError(w http.ResponseWriter, r *http.Request) {
	h.session.DismissError()
	w.WriteHeader(http.StatusNoContent)
}

// Save persists the session into a slot
func (h *Handlers) Save(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid slot")
		return
	}

	if err := h.session.Persist(r.Context(), slot); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Load restores the session from a slot
func (h *Handlers) Load(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid slot")
		return
	}

	if err := h.session.Restore(r.Context(), slot); err != nil {
		if errors.Is(err, engine.ErrSlotNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// SaveList returns the occupied save slots
func (h *Handlers) SaveList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.SaveList(r.Context()))
}

// Reset discards the running narrative
func (h *Handlers) Reset(w http.ResponseWriter, r *http.Request) {
	h.session.Reset()
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

// Budget returns the derived monthly budget state
func (h *Handlers) Budget(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.governor.MonthlyStatus(r.Context()))
}

// CostBreakdown returns the per-month ledger rollup
func (h *Handlers) CostBreakdown(w http.ResponseWriter, r *http.Request) {
	breakdown, err := h.governor.MonthlyBreakdown(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

// CostReport streams the ledger as a CSV report
func (h *Handlers) CostReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.governor.ExportCSV(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="cost-report.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report))
}

// Gallery returns the unlocked gallery records
func (h *Handlers) Gallery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Snapshot().Gallery)
}

// ServeWS upgrades the connection and registers it with the event hub
func (h *Handlers) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:   newClientID(),
		Conn: conn,
		Send: make(chan []byte, 256),
		Hub:  h.hub,
	}
	h.hub.register <- client
	go client.readPump()
}

func newClientID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
