package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sleepalarm/internal/alarm"
	"sleepalarm/internal/config"
	appLog "sleepalarm/internal/log"
	"sleepalarm/internal/model"
	"sleepalarm/internal/session"
	"sleepalarm/internal/sleep"
)

var validate = validator.New()

// AlarmService is the session surface the HTTP API drives.
type AlarmService interface {
	Alarms() []session.AlarmView
	AddAlarm(ctx context.Context, t model.WallTime) (model.AlarmEntry, error)
	RemoveLast(ctx context.Context) error
	ClearAlarms(ctx context.Context)
	SetSound(ctx context.Context, id int, sound string) error
	RecordEvent(ctx context.Context, kind model.EventKind, ts time.Time) (model.SleepEvent, error)
	Heatmap() ([]model.HeatMapCell, int)
	Reminders(ctx context.Context) ([]string, error)
}

// CalendarFeed renders the scheduled reminders as iCalendar.
type CalendarFeed interface {
	WriteICS(w io.Writer) error
}

// Server provides the HTTP API for alarms, sounds and sleep records.
type Server struct {
	cfg      *config.Config
	alarms   AlarmService
	calendar CalendarFeed
	mux      *http.ServeMux

	// The heat map is rebuilt from every stored record, so responses are
	// cached briefly and dropped whenever a new event is recorded.
	heatmapMu    sync.RWMutex
	heatmapCache *heatmapCache
}

// NewServer constructs a new Server. calendar may be nil, in which case
// /api/alarms.ics answers 404.
func NewServer(cfg *config.Config, alarms AlarmService, calendar CalendarFeed) *Server {
	s := &Server{
		cfg:      cfg,
		alarms:   alarms,
		calendar: calendar,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="sleepalarm", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/alarms", s.handleListAlarms)
	s.mux.HandleFunc("POST /api/alarms", s.handleAddAlarm)
	s.mux.HandleFunc("DELETE /api/alarms", s.handleClearAlarms)
	s.mux.HandleFunc("DELETE /api/alarms/last", s.handleRemoveLast)
	s.mux.HandleFunc("GET /api/alarms.ics", s.handleICS)
	s.mux.HandleFunc("GET /api/reminders", s.handleReminders)
	s.mux.HandleFunc("PUT /api/sounds", s.handleSetSound)

	s.mux.HandleFunc("POST /api/sleep/events", s.handleRecordEvent)
	s.mux.HandleFunc("GET /api/heatmap", s.handleHeatmap)
	s.mux.HandleFunc("GET /api/heatmap.xlsx", s.handleHeatmapXLSX)

	s.mux.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type alarmsResponse struct {
	Alarms []session.AlarmView `json:"alarms"`
}

func (s *Server) handleListAlarms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, alarmsResponse{Alarms: s.alarms.Alarms()})
}

// addAlarmRequest is the body of POST /api/alarms.
type addAlarmRequest struct {
	Hour   int    `json:"hour" validate:"required,min=1,max=12"`
	Minute int    `json:"minute" validate:"min=0,max=59"`
	Second int    `json:"second" validate:"min=0,max=59"`
	Period string `json:"period" validate:"required,oneof=AM PM"`
}

type alarmDTO struct {
	ID    int        `json:"id"`
	Time  string     `json:"time"`
	Role  model.Role `json:"role"`
	Label string     `json:"label"`
}

type spacingErrorResponse struct {
	Error string `json:"error"`
	Diff  int    `json:"diff"`
}

func (s *Server) handleAddAlarm(w http.ResponseWriter, r *http.Request) {
	var req addAlarmRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	e, err := s.alarms.AddAlarm(r.Context(), model.WallTime{
		Hour12: req.Hour,
		Minute: req.Minute,
		Second: req.Second,
		Period: model.Period(req.Period),
	})
	var spacing *alarm.SpacingError
	switch {
	case errors.As(err, &spacing):
		writeJSON(w, http.StatusUnprocessableEntity, spacingErrorResponse{Error: err.Error(), Diff: spacing.Diff})
		return
	case errors.Is(err, alarm.ErrInvalidTime):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		appLog.Error("api add alarm failed", err)
		writeError(w, http.StatusInternalServerError, "failed to add alarm")
		return
	}

	writeJSON(w, http.StatusCreated, alarmDTO{
		ID:    e.ID,
		Time:  e.Time.Format(),
		Role:  e.Role,
		Label: e.Label(),
	})
}

func (s *Server) handleClearAlarms(w http.ResponseWriter, r *http.Request) {
	s.alarms.ClearAlarms(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoveLast is a no-op on an empty set, like the remove button it
// backs.
func (s *Server) handleRemoveLast(w http.ResponseWriter, r *http.Request) {
	err := s.alarms.RemoveLast(r.Context())
	if err != nil && !errors.Is(err, alarm.ErrEmptyCollection) {
		appLog.Error("api remove alarm failed", err)
		writeError(w, http.StatusInternalServerError, "failed to remove alarm")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setSoundRequest struct {
	ID    int    `json:"id" validate:"required,min=1"`
	Sound string `json:"sound" validate:"max=255"`
}

func (s *Server) handleSetSound(w http.ResponseWriter, r *http.Request) {
	var req setSoundRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	err := s.alarms.SetSound(r.Context(), req.ID, req.Sound)
	switch {
	case errors.Is(err, session.ErrUnknownAlarm):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		appLog.Error("api set sound failed", err, "id", req.ID)
		writeError(w, http.StatusInternalServerError, "failed to set sound")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type remindersResponse struct {
	Reminders []string `json:"reminders"`
}

func (s *Server) handleReminders(w http.ResponseWriter, r *http.Request) {
	ids, err := s.alarms.Reminders(r.Context())
	if err != nil {
		appLog.Error("api reminders failed", err)
		writeError(w, http.StatusBadGateway, "failed to list reminders")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, remindersResponse{Reminders: ids})
}

func (s *Server) handleICS(w http.ResponseWriter, _ *http.Request) {
	if s.calendar == nil {
		writeError(w, http.StatusNotFound, "calendar feed disabled")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="alarms.ics"`)
	if err := s.calendar.WriteICS(w); err != nil {
		appLog.Error("api ics render failed", err)
	}
}

// sleepEventRequest is the body of POST /api/sleep/events. Timestamp
// defaults to now.
type sleepEventRequest struct {
	Kind      string     `json:"kind" validate:"required,oneof=got_up went_back_to_sleep"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type sleepEventDTO struct {
	Kind      model.EventKind `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Date      string          `json:"date"`
	Time      string          `json:"time"`
}

func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var req sleepEventRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	var ts time.Time
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	ev, err := s.alarms.RecordEvent(r.Context(), model.EventKind(req.Kind), ts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.invalidateHeatmap()

	writeJSON(w, http.StatusCreated, sleepEventDTO{
		Kind:      ev.Kind,
		Timestamp: ev.Timestamp,
		Date:      sleep.FormatDate(ev.Timestamp),
		Time:      sleep.FormatTime(ev.Timestamp),
	})
}

type heatmapCellDTO struct {
	Day   string `json:"day"`
	Hour  int    `json:"hour"`
	Count int    `json:"count"`
}

type heatmapResponse struct {
	Cells   []heatmapCellDTO `json:"cells"`
	Dropped int              `json:"dropped"`
}

// heatmapCache holds the last aggregation and its timestamp.
type heatmapCache struct {
	cells     []model.HeatMapCell
	dropped   int
	updatedAt time.Time
}

const heatmapCacheTTL = 30 * time.Second

func (s *Server) heatmap() ([]model.HeatMapCell, int) {
	now := time.Now()

	s.heatmapMu.RLock()
	hc := s.heatmapCache
	s.heatmapMu.RUnlock()
	if hc != nil && now.Sub(hc.updatedAt) < heatmapCacheTTL {
		return hc.cells, hc.dropped
	}

	cells, dropped := s.alarms.Heatmap()
	s.heatmapMu.Lock()
	s.heatmapCache = &heatmapCache{cells: cells, dropped: dropped, updatedAt: now}
	s.heatmapMu.Unlock()
	return cells, dropped
}

func (s *Server) invalidateHeatmap() {
	s.heatmapMu.Lock()
	s.heatmapCache = nil
	s.heatmapMu.Unlock()
}

func (s *Server) handleHeatmap(w http.ResponseWriter, _ *http.Request) {
	cells, dropped := s.heatmap()
	dtos := make([]heatmapCellDTO, len(cells))
	for i, c := range cells {
		dtos[i] = heatmapCellDTO{Day: sleep.FormatDate(c.Day), Hour: c.Hour, Count: c.Count}
	}
	writeJSON(w, http.StatusOK, heatmapResponse{Cells: dtos, Dropped: dropped})
}

func (s *Server) handleHeatmapXLSX(w http.ResponseWriter, _ *http.Request) {
	cells, _ := s.heatmap()
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="sleep-heatmap.xlsx"`)
	if err := sleep.WriteHeatmapXLSX(w, cells); err != nil {
		appLog.Error("api heatmap export failed", err)
	}
}

// decodeAndValidate reads a JSON body into v and runs the validator. It
// writes a 400 and reports false on any failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, len(verrs))
	for i, fe := range verrs {
		parts[i] = strings.ToLower(fe.Field()) + " failed " + fe.Tag()
	}
	return strings.Join(parts, "; ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
