package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"dayplan/internal/config"
	"dayplan/internal/ics"
	appLog "dayplan/internal/log"
	"dayplan/internal/model"
	"dayplan/internal/tasks"
	"dayplan/internal/timeline"
)

// Server exposes the timeline resolution pipeline and the task store
// over HTTP.
type Server struct {
	cfg     *config.Config
	store   *tasks.Store
	fetcher *ics.Fetcher
	loc     *time.Location
	mux     *http.ServeMux

	// Per-day cache of resolved timelines so repeated UI polls do not
	// re-run fetch/parse/expand on every request.
	timelineMu    sync.RWMutex
	timelineCache map[string]timelineCacheEntry

	// now is swappable for tests.
	now func() time.Time
}

type timelineCacheEntry struct {
	resp      timelineResponse
	updatedAt time.Time
}

const timelineCacheTTL = 30 * time.Second

// NewServer constructs a Server.
func NewServer(cfg *config.Config, store *tasks.Store, fetcher *ics.Fetcher) *Server {
	s := &Server{
		cfg:           cfg,
		store:         store,
		fetcher:       fetcher,
		loc:           resolveLocationOrLocal(cfg.Timezone),
		mux:           http.NewServeMux(),
		timelineCache: make(map[string]timelineCacheEntry),
		now:           time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server,
// including the basic auth middleware when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password counts as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health.
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
			w.Header().Set("WWW-Authenticate", `Basic realm="dayplan", charset="UTF-8"`)
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
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/timeline", s.handleTimeline)
	s.mux.HandleFunc("/api/tasks", s.handleTasks)
	s.mux.HandleFunc("/api/tasks/", s.handleTaskByID)
	s.mux.HandleFunc("/api/config", s.handleConfig)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// timelineResponse is the JSON response shape for /api/timeline.
type timelineResponse struct {
	Date     string               `json:"date"`
	Timezone string               `json:"timezone"`
	Items    []model.TimelineItem `json:"items"`
}

// handleTimeline resolves the ordered day timeline for a target date.
//
// GET /api/timeline?date=2024-01-10
//   - date: local day to resolve, YYYY-MM-DD; defaults to today.
//
// The full pipeline runs per request: fetch calendar sources, decode,
// normalize timestamps, expand recurrences over the day window, drop
// cross-source duplicates, then interleave tasks into the free gaps.
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx := r.Context()
	now := s.now().In(s.loc)

	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		dateStr = now.Format("2006-01-02")
	}
	day, err := time.ParseInLocation("2006-01-02", dateStr, s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return
	}
	win := timeline.Window{Start: day, End: day.AddDate(0, 0, 1)}

	// Fast path: fresh cached resolution for this date.
	s.timelineMu.RLock()
	cached, ok := s.timelineCache[dateStr]
	s.timelineMu.RUnlock()
	if ok && now.Sub(cached.updatedAt) < timelineCacheTTL {
		writeJSON(w, http.StatusOK, cached.resp)
		return
	}

	appLog.Info("timeline request",
		"date", dateStr,
		"window_start", win.Start.Format(time.RFC3339),
		"window_end", win.End.Format(time.RFC3339),
		"timezone", s.loc.String(),
	)

	events := s.collectOccurrences(ctx, win)

	allTasks, err := s.store.List(ctx)
	if err != nil {
		appLog.Error("timeline: task list failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load tasks")
		return
	}

	items := timeline.Resolve(events, allTasks, timeline.ResolveConfig{
		Now:          now,
		Cushion:      time.Duration(s.cfg.CushionMinutes) * time.Minute,
		TaskDuration: time.Duration(s.cfg.DefaultTaskDurationMinutes) * time.Minute,
	})

	resp := timelineResponse{
		Date:     dateStr,
		Timezone: s.loc.String(),
		Items:    items,
	}

	s.timelineMu.Lock()
	s.timelineCache[dateStr] = timelineCacheEntry{resp: resp, updatedAt: now}
	s.timelineMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// invalidateTimelines drops all cached timeline responses. Task
// mutations must call this: a cached day would otherwise keep serving
// the pre-mutation schedule for the rest of the TTL.
func (s *Server) invalidateTimelines() {
	s.timelineMu.Lock()
	s.timelineCache = make(map[string]timelineCacheEntry)
	s.timelineMu.Unlock()
}

// collectOccurrences runs fetch -> decode -> normalize -> expand ->
// dedup for all enabled calendar sources. Per-source failures are
// logged and skipped; the day still resolves with what remains.
func (s *Server) collectOccurrences(ctx context.Context, win timeline.Window) []model.CalendarEvent {
	sources := s.Sources()
	if len(sources) == 0 {
		return nil
	}

	fetchResults, fetchErrs := s.fetcher.FetchAll(ctx, sources)
	if len(fetchErrs) > 0 {
		appLog.Error("timeline: one or more calendar fetches failed", errorsAggregate(fetchErrs), "error_count", len(fetchErrs))
	}

	var all []model.CalendarEvent
	for _, res := range fetchResults {
		raws, err := ics.ParseICS(res.Source, res.Body)
		if err != nil {
			appLog.Error("timeline: parse failed for source", err, "id", res.Source.ID)
			continue
		}

		norm := timeline.Normalizer{Location: s.loc, TrustUTC: res.Source.TrustUTC}
		for _, raw := range raws {
			start, end := norm.Event(raw)
			all = append(all, timeline.ExpandEvent(raw, start, end, win)...)
		}
	}

	return timeline.Dedup(all)
}

// Sources maps the enabled configured calendars onto fetcher sources.
func (s *Server) Sources() []ics.Source {
	sources := make([]ics.Source, 0, len(s.cfg.Calendars))
	for _, c := range s.cfg.Calendars {
		if c.URL == "" || !c.IsEnabled() {
			continue
		}
		id := c.ID
		if id == "" {
			if c.Name != "" {
				id = c.Name
			} else {
				id = c.URL
			}
		}
		sources = append(sources, ics.Source{ID: id, URL: c.URL, TrustUTC: c.TrustUTC})
	}
	return sources
}

// handleTasks serves the task collection.
//
// GET  /api/tasks -> list all tasks
// POST /api/tasks -> create a task (id assigned when omitted)
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		list, err := s.store.List(ctx)
		if err != nil {
			appLog.Error("task list failed", err)
			writeError(w, http.StatusInternalServerError, "failed to list tasks")
			return
		}
		if list == nil {
			list = []model.Task{}
		}
		writeJSON(w, http.StatusOK, list)

	case http.MethodPost:
		var t model.Task
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			writeError(w, http.StatusBadRequest, "invalid task body")
			return
		}
		if t.Title == "" {
			writeError(w, http.StatusBadRequest, "task title is required")
			return
		}
		created, err := s.store.Create(ctx, t)
		if err != nil {
			appLog.Error("task create failed", err)
			writeError(w, http.StatusInternalServerError, "failed to create task")
			return
		}
		s.invalidateTimelines()
		writeJSON(w, http.StatusCreated, created)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// taskPatch is the JSON body accepted by PATCH /api/tasks/{id}. Only
// present fields are applied.
type taskPatch struct {
	Title            *string `json:"title,omitempty"`
	Completed        *bool   `json:"completed,omitempty"`
	ParentEventID    *string `json:"parent_event_id,omitempty"`
	IsActive         *bool   `json:"is_active,omitempty"`
	AddTimeSpentSecs *int    `json:"add_time_spent_seconds,omitempty"`
}

// handleTaskByID serves a single task: GET, PATCH, DELETE.
func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		t, err := s.store.Get(ctx, id)
		if err != nil {
			s.writeStoreError(w, err, "task get failed")
			return
		}
		writeJSON(w, http.StatusOK, t)

	case http.MethodPatch:
		var patch taskPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid patch body")
			return
		}

		t, err := s.store.Get(ctx, id)
		if err != nil {
			s.writeStoreError(w, err, "task get failed")
			return
		}
		if patch.Title != nil {
			t.Title = *patch.Title
		}
		if patch.Completed != nil {
			t.Completed = *patch.Completed
		}
		if patch.ParentEventID != nil {
			t.ParentEventID = *patch.ParentEventID
		}
		if patch.IsActive != nil {
			t.IsActive = *patch.IsActive
		}
		if patch.AddTimeSpentSecs != nil {
			t.TimeSpentSeconds += *patch.AddTimeSpentSecs
		}

		updated, err := s.store.Update(ctx, t)
		if err != nil {
			s.writeStoreError(w, err, "task update failed")
			return
		}
		s.invalidateTimelines()
		writeJSON(w, http.StatusOK, updated)

	case http.MethodDelete:
		if err := s.store.Delete(ctx, id); err != nil {
			s.writeStoreError(w, err, "task delete failed")
			return
		}
		s.invalidateTimelines()
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error, logMsg string) {
	if errors.Is(err, tasks.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	appLog.Error(logMsg, err)
	writeError(w, http.StatusInternalServerError, "task store error")
}

// settingsResponse is the JSON view of the scheduling settings.
type settingsResponse struct {
	CushionMinutes             int                     `json:"cushion_minutes"`
	DefaultTaskDurationMinutes int                     `json:"default_task_duration_minutes"`
	Timezone                   string                  `json:"timezone"`
	Calendars                  []config.CalendarConfig `json:"calendars"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		CushionMinutes:             s.cfg.CushionMinutes,
		DefaultTaskDurationMinutes: s.cfg.DefaultTaskDurationMinutes,
		Timezone:                   s.loc.String(),
		Calendars:                  s.cfg.Calendars,
	})
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" || name == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
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

func errorsAggregate(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	var b strings.Builder
	for i, e := range errs {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(e.Error())
	}
	return errors.New(b.String())
}
