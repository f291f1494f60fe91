package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dayplan/internal/config"
	"dayplan/internal/ics"
	"dayplan/internal/model"
	"dayplan/internal/tasks"
)

const standupICS = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\nUID:%s\r\nSUMMARY:Standup\r\nDTSTART:20240110T090000Z\r\nDTEND:20240110T091500Z\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"

func newTestServer(t *testing.T, calendars []config.CalendarConfig) (*Server, *tasks.Store) {
	t.Helper()

	store, err := tasks.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.Calendars = calendars

	s := NewServer(cfg, store, ics.NewFetcher(t.TempDir()))
	s.now = func() time.Time { return time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC) }
	return s, store
}

func icsUpstream(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, h http.Handler, method, path string, body []byte, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestTimelineDeduplicatesAcrossSources(t *testing.T) {
	// The same standup reported by two backends with different UIDs.
	up1 := icsUpstream(t, fmtICS("uid-a"))
	up2 := icsUpstream(t, fmtICS("uid-b"))

	s, store := newTestServer(t, []config.CalendarConfig{
		{URL: up1.URL, ID: "work"},
		{URL: up2.URL, ID: "personal"},
	})

	ctx := context.Background()
	for _, title := range []string{"Email", "Report", "Review"} {
		if _, err := store.Create(ctx, model.Task{Title: title}); err != nil {
			t.Fatal(err)
		}
	}

	var resp struct {
		Date  string               `json:"date"`
		Items []model.TimelineItem `json:"items"`
	}
	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/timeline?date=2024-01-10", nil, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("timeline status = %d: %s", rec.Code, rec.Body.String())
	}

	var folders, gaps int
	for _, item := range resp.Items {
		switch item.ItemType {
		case model.ItemEventFolder:
			folders++
			if item.Title != "Standup" {
				t.Fatalf("folder title = %q", item.Title)
			}
			// First-seen source survives.
			if item.SourceID != "uid-a" {
				t.Fatalf("folder source id = %q, want uid-a", item.SourceID)
			}
		case model.ItemGapTask:
			gaps++
		}
	}
	if folders != 1 {
		t.Fatalf("got %d event folders, want 1 after dedup", folders)
	}
	if gaps != 3 {
		t.Fatalf("got %d gap tasks, want all 3 standalone tasks scheduled", gaps)
	}

	// now=08:00, standup at 09:00: exactly one task fits before it.
	if resp.Items[0].ItemType != model.ItemGapTask {
		t.Fatalf("first item = %s, want a gap task at 08:00", resp.Items[0].ItemType)
	}
	if resp.Items[1].ItemType != model.ItemEventFolder {
		t.Fatalf("second item = %s, want the event folder", resp.Items[1].ItemType)
	}

	for i := 1; i < len(resp.Items); i++ {
		if resp.Items[i].StartTime.Before(resp.Items[i-1].StartTime) {
			t.Fatalf("timeline not ordered at %d", i)
		}
	}
}

func TestTimelineInvalidDate(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/timeline?date=next-tuesday", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTimelineSurvivesDeadSource(t *testing.T) {
	up := icsUpstream(t, fmtICS("uid-a"))

	s, _ := newTestServer(t, []config.CalendarConfig{
		{URL: up.URL, ID: "work"},
		{URL: "http://127.0.0.1:1/nope.ics", ID: "dead"},
	})

	var resp struct {
		Items []model.TimelineItem `json:"items"`
	}
	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/timeline?date=2024-01-10", nil, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite a dead source", rec.Code)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("got %d items, want the healthy source's event", len(resp.Items))
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	var created model.Task
	rec := doJSON(t, h, http.MethodPost, "/api/tasks", []byte(`{"title":"Write notes"}`), &created)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	if created.ID == "" || created.Title != "Write notes" {
		t.Fatalf("created = %+v", created)
	}

	var list []model.Task
	if rec := doJSON(t, h, http.MethodGet, "/api/tasks", nil, &list); rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if len(list) != 1 {
		t.Fatalf("list len = %d", len(list))
	}

	var patched model.Task
	rec = doJSON(t, h, http.MethodPatch, "/api/tasks/"+created.ID,
		[]byte(`{"completed":true,"add_time_spent_seconds":120}`), &patched)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", rec.Code, rec.Body.String())
	}
	if !patched.Completed || patched.TimeSpentSeconds != 120 {
		t.Fatalf("patched = %+v", patched)
	}

	if rec := doJSON(t, h, http.MethodDelete, "/api/tasks/"+created.ID, nil, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/api/tasks/"+created.ID, nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
}

func TestTimelineReflectsTaskMutations(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	// s.now is pinned, so the cached entry never ages out on its own.
	// Every mutation below must evict it or the stale day keeps serving.
	timelineLen := func() int {
		t.Helper()
		var resp struct {
			Items []model.TimelineItem `json:"items"`
		}
		rec := doJSON(t, h, http.MethodGet, "/api/timeline?date=2024-01-10", nil, &resp)
		if rec.Code != http.StatusOK {
			t.Fatalf("timeline status = %d: %s", rec.Code, rec.Body.String())
		}
		return len(resp.Items)
	}

	if n := timelineLen(); n != 0 {
		t.Fatalf("empty timeline has %d items", n)
	}

	var created model.Task
	rec := doJSON(t, h, http.MethodPost, "/api/tasks", []byte(`{"title":"Pay rent"}`), &created)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	if n := timelineLen(); n != 1 {
		t.Fatalf("timeline after create has %d items, want the new task scheduled", n)
	}

	rec = doJSON(t, h, http.MethodPatch, "/api/tasks/"+created.ID, []byte(`{"completed":true}`), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", rec.Code, rec.Body.String())
	}
	if n := timelineLen(); n != 0 {
		t.Fatalf("timeline after completing the task has %d items, want 0", n)
	}

	var second model.Task
	doJSON(t, h, http.MethodPost, "/api/tasks", []byte(`{"title":"Walk dog"}`), &second)
	if n := timelineLen(); n != 1 {
		t.Fatalf("timeline after second create has %d items", n)
	}
	if rec := doJSON(t, h, http.MethodDelete, "/api/tasks/"+second.ID, nil, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if n := timelineLen(); n != 0 {
		t.Fatalf("timeline after delete has %d items, want 0", n)
	}
}

func TestTaskCreateRequiresTitle(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/tasks", []byte(`{}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestConfigEndpoint(t *testing.T) {
	s, _ := newTestServer(t, []config.CalendarConfig{{URL: "https://example.com/a.ics", ID: "a"}})

	var resp settingsResponse
	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/config", nil, &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.CushionMinutes != 5 || resp.DefaultTaskDurationMinutes != 30 {
		t.Fatalf("settings = %+v", resp)
	}
	if len(resp.Calendars) != 1 {
		t.Fatalf("calendars = %+v", resp.Calendars)
	}
}

func TestBasicAuthProtectsAPIButNotHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.cfg.BasicAuth = &config.BasicAuthConfig{Username: "u", Password: "p"}
	h := s.Handler()

	if rec := doJSON(t, h, http.MethodGet, "/health", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("health behind auth = %d, want 200", rec.Code)
	}

	if rec := doJSON(t, h, http.MethodGet, "/api/tasks", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated API = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated API = %d, want 200", rec.Code)
	}
}

func fmtICS(uid string) string {
	return fmt.Sprintf(standupICS, uid)
}
