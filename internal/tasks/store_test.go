package tasks

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"dayplan/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewMemory()
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewWithPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "dayplan.db")
	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != currentVersion {
		t.Fatalf("user_version = %d, want %d", version, currentVersion)
	}
}

func TestCreateAssignsID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, model.Task{Title: "Write report"})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}
	if created.Source != model.TaskSourceLocal {
		t.Fatalf("source = %q, want Local default", created.Source)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Write report" {
		t.Fatalf("title = %q", got.Title)
	}
}

func TestListPreservesInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		if _, err := s.Create(ctx, model.Task{ID: title, Title: title}); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d tasks, want 3", len(list))
	}
	for i, want := range []string{"first", "second", "third"} {
		if list[i].ID != want {
			t.Fatalf("list[%d].ID = %q, want %q", i, list[i].ID, want)
		}
	}
}

func TestParentEventIDRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, model.Task{ID: "standalone", Title: "standalone"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, model.Task{ID: "nested", Title: "nested", ParentEventID: "ev-1"}); err != nil {
		t.Fatal(err)
	}

	standalone, err := s.Get(ctx, "standalone")
	if err != nil {
		t.Fatal(err)
	}
	if standalone.ParentEventID != "" {
		t.Fatalf("standalone parent = %q, want empty", standalone.ParentEventID)
	}
	if !standalone.Standalone() {
		t.Fatal("task without parent must be standalone")
	}

	nested, err := s.Get(ctx, "nested")
	if err != nil {
		t.Fatal(err)
	}
	if nested.ParentEventID != "ev-1" {
		t.Fatalf("nested parent = %q, want ev-1", nested.ParentEventID)
	}
	if nested.Standalone() {
		t.Fatal("task with parent must not be standalone")
	}
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, model.Task{Title: "draft"})
	if err != nil {
		t.Fatal(err)
	}

	created.Title = "final"
	created.Completed = true
	created.IsActive = true
	if _, err := s.Update(ctx, created); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "final" || !got.Completed || !got.IsActive {
		t.Fatalf("update not persisted: %+v", got)
	}
}

func TestAddTimeSpent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, model.Task{Title: "timed", TimeSpentSeconds: 60})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddTimeSpent(ctx, created.ID, 90); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TimeSpentSeconds != 150 {
		t.Fatalf("time spent = %d, want 150", got.TimeSpentSeconds)
	}
}

func TestNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get err = %v, want ErrNotFound", err)
	}
	if _, err := s.Update(ctx, model.Task{ID: "nope", Title: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete err = %v, want ErrNotFound", err)
	}
	if err := s.AddTimeSpent(ctx, "nope", 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("AddTimeSpent err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, model.Task{Title: "temp"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, created.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete err = %v, want ErrNotFound", err)
	}
}
