package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tasksync/internal/model"
	"tasksync/internal/repository"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "tasksync.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return New(db)
}

func queuedTask(id string) *model.Task {
	return &model.Task{
		ID:        id,
		UserID:    7,
		Title:     "Walk the dog",
		StartTime: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		Priority:  model.PriorityNone,
	}
}

func TestPendingOrderedByInsertion(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	localID := model.NewLocalID()
	if _, err := q.EnqueueCreate(ctx, queuedTask(localID)); err != nil {
		t.Fatalf("EnqueueCreate: %v", err)
	}
	if _, err := q.EnqueueUpdate(ctx, localID, queuedTask(localID)); err != nil {
		t.Fatalf("EnqueueUpdate: %v", err)
	}
	if _, err := q.EnqueueComplete(ctx, localID, time.Now().UTC(), "2025-03-10"); err != nil {
		t.Fatalf("EnqueueComplete: %v", err)
	}

	items, err := q.Pending(ctx, 0)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	want := []model.OpType{model.OpCreate, model.OpUpdate, model.OpComplete}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, item := range items {
		if item.Type != want[i] {
			t.Errorf("items[%d].Type = %s, want %s", i, item.Type, want[i])
		}
		if item.Retries != 0 {
			t.Errorf("items[%d].Retries = %d, want 0", i, item.Retries)
		}
	}
}

func TestPendingLimit(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := q.EnqueueDelete(ctx, "42"); err != nil {
			t.Fatalf("EnqueueDelete: %v", err)
		}
	}
	items, err := q.Pending(ctx, 2)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("got %d items, want 2", len(items))
	}
}

func TestRewriteTaskID(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	localID := model.NewLocalID()
	if _, err := q.EnqueueUpdate(ctx, localID, queuedTask(localID)); err != nil {
		t.Fatalf("EnqueueUpdate: %v", err)
	}
	if _, err := q.EnqueueUncomplete(ctx, localID, "2025-03-10"); err != nil {
		t.Fatalf("EnqueueUncomplete: %v", err)
	}
	if _, err := q.EnqueueDelete(ctx, "other"); err != nil {
		t.Fatalf("EnqueueDelete: %v", err)
	}

	if err := q.RewriteTaskID(ctx, localID, "101"); err != nil {
		t.Fatalf("RewriteTaskID: %v", err)
	}

	items, _ := q.Pending(ctx, 0)
	for _, item := range items {
		if item.Type == model.OpDelete {
			if *item.TaskID != "other" {
				t.Errorf("unrelated item rewritten to %q", *item.TaskID)
			}
			continue
		}
		if *item.TaskID != "101" {
			t.Errorf("%s item TaskID = %q, want 101", item.Type, *item.TaskID)
		}
	}
}

func TestRemoveAllForTask(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	localID := model.NewLocalID()
	q.EnqueueCreate(ctx, queuedTask(localID))
	q.EnqueueComplete(ctx, localID, time.Now().UTC(), "2025-03-10")
	q.EnqueueDelete(ctx, "survivor")

	if err := q.RemoveAllForTask(ctx, localID); err != nil {
		t.Fatalf("RemoveAllForTask: %v", err)
	}

	items, _ := q.Pending(ctx, 0)
	if len(items) != 1 || *items[0].TaskID != "survivor" {
		t.Errorf("items = %+v, want only survivor", items)
	}
}

func TestIncrementRetries(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.EnqueueDelete(ctx, "42")
	if err != nil {
		t.Fatalf("EnqueueDelete: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := q.IncrementRetries(ctx, id); err != nil {
			t.Fatalf("IncrementRetries: %v", err)
		}
	}

	items, _ := q.Pending(ctx, 0)
	if len(items) != 1 || items[0].Retries != 3 {
		t.Fatalf("items = %+v, want one item with 3 retries", items)
	}
}

func TestRemoveAndClearAndCount(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, _ := q.EnqueueDelete(ctx, "1")
	q.EnqueueDelete(ctx, "2")

	if err := q.Remove(ctx, id); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	count, err := q.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("Count = %d, want 1", count)
	}

	if err := q.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	count, _ = q.Count(ctx)
	if count != 0 {
		t.Errorf("Count after clear = %d, want 0", count)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	localID := model.NewLocalID()
	task := queuedTask(localID)
	nine := "09:00:00"
	task.Repetitions = []model.Repetition{{Frequency: model.FreqDaily, TimeOfDay: &nine}}
	completedAt := time.Date(2025, 3, 10, 18, 30, 0, 0, time.UTC)

	q.EnqueueCreate(ctx, task)
	q.EnqueueComplete(ctx, localID, completedAt, "2025-03-10")
	q.EnqueueUncomplete(ctx, localID, "2025-03-11")

	items, _ := q.Pending(ctx, 0)
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}

	decoded, err := DecodeTask(items[0])
	if err != nil {
		t.Fatalf("DecodeTask: %v", err)
	}
	if decoded.ID != localID || decoded.Title != task.Title || len(decoded.Repetitions) != 1 {
		t.Errorf("decoded task = %+v, want original state", decoded)
	}

	comp, err := DecodeComplete(items[1])
	if err != nil {
		t.Fatalf("DecodeComplete: %v", err)
	}
	if !comp.CompletionTime.Equal(completedAt) || comp.Date != "2025-03-10" {
		t.Errorf("decoded complete = %+v", comp)
	}

	uncomp, err := DecodeUncomplete(items[2])
	if err != nil {
		t.Fatalf("DecodeUncomplete: %v", err)
	}
	if uncomp.Date != "2025-03-11" {
		t.Errorf("decoded uncomplete date = %q, want 2025-03-11", uncomp.Date)
	}
}

func TestEnqueueValidation(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	cases := []struct {
		name string
		call func() (uint, error)
	}{
		{"create without task", func() (uint, error) { return q.EnqueueCreate(ctx, nil) }},
		{"create without id", func() (uint, error) { return q.EnqueueCreate(ctx, &model.Task{}) }},
		{"update without id", func() (uint, error) { return q.EnqueueUpdate(ctx, "", queuedTask("x")) }},
		{"delete without id", func() (uint, error) { return q.EnqueueDelete(ctx, "") }},
		{"complete without date", func() (uint, error) { return q.EnqueueComplete(ctx, "42", time.Now(), "") }},
		{"uncomplete without date", func() (uint, error) { return q.EnqueueUncomplete(ctx, "42", "") }},
	}
	for _, tc := range cases {
		if _, err := tc.call(); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}

	count, _ := q.Count(ctx)
	if count != 0 {
		t.Errorf("invalid enqueues persisted %d items", count)
	}
}
