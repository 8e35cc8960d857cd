// Package queue is the durable, append-only log of mutations that could not
// be applied to the remote service yet. Items are replayed in insertion
// order by the reconciliation engine.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"tasksync/internal/model"
)

// CompletePayload carries everything needed to replay a "complete" without
// consulting other state.
type CompletePayload struct {
	CompletionTime time.Time `json:"completion_time"`
	Date           string    `json:"date"`
}

// UncompletePayload targets the completion to remove by calendar date.
type UncompletePayload struct {
	Date string `json:"date"`
}

// Queue persists pending operations in the sync_queue table.
type Queue struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Queue {
	return &Queue{db: db}
}

// EnqueueCreate records a task created while the remote was unreachable. The
// task must carry its local identifier; the payload is the full task state
// so replay is self-contained.
func (q *Queue) EnqueueCreate(ctx context.Context, task *model.Task) (uint, error) {
	if task == nil || task.ID == "" {
		return 0, fmt.Errorf("enqueue create: task with id is required")
	}
	return q.enqueue(ctx, model.OpCreate, task.ID, task)
}

// EnqueueUpdate records an update carrying the full resulting task state,
// not a diff.
func (q *Queue) EnqueueUpdate(ctx context.Context, taskID string, task *model.Task) (uint, error) {
	if taskID == "" || task == nil {
		return 0, fmt.Errorf("enqueue update: task id and state are required")
	}
	return q.enqueue(ctx, model.OpUpdate, taskID, task)
}

func (q *Queue) EnqueueDelete(ctx context.Context, taskID string) (uint, error) {
	if taskID == "" {
		return 0, fmt.Errorf("enqueue delete: task id is required")
	}
	return q.enqueue(ctx, model.OpDelete, taskID, nil)
}

func (q *Queue) EnqueueComplete(ctx context.Context, taskID string, completionTime time.Time, date string) (uint, error) {
	if taskID == "" || date == "" {
		return 0, fmt.Errorf("enqueue complete: task id and date are required")
	}
	return q.enqueue(ctx, model.OpComplete, taskID, CompletePayload{
		CompletionTime: completionTime,
		Date:           date,
	})
}

func (q *Queue) EnqueueUncomplete(ctx context.Context, taskID, date string) (uint, error) {
	if taskID == "" || date == "" {
		return 0, fmt.Errorf("enqueue uncomplete: task id and date are required")
	}
	return q.enqueue(ctx, model.OpUncomplete, taskID, UncompletePayload{Date: date})
}

func (q *Queue) enqueue(ctx context.Context, typ model.OpType, taskID string, payload interface{}) (uint, error) {
	item := model.SyncItem{
		Type:      typ,
		Timestamp: time.Now().UnixMilli(),
	}
	if taskID != "" {
		item.TaskID = &taskID
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("enqueue %s: encode payload: %w", typ, err)
		}
		item.Payload = data
	}
	if err := q.db.WithContext(ctx).Create(&item).Error; err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", typ, err)
	}
	return item.ID, nil
}

// Pending returns queued items ordered by insertion time ascending. A limit
// of zero or less returns everything.
func (q *Queue) Pending(ctx context.Context, limit int) ([]model.SyncItem, error) {
	db := q.db.WithContext(ctx).Order("timestamp ASC, id ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	var items []model.SyncItem
	if err := db.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("pending items: %w", err)
	}
	return items, nil
}

func (q *Queue) Remove(ctx context.Context, id uint) error {
	if err := q.db.WithContext(ctx).Delete(&model.SyncItem{}, id).Error; err != nil {
		return fmt.Errorf("remove item: %w", err)
	}
	return nil
}

func (q *Queue) IncrementRetries(ctx context.Context, id uint) error {
	err := q.db.WithContext(ctx).Model(&model.SyncItem{}).
		Where("id = ?", id).
		UpdateColumn("retries", gorm.Expr("retries + 1")).Error
	if err != nil {
		return fmt.Errorf("increment retries: %w", err)
	}
	return nil
}

func (q *Queue) Clear(ctx context.Context) error {
	if err := q.db.WithContext(ctx).Exec("DELETE FROM sync_queue").Error; err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}

// RewriteTaskID points every queued item still referencing oldID at newID.
// Called once a create is confirmed, so the remap survives a crash without
// any in-memory state.
func (q *Queue) RewriteTaskID(ctx context.Context, oldID, newID string) error {
	err := q.db.WithContext(ctx).Model(&model.SyncItem{}).
		Where("task_id = ?", oldID).
		UpdateColumn("task_id", newID).Error
	if err != nil {
		return fmt.Errorf("rewrite task id: %w", err)
	}
	return nil
}

// RemoveAllForTask discards every queued item for the task. Used when a task
// is deleted before it ever reached the remote.
func (q *Queue) RemoveAllForTask(ctx context.Context, taskID string) error {
	if err := q.db.WithContext(ctx).Delete(&model.SyncItem{}, "task_id = ?", taskID).Error; err != nil {
		return fmt.Errorf("remove items for task: %w", err)
	}
	return nil
}

func (q *Queue) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := q.db.WithContext(ctx).Model(&model.SyncItem{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return count, nil
}

// DecodeTask unpacks the payload of a create or update item.
func DecodeTask(item model.SyncItem) (*model.Task, error) {
	var task model.Task
	if err := json.Unmarshal(item.Payload, &task); err != nil {
		return nil, fmt.Errorf("decode item %d payload: %w", item.ID, err)
	}
	return &task, nil
}

// DecodeComplete unpacks the payload of a complete item.
func DecodeComplete(item model.SyncItem) (CompletePayload, error) {
	var p CompletePayload
	if err := json.Unmarshal(item.Payload, &p); err != nil {
		return p, fmt.Errorf("decode item %d payload: %w", item.ID, err)
	}
	return p, nil
}

// DecodeUncomplete unpacks the payload of an uncomplete item.
func DecodeUncomplete(item model.SyncItem) (UncompletePayload, error) {
	var p UncompletePayload
	if err := json.Unmarshal(item.Payload, &p); err != nil {
		return p, fmt.Errorf("decode item %d payload: %w", item.ID, err)
	}
	return p, nil
}
