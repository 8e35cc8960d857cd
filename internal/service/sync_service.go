// Package service holds the reconciliation engine: it keeps the local store
// consistent for the UI and pushes mutations to the remote service when
// connectivity allows, falling back to the durable operation queue.
package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"tasksync/internal/model"
	"tasksync/internal/queue"
	"tasksync/internal/remote"
	"tasksync/internal/repository"
	"tasksync/internal/session"
)

// maxRetries bounds how often a queued item is retried before it is dropped.
const maxRetries = 5

const defaultPageSize = 100

// Remote is the slice of the remote task service the engine needs.
type Remote interface {
	CreateTask(ctx context.Context, task *model.Task) (*model.Task, error)
	UpdateTask(ctx context.Context, id string, task *model.Task) (*model.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, page, pageSize int) (remote.TaskPage, error)
	CompleteTask(ctx context.Context, id string, completionTime time.Time) (*model.Completion, error)
	UncompleteTask(ctx context.Context, id, date string) error
	ListCategories(ctx context.Context) ([]model.Category, error)
}

// Monitor reports whether the device currently has connectivity.
type Monitor interface {
	Online() bool
}

// SyncService coordinates local-first writes, queue replay and full resync.
type SyncService struct {
	tasks      *repository.TaskRepository
	categories *repository.CategoryRepository
	queue      *queue.Queue
	remote     Remote
	monitor    Monitor
	session    session.Store
	logger     *log.Logger
	pageSize   int

	applying atomic.Bool // single-flight guard for ApplyQueue
}

func NewSyncService(
	tasks *repository.TaskRepository,
	categories *repository.CategoryRepository,
	q *queue.Queue,
	rem Remote,
	monitor Monitor,
	sess session.Store,
	logger *log.Logger,
) *SyncService {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &SyncService{
		tasks:      tasks,
		categories: categories,
		queue:      q,
		remote:     rem,
		monitor:    monitor,
		session:    sess,
		logger:     logger,
		pageSize:   defaultPageSize,
	}
}

// SetPageSize overrides the resync pull page size.
func (s *SyncService) SetPageSize(n int) {
	if n > 0 {
		s.pageSize = n
	}
}

// ── write paths ──
//
// Every write path commits locally first so the UI sees the change
// immediately, then either applies it remotely or queues it with the full
// resulting state.

// CreateTask stores the task and returns its hydrated local copy. Online,
// the row is created under the server id straight away; otherwise it gets a
// local id and a queued create.
func (s *SyncService) CreateTask(ctx context.Context, task *model.Task) (*model.Task, error) {
	if creds, ok := s.session.Credentials(); ok {
		task.UserID = creds.UserID
	}

	if s.monitor.Online() {
		remoteTask, err := s.remote.CreateTask(ctx, task)
		if err == nil {
			if err := s.tasks.CreateTaskWithID(ctx, remoteTask.ID, task); err != nil {
				return nil, err
			}
			return s.tasks.GetTaskByID(ctx, remoteTask.ID)
		}
		s.logger.Printf("online create failed, falling back to queue: %v", err)
	}

	localID := model.NewLocalID()
	if err := s.tasks.CreateTaskWithID(ctx, localID, task); err != nil {
		return nil, err
	}
	queued := *task
	queued.ID = localID
	if _, err := s.queue.EnqueueCreate(ctx, &queued); err != nil {
		return nil, err
	}
	return s.tasks.GetTaskByID(ctx, localID)
}

// UpdateTask applies the partial update locally, then pushes the full
// resulting state remotely or queues it.
func (s *SyncService) UpdateTask(ctx context.Context, taskID string, upd repository.TaskUpdate) error {
	if err := s.tasks.UpdateTask(ctx, taskID, upd); err != nil {
		return err
	}
	full, err := s.tasks.GetTaskByID(ctx, taskID)
	if err != nil {
		return err
	}
	if full == nil {
		return nil
	}

	if s.monitor.Online() && !model.IsLocalID(taskID) {
		if _, err := s.remote.UpdateTask(ctx, taskID, full); err == nil {
			return nil
		} else {
			s.logger.Printf("online update failed, queuing: %v", err)
		}
	}

	_, err = s.queue.EnqueueUpdate(ctx, taskID, full)
	return err
}

// DeleteTask removes the task locally. A task that never reached the remote
// has its queued history discarded instead of producing a remote delete.
func (s *SyncService) DeleteTask(ctx context.Context, taskID string) error {
	if err := s.tasks.DeleteTask(ctx, taskID); err != nil {
		return err
	}

	if s.monitor.Online() && !model.IsLocalID(taskID) {
		if err := s.remote.DeleteTask(ctx, taskID); err == nil {
			return s.queue.RemoveAllForTask(ctx, taskID)
		} else {
			s.logger.Printf("online delete failed, queuing: %v", err)
		}
	}

	if model.IsLocalID(taskID) {
		return s.queue.RemoveAllForTask(ctx, taskID)
	}
	_, err := s.queue.EnqueueDelete(ctx, taskID)
	return err
}

// CompleteTask records a completion for the given calendar date. The local
// completion id is reconciled to the server-issued one when the remote call
// succeeds.
func (s *SyncService) CompleteTask(ctx context.Context, taskID, date string, completionTime time.Time) error {
	local := model.Completion{
		ID:             model.NewCompletionID(),
		TaskID:         taskID,
		CompletionTime: completionTime,
		Date:           date,
	}
	if err := s.tasks.AddCompletion(ctx, local); err != nil {
		return err
	}

	if s.monitor.Online() && !model.IsLocalID(taskID) {
		serverComp, err := s.remote.CompleteTask(ctx, taskID, completionTime)
		if err == nil {
			serverComp.TaskID = taskID
			serverComp.Date = date
			return s.tasks.AddCompletion(ctx, *serverComp)
		}
		s.logger.Printf("online complete failed, queuing: %v", err)
	}

	_, err := s.queue.EnqueueComplete(ctx, taskID, completionTime, date)
	return err
}

// UncompleteTask removes the completion for the given date.
func (s *SyncService) UncompleteTask(ctx context.Context, taskID, date string) error {
	if err := s.tasks.RemoveCompletionByDate(ctx, taskID, date); err != nil {
		return err
	}

	if s.monitor.Online() && !model.IsLocalID(taskID) {
		if err := s.remote.UncompleteTask(ctx, taskID, date); err == nil {
			return nil
		} else {
			s.logger.Printf("online uncomplete failed, queuing: %v", err)
		}
	}

	_, err := s.queue.EnqueueUncomplete(ctx, taskID, date)
	return err
}

// PendingCount reports how many mutations are still waiting to reach the
// remote, so callers can warn before destructive actions like logout.
func (s *SyncService) PendingCount(ctx context.Context) (int64, error) {
	return s.queue.Count(ctx)
}

// ── queue replay ──

// ApplyQueue walks the pending operations in insertion order and realizes
// their effect on the remote service. At most one drain runs at a time; a
// second trigger is a silent no-op. Remote failures are retried on later
// drains up to the ceiling; store failures abort the pass.
func (s *SyncService) ApplyQueue(ctx context.Context) error {
	if !s.applying.CompareAndSwap(false, true) {
		return nil
	}
	defer s.applying.Store(false)

	if !s.monitor.Online() {
		s.logger.Printf("offline, skipping queue apply")
		return nil
	}
	if _, ok := s.session.Credentials(); !ok {
		s.logger.Printf("no session, skipping queue apply")
		return nil
	}

	items, err := s.queue.Pending(ctx, 0)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	// local id -> server id remap produced by creates in this pass; the
	// persisted queue rows are rewritten too, so nothing depends on this map
	// surviving the pass.
	idMap := make(map[string]string)

	for _, item := range items {
		if item.Retries >= maxRetries {
			s.logger.Printf("dropping item %d (%s) after %d retries", item.ID, item.Type, item.Retries)
			if err := s.queue.Remove(ctx, item.ID); err != nil {
				return err
			}
			continue
		}

		retryable, err := s.applyItem(ctx, item, idMap)
		if err == nil {
			continue
		}
		if !retryable {
			return fmt.Errorf("apply item %d: %w", item.ID, err)
		}
		s.logger.Printf("item %d (%s) failed: %v", item.ID, item.Type, err)
		if rerr := s.queue.IncrementRetries(ctx, item.ID); rerr != nil {
			return rerr
		}
		if item.Retries+1 >= maxRetries {
			s.logger.Printf("abandoning item %d (%s) after %d retries", item.ID, item.Type, item.Retries+1)
			if rerr := s.queue.Remove(ctx, item.ID); rerr != nil {
				return rerr
			}
		}
	}
	return nil
}

// applyItem dispatches one queued operation. A retryable error means the
// remote rejected or was unreachable; a non-retryable one is a local store
// failure that must abort the whole pass.
func (s *SyncService) applyItem(ctx context.Context, item model.SyncItem, idMap map[string]string) (retryable bool, err error) {
	resolved := ""
	if item.TaskID != nil {
		resolved = *item.TaskID
		if mapped, ok := idMap[resolved]; ok {
			resolved = mapped
		}
	}

	// A non-create item whose id is still local references a task whose
	// create never made it (deleted before syncing, or abandoned). Nothing
	// remote to do; the completion state for freshly created tasks comes
	// from the next pull.
	if item.Type != model.OpCreate && resolved != "" && model.IsLocalID(resolved) {
		s.logger.Printf("item %d (%s) references unsynced task %s, discarding", item.ID, item.Type, resolved)
		if err := s.queue.Remove(ctx, item.ID); err != nil {
			return false, err
		}
		return false, nil
	}

	switch item.Type {
	case model.OpCreate:
		task, err := queue.DecodeTask(item)
		if err != nil {
			return true, err
		}
		remoteTask, err := s.remote.CreateTask(ctx, task)
		if err != nil {
			return true, err
		}
		localID := resolved
		serverID := remoteTask.ID
		idMap[localID] = serverID

		// Replace the local row under the old id with one under the server
		// id, then point the rest of the queue at it.
		if err := s.tasks.DeleteTask(ctx, localID); err != nil {
			return false, err
		}
		if err := s.tasks.CreateTaskWithID(ctx, serverID, task); err != nil {
			return false, err
		}
		if err := s.queue.RewriteTaskID(ctx, localID, serverID); err != nil {
			return false, err
		}
		return false, s.queue.Remove(ctx, item.ID)

	case model.OpUpdate:
		task, err := queue.DecodeTask(item)
		if err != nil {
			return true, err
		}
		if _, err := s.remote.UpdateTask(ctx, resolved, task); err != nil {
			return true, err
		}
		// If the id was remapped mid-pass the local row was rebuilt from the
		// create payload; bring it up to the queued state.
		if item.TaskID != nil && resolved != *item.TaskID {
			if err := s.tasks.ReplaceTask(ctx, resolved, task); err != nil {
				return false, err
			}
		}
		return false, s.queue.Remove(ctx, item.ID)

	case model.OpDelete:
		if resolved != "" && !model.IsLocalID(resolved) {
			if err := s.remote.DeleteTask(ctx, resolved); err != nil {
				return true, err
			}
		}
		return false, s.queue.Remove(ctx, item.ID)

	case model.OpComplete:
		p, err := queue.DecodeComplete(item)
		if err != nil {
			return true, err
		}
		serverComp, err := s.remote.CompleteTask(ctx, resolved, p.CompletionTime)
		if err != nil {
			return true, err
		}
		comp := model.Completion{
			ID:             serverComp.ID,
			TaskID:         resolved,
			CompletionTime: p.CompletionTime,
			Date:           p.Date,
		}
		if err := s.tasks.AddCompletion(ctx, comp); err != nil {
			return false, err
		}
		return false, s.queue.Remove(ctx, item.ID)

	case model.OpUncomplete:
		p, err := queue.DecodeUncomplete(item)
		if err != nil {
			return true, err
		}
		if err := s.remote.UncompleteTask(ctx, resolved, p.Date); err != nil {
			return true, err
		}
		return false, s.queue.Remove(ctx, item.ID)

	default:
		s.logger.Printf("item %d has unknown type %q, discarding", item.ID, item.Type)
		return false, s.queue.Remove(ctx, item.ID)
	}
}

// ── full resync ──

// Resync throws away all local task state and rebuilds it from a full
// paginated pull of the remote service. Used on login. Offline or without a
// session it is a no-op.
func (s *SyncService) Resync(ctx context.Context) error {
	if !s.monitor.Online() {
		s.logger.Printf("offline, skipping resync")
		return nil
	}
	if _, ok := s.session.Credentials(); !ok {
		s.logger.Printf("no session, skipping resync")
		return nil
	}

	if err := s.tasks.Reset(ctx); err != nil {
		return err
	}
	if err := s.queue.Clear(ctx); err != nil {
		return err
	}

	categories, err := s.remote.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("resync categories: %w", err)
	}
	for _, c := range categories {
		if _, err := s.categories.Ensure(ctx, c.Name, c.ID); err != nil {
			return err
		}
	}

	page := 1
	for {
		taskPage, err := s.remote.ListTasks(ctx, page, s.pageSize)
		if err != nil {
			return fmt.Errorf("resync page %d: %w", page, err)
		}
		for i := range taskPage.Results {
			task := taskPage.Results[i]
			completions := task.Completions
			task.Completions = nil
			if err := s.tasks.CreateTaskWithID(ctx, task.ID, &task); err != nil {
				return err
			}
			for _, comp := range completions {
				comp.TaskID = task.ID
				if err := s.tasks.AddCompletion(ctx, comp); err != nil {
					return err
				}
			}
		}
		if taskPage.Next == nil {
			break
		}
		page++
	}

	s.logger.Printf("resync complete")
	return nil
}

// Sync applies all pending queue items, then refreshes from the remote.
func (s *SyncService) Sync(ctx context.Context) error {
	if err := s.ApplyQueue(ctx); err != nil {
		return err
	}
	return s.Resync(ctx)
}
