package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tasksync/internal/model"
)

// TaskRepository handles CRUD for tasks and their completions. All writes
// that touch more than one table run inside a single transaction.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// TaskUpdate describes a partial update. Nil fields are left untouched;
// Clear flags null out the optional columns. Category and repetition sets,
// when present, fully replace the stored ones.
type TaskUpdate struct {
	Title          *string
	ReminderOffset *int
	ClearReminder  bool
	StartTime      *time.Time
	EndTime        *time.Time
	ClearEndTime   bool
	Priority       *model.Priority
	Emoji          *string
	Categories     *[]model.Category
	Repetitions    *[]model.Repetition
}

// CreateTask inserts a task under a freshly minted local identifier and
// returns it.
func (r *TaskRepository) CreateTask(ctx context.Context, task *model.Task) (string, error) {
	id := model.NewLocalID()
	if err := r.CreateTaskWithID(ctx, id, task); err != nil {
		return "", err
	}
	return id, nil
}

// CreateTaskWithID inserts a task under a caller-supplied identifier, either
// a server-issued id or a local one. Category links resolve lazily so local
// and remote category rows stay aligned.
func (r *TaskRepository) CreateTaskWithID(ctx context.Context, id string, task *model.Task) error {
	if err := validateTask(task); err != nil {
		return err
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := model.Task{
			ID:             id,
			UserID:         task.UserID,
			Title:          task.Title,
			ReminderOffset: task.ReminderOffset,
			StartTime:      task.StartTime,
			EndTime:        task.EndTime,
			Priority:       task.Priority,
			Emoji:          task.Emoji,
		}
		if row.Priority == "" {
			row.Priority = model.PriorityNone
		}
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return err
		}

		if err := insertCategoryLinks(tx, id, task.Categories); err != nil {
			return err
		}
		return insertRepetitions(tx, id, task.Repetitions)
	})
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTaskByID returns the fully hydrated task, or nil when it does not
// exist. Completions are ordered by date ascending.
func (r *TaskRepository) GetTaskByID(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).
		Preload("Categories").
		Preload("Repetitions").
		Preload("Completions", func(db *gorm.DB) *gorm.DB {
			return db.Order("date ASC")
		}).
		First(&task, "id = ?", id).Error
	switch {
	case err == nil:
		return &task, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("get task: %w", err)
	}
}

func (r *TaskRepository) GetTasksByUserID(ctx context.Context, userID int64) ([]model.Task, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ?", userID).
		Order("start_time DESC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return r.hydrateAll(ctx, ids)
}

func (r *TaskRepository) GetTasksByDateRange(ctx context.Context, userID int64, start, end time.Time) ([]model.Task, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND start_time >= ? AND start_time <= ?", userID, start, end).
		Order("start_time ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks by range: %w", err)
	}
	return r.hydrateAll(ctx, ids)
}

func (r *TaskRepository) SearchTasksByTitle(ctx context.Context, userID int64, query string) ([]model.Task, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND title LIKE ?", userID, "%"+query+"%").
		Order("start_time DESC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}
	return r.hydrateAll(ctx, ids)
}

// hydrateAll re-queries each task by id. N+1, but fine at single-device
// scale and keeps one hydration path.
func (r *TaskRepository) hydrateAll(ctx context.Context, ids []string) ([]model.Task, error) {
	tasks := make([]model.Task, 0, len(ids))
	for _, id := range ids {
		task, err := r.GetTaskByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if task != nil {
			tasks = append(tasks, *task)
		}
	}
	return tasks, nil
}

// UpdateTask applies a partial update. Scalar fields become one dynamic
// column set; category and repetition sets are replaced wholesale. All of it
// commits atomically.
func (r *TaskRepository) UpdateTask(ctx context.Context, id string, upd TaskUpdate) error {
	if upd.Priority != nil && !upd.Priority.Valid() {
		return fmt.Errorf("update task: invalid priority %q", *upd.Priority)
	}
	if upd.Repetitions != nil {
		for _, rep := range *upd.Repetitions {
			if !rep.Frequency.Valid() {
				return fmt.Errorf("update task: invalid frequency %q", rep.Frequency)
			}
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		set := map[string]interface{}{}
		if upd.Title != nil {
			set["title"] = *upd.Title
		}
		if upd.ReminderOffset != nil {
			set["reminder_offset"] = *upd.ReminderOffset
		}
		if upd.ClearReminder {
			set["reminder_offset"] = nil
		}
		if upd.StartTime != nil {
			set["start_time"] = *upd.StartTime
		}
		if upd.EndTime != nil {
			set["end_time"] = *upd.EndTime
		}
		if upd.ClearEndTime {
			set["end_time"] = nil
		}
		if upd.Priority != nil {
			set["priority"] = *upd.Priority
		}
		if upd.Emoji != nil {
			set["emoji"] = *upd.Emoji
		}
		if len(set) > 0 {
			if err := tx.Model(&model.Task{}).Where("id = ?", id).Updates(set).Error; err != nil {
				return err
			}
		}

		if upd.Categories != nil {
			if err := tx.Exec("DELETE FROM task_categories WHERE task_id = ?", id).Error; err != nil {
				return err
			}
			if err := insertCategoryLinks(tx, id, *upd.Categories); err != nil {
				return err
			}
		}

		if upd.Repetitions != nil {
			if err := tx.Where("task_id = ?", id).Delete(&model.Repetition{}).Error; err != nil {
				return err
			}
			if err := insertRepetitions(tx, id, *upd.Repetitions); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// ReplaceTask rewrites every mutable field of the stored row from the given
// task state. Used when replaying a queued update against a remapped id.
func (r *TaskRepository) ReplaceTask(ctx context.Context, id string, task *model.Task) error {
	upd := TaskUpdate{
		Title:       &task.Title,
		StartTime:   &task.StartTime,
		Priority:    &task.Priority,
		Emoji:       &task.Emoji,
		Categories:  &task.Categories,
		Repetitions: &task.Repetitions,
	}
	if task.ReminderOffset != nil {
		upd.ReminderOffset = task.ReminderOffset
	} else {
		upd.ClearReminder = true
	}
	if task.EndTime != nil {
		upd.EndTime = task.EndTime
	} else {
		upd.ClearEndTime = true
	}
	return r.UpdateTask(ctx, id, upd)
}

// DeleteTask removes a task; links, repetitions and completions go with it
// via cascade.
func (r *TaskRepository) DeleteTask(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&model.Task{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (r *TaskRepository) DeleteTasksByUserID(ctx context.Context, userID int64) error {
	if err := r.db.WithContext(ctx).Delete(&model.Task{}, "user_id = ?", userID).Error; err != nil {
		return fmt.Errorf("delete tasks for user: %w", err)
	}
	return nil
}

// AddCompletion upserts a completion keyed by its id so replays are
// idempotent, and evicts any other completion for the same (task, date) pair
// so the one-per-date invariant holds even when the id changed (local id
// reconciled to a server id).
func (r *TaskRepository) AddCompletion(ctx context.Context, c model.Completion) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("task_id = ? AND date = ? AND id <> ?", c.TaskID, c.Date, c.ID).
			Delete(&model.Completion{}).Error
		if err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&c).Error
	})
	if err != nil {
		return fmt.Errorf("add completion: %w", err)
	}
	return nil
}

func (r *TaskRepository) RemoveCompletionByID(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&model.Completion{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("remove completion: %w", err)
	}
	return nil
}

func (r *TaskRepository) RemoveCompletionByDate(ctx context.Context, taskID, date string) error {
	err := r.db.WithContext(ctx).
		Delete(&model.Completion{}, "task_id = ? AND date = ?", taskID, date).Error
	if err != nil {
		return fmt.Errorf("remove completion by date: %w", err)
	}
	return nil
}

func (r *TaskRepository) GetCompletions(ctx context.Context, taskID string) ([]model.Completion, error) {
	var completions []model.Completion
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("date ASC").
		Find(&completions).Error
	if err != nil {
		return nil, fmt.Errorf("get completions: %w", err)
	}
	return completions, nil
}

func (r *TaskRepository) ClearCompletions(ctx context.Context, taskID string) error {
	if err := r.db.WithContext(ctx).Delete(&model.Completion{}, "task_id = ?", taskID).Error; err != nil {
		return fmt.Errorf("clear completions: %w", err)
	}
	return nil
}

// Reset wipes every task-related table and the operation queue, then
// re-creates the schema. Full-resync support.
func (r *TaskRepository) Reset(ctx context.Context) error {
	return resetSchema(r.db.WithContext(ctx))
}

func validateTask(task *model.Task) error {
	if task.Title == "" {
		return fmt.Errorf("create task: title is required")
	}
	if task.Priority != "" && !task.Priority.Valid() {
		return fmt.Errorf("create task: invalid priority %q", task.Priority)
	}
	for _, rep := range task.Repetitions {
		if !rep.Frequency.Valid() {
			return fmt.Errorf("create task: invalid frequency %q", rep.Frequency)
		}
	}
	return nil
}

func insertCategoryLinks(tx *gorm.DB, taskID string, categories []model.Category) error {
	for _, c := range categories {
		categoryID, err := ensureCategory(tx, c.Name, c.ID)
		if err != nil {
			return err
		}
		err = tx.Exec(
			"INSERT INTO task_categories (task_id, category_id) VALUES (?, ?)",
			taskID, categoryID,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func insertRepetitions(tx *gorm.DB, taskID string, repetitions []model.Repetition) error {
	for _, rep := range repetitions {
		row := model.Repetition{
			TaskID:    taskID,
			Frequency: rep.Frequency,
			TimeOfDay: rep.TimeOfDay,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}
