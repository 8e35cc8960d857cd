package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"tasksync/internal/model"
)

// CategoryRepository manages task categories.
type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Ensure returns the id of the category with the given name, inserting it if
// missing. A nonzero id pins the new row to a server-issued identifier; zero
// lets SQLite assign one. Never creates duplicate names.
func (r *CategoryRepository) Ensure(ctx context.Context, name string, id int64) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("ensure category: name is required")
	}
	return ensureCategory(r.db.WithContext(ctx), name, id)
}

func (r *CategoryRepository) ListAll(ctx context.Context) ([]model.Category, error) {
	var categories []model.Category
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*model.Category, error) {
	var category model.Category
	err := r.db.WithContext(ctx).First(&category, "id = ?", id).Error
	switch {
	case err == nil:
		return &category, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("get category: %w", err)
	}
}

// ensureCategory is the tx-scoped find-or-create shared with the task
// repository's create/update paths.
func ensureCategory(tx *gorm.DB, name string, id int64) (int64, error) {
	var category model.Category
	err := tx.Where("name = ?", name).First(&category).Error
	switch {
	case err == nil:
		return category.ID, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		category = model.Category{ID: id, Name: name}
		if err := tx.Create(&category).Error; err != nil {
			return 0, fmt.Errorf("create category: %w", err)
		}
		return category.ID, nil
	default:
		return 0, fmt.Errorf("find category: %w", err)
	}
}
