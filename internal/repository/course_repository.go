package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"super-feynman-go/internal/model"
	"super-feynman-go/pkg/apperr"
)

// CourseRepository 接口定义了课程的持久化操作。
type CourseRepository interface {
	Create(ctx context.Context, course *model.Course) error
	FindByID(ctx context.Context, id uint) (*model.Course, error)
	List(ctx context.Context) ([]model.Course, error)
	// Delete 删除课程，讲义、概念与复习会话随外键级联删除。
	Delete(ctx context.Context, id uint) error
}

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository 创建一个新的 CourseRepository 实例。
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

func (r *courseRepository) Create(ctx context.Context, course *model.Course) error {
	return r.db.WithContext(ctx).Create(course).Error
}

func (r *courseRepository) FindByID(ctx context.Context, id uint) (*model.Course, error) {
	var course model.Course
	if err := r.db.WithContext(ctx).First(&course, id).Error; err != nil {
		return nil, wrapNotFound(err, "course", id)
	}
	return &course, nil
}

// List 按创建时间倒序返回所有课程。
func (r *courseRepository) List(ctx context.Context) ([]model.Course, error) {
	courses := []model.Course{}
	err := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&courses).Error
	return courses, err
}

func (r *courseRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.Course{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("course %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}
