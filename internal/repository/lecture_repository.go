package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"super-feynman-go/internal/model"
	"super-feynman-go/pkg/apperr"
)

// LectureRepository 接口定义了讲义的持久化操作。
type LectureRepository interface {
	Create(ctx context.Context, lecture *model.Lecture) error
	FindByID(ctx context.Context, id uint) (*model.Lecture, error)
	ListByCourse(ctx context.Context, courseID uint) ([]model.Lecture, error)
	UpdateFilePath(ctx context.Context, id uint, path string) error
	Delete(ctx context.Context, id uint) error
}

type lectureRepository struct {
	db *gorm.DB
}

// NewLectureRepository 创建一个新的 LectureRepository 实例。
func NewLectureRepository(db *gorm.DB) LectureRepository {
	return &lectureRepository{db: db}
}

func (r *lectureRepository) Create(ctx context.Context, lecture *model.Lecture) error {
	return r.db.WithContext(ctx).Create(lecture).Error
}

func (r *lectureRepository) FindByID(ctx context.Context, id uint) (*model.Lecture, error) {
	var lecture model.Lecture
	if err := r.db.WithContext(ctx).First(&lecture, id).Error; err != nil {
		return nil, wrapNotFound(err, "lecture", id)
	}
	return &lecture, nil
}

// ListByCourse 按创建时间倒序返回课程下的讲义，不加载笔记正文。
func (r *lectureRepository) ListByCourse(ctx context.Context, courseID uint) ([]model.Lecture, error) {
	lectures := []model.Lecture{}
	err := r.db.WithContext(ctx).
		Omit("file_content").
		Where("course_id = ?", courseID).
		Order("created_at DESC").Order("id DESC").
		Find(&lectures).Error
	return lectures, err
}

func (r *lectureRepository) UpdateFilePath(ctx context.Context, id uint, path string) error {
	return r.db.WithContext(ctx).Model(&model.Lecture{}).Where("id = ?", id).Update("file_path", path).Error
}

func (r *lectureRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.Lecture{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("lecture %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}
