// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"strings"

	"super-feynman-go/internal/model"
	"super-feynman-go/internal/repository"
	"super-feynman-go/pkg/apperr"
	"super-feynman-go/pkg/es"
	"super-feynman-go/pkg/log"
	"super-feynman-go/pkg/storage"
)

// CourseService 接口定义了课程管理相关的业务操作。
type CourseService interface {
	Create(ctx context.Context, name string) (*model.Course, error)
	List(ctx context.Context) ([]model.Course, error)
	Delete(ctx context.Context, id uint) error
}

type courseService struct {
	courseRepo  repository.CourseRepository
	lectureRepo repository.LectureRepository
	store       storage.ObjectStore
	index       es.ConceptIndex
}

// NewCourseService 创建一个新的 CourseService 实例。store 与 index 可为 nil。
func NewCourseService(courseRepo repository.CourseRepository, lectureRepo repository.LectureRepository, store storage.ObjectStore, index es.ConceptIndex) CourseService {
	return &courseService{
		courseRepo:  courseRepo,
		lectureRepo: lectureRepo,
		store:       store,
		index:       index,
	}
}

func (s *courseService) Create(ctx context.Context, name string) (*model.Course, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: course name is required", apperr.ErrInvalidInput)
	}
	course := &model.Course{Name: name}
	if err := s.courseRepo.Create(ctx, course); err != nil {
		log.Errorf("[CourseService.Create] 创建课程失败, name: %s, error: %v", name, err)
		return nil, err
	}
	log.Infof("[CourseService.Create] 课程创建成功, ID: %d, name: %s", course.ID, course.Name)
	return course, nil
}

func (s *courseService) List(ctx context.Context) ([]model.Course, error) {
	return s.courseRepo.List(ctx)
}

// Delete 删除课程及其下全部讲义、概念与会话，随后尽力清理归档文件与索引。
func (s *courseService) Delete(ctx context.Context, id uint) error {
	if _, err := s.courseRepo.FindByID(ctx, id); err != nil {
		return err
	}
	lectures, err := s.lectureRepo.ListByCourse(ctx, id)
	if err != nil {
		return err
	}
	if err := s.courseRepo.Delete(ctx, id); err != nil {
		return err
	}
	log.Infof("[CourseService.Delete] 课程已删除, ID: %d, 讲义数: %d", id, len(lectures))

	if s.store != nil {
		for _, l := range lectures {
			if l.FilePath == "" {
				continue
			}
			if err := s.store.Remove(ctx, l.FilePath); err != nil {
				log.Warnf("[CourseService.Delete] 删除归档文件失败, key: %s, error: %v", l.FilePath, err)
			}
		}
	}
	if s.index != nil {
		if err := s.index.DeleteBy(ctx, "course_id", id); err != nil {
			log.Warnf("[CourseService.Delete] 清理概念索引失败, courseID: %d, error: %v", id, err)
		}
	}
	return nil
}
