package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"super-feynman-go/internal/model"
	"super-feynman-go/internal/pipeline"
	"super-feynman-go/internal/repository"
	"super-feynman-go/pkg/apperr"
	"super-feynman-go/pkg/es"
	"super-feynman-go/pkg/log"
	"super-feynman-go/pkg/storage"
	"super-feynman-go/pkg/tasks"
)

// downloadURLExpiry 是归档笔记下载链接的有效期。
const downloadURLExpiry = time.Hour

// TaskPublisher 投递概念抽取任务，*kafka.Producer 实现了该接口。
type TaskPublisher interface {
	PublishExtractionTask(ctx context.Context, task tasks.ConceptExtractionTask) error
}

// TextExtractor 将二进制文档转为纯文本，*tika.Client 实现了该接口。
type TextExtractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// LectureUpload 是上传讲义的输入。
type LectureUpload struct {
	CourseID    uint
	Name        string
	FileName    string
	ContentType string
	Content     []byte
}

// LectureResult 是上传讲义的结果。概念抽取失败时讲义仍然保留，错误放在 ConceptsGenerationError 中。
type LectureResult struct {
	Lecture                 *model.Lecture  `json:"lecture"`
	Concepts                []model.Concept `json:"concepts"`
	ConceptsGenerationError string          `json:"concepts_generation_error,omitempty"`
}

// RegenerateResult 描述重新抽取的结果：Queued 为 true 表示已投递到 Kafka，否则 Concepts 为同步抽取结果。
type RegenerateResult struct {
	Queued   bool            `json:"queued"`
	Concepts []model.Concept `json:"concepts,omitempty"`
}

// LectureService 接口定义了讲义管理相关的业务操作。
type LectureService interface {
	Create(ctx context.Context, in LectureUpload) (*LectureResult, error)
	List(ctx context.Context, courseID uint) ([]model.Lecture, error)
	Delete(ctx context.Context, id uint) error
	RegenerateConcepts(ctx context.Context, id uint) (*RegenerateResult, error)
	DownloadURL(ctx context.Context, id uint) (string, error)
}

// LectureDeps 汇总 LectureService 的可选依赖，未启用的组件留空即可。
type LectureDeps struct {
	Store     storage.ObjectStore
	Index     es.ConceptIndex
	Publisher TaskPublisher
	Extractor TextExtractor
}

type lectureService struct {
	courseRepo    repository.CourseRepository
	lectureRepo   repository.LectureRepository
	conceptRepo   repository.ConceptRepository
	concepts      *pipeline.ConceptExtractor
	maxNotesBytes int64
	deps          LectureDeps
}

// NewLectureService 创建一个新的 LectureService 实例。
func NewLectureService(
	courseRepo repository.CourseRepository,
	lectureRepo repository.LectureRepository,
	conceptRepo repository.ConceptRepository,
	concepts *pipeline.ConceptExtractor,
	maxNotesBytes int64,
	deps LectureDeps,
) LectureService {
	return &lectureService{
		courseRepo:    courseRepo,
		lectureRepo:   lectureRepo,
		conceptRepo:   conceptRepo,
		concepts:      concepts,
		maxNotesBytes: maxNotesBytes,
		deps:          deps,
	}
}

var plainTextExts = map[string]bool{".txt": true, ".md": true}
var documentExts = map[string]bool{".pdf": true, ".docx": true}

// isControlByte 匹配 [\x00-\x08\x0E-\x1F]，出现即视为二进制内容。
func isControlByte(b byte) bool {
	return b <= 0x08 || (b >= 0x0E && b <= 0x1F)
}

func validatePlainText(content []byte) error {
	if !utf8.Valid(content) {
		return fmt.Errorf("%w: notes file is not valid UTF-8 text", apperr.ErrInvalidInput)
	}
	for _, b := range content {
		if isControlByte(b) {
			return fmt.Errorf("%w: notes file appears to be binary", apperr.ErrInvalidInput)
		}
	}
	return nil
}

// noteText 校验上传文件并返回笔记正文。
func (s *lectureService) noteText(ctx context.Context, in LectureUpload) (string, error) {
	if int64(len(in.Content)) > s.maxNotesBytes {
		return "", fmt.Errorf("%w: notes file exceeds %d bytes", apperr.ErrInvalidInput, s.maxNotesBytes)
	}
	ext := strings.ToLower(filepath.Ext(in.FileName))
	var text string
	switch {
	case plainTextExts[ext]:
		if err := validatePlainText(in.Content); err != nil {
			return "", err
		}
		text = string(in.Content)
	case documentExts[ext] && s.deps.Extractor != nil:
		extracted, err := s.deps.Extractor.ExtractText(ctx, bytes.NewReader(in.Content), in.FileName)
		if err != nil {
			log.Errorf("[LectureService.Create] Tika 提取文本失败, file: %s, error: %v", in.FileName, err)
			return "", fmt.Errorf("%w: could not read text from %s", apperr.ErrInvalidInput, in.FileName)
		}
		text = extracted
	default:
		return "", fmt.Errorf("%w: unsupported notes file type %q", apperr.ErrInvalidInput, ext)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: notes file is empty", apperr.ErrInvalidInput)
	}
	return text, nil
}

func (s *lectureService) Create(ctx context.Context, in LectureUpload) (*LectureResult, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: lecture name is required", apperr.ErrInvalidInput)
	}
	if _, err := s.courseRepo.FindByID(ctx, in.CourseID); err != nil {
		return nil, err
	}
	text, err := s.noteText(ctx, in)
	if err != nil {
		return nil, err
	}

	lecture := &model.Lecture{CourseID: in.CourseID, LectureName: name, FileContent: text}
	if err := s.lectureRepo.Create(ctx, lecture); err != nil {
		log.Errorf("[LectureService.Create] 保存讲义失败, error: %v", err)
		return nil, err
	}
	log.Infof("[LectureService.Create] 讲义已保存, ID: %d, courseID: %d, name: %s", lecture.ID, lecture.CourseID, lecture.LectureName)

	s.archive(ctx, lecture, in)

	result := &LectureResult{Lecture: lecture, Concepts: []model.Concept{}}
	concepts, err := s.concepts.ExtractAndPersist(ctx, lecture)
	if err != nil {
		result.ConceptsGenerationError = apperr.Message(err)
		s.publishRetry(ctx, lecture, "extraction_failed")
		return result, nil
	}
	result.Concepts = concepts
	return result, nil
}

// archive 将原始文件归档到对象存储，失败只记录日志。
func (s *lectureService) archive(ctx context.Context, lecture *model.Lecture, in LectureUpload) {
	if s.deps.Store == nil {
		return
	}
	key := fmt.Sprintf("notes/%d/%s%s", lecture.CourseID, uuid.NewString(), strings.ToLower(filepath.Ext(in.FileName)))
	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.deps.Store.Put(ctx, key, bytes.NewReader(in.Content), int64(len(in.Content)), contentType); err != nil {
		log.Warnf("[LectureService.archive] 归档笔记文件失败, lectureID: %d, error: %v", lecture.ID, err)
		return
	}
	if err := s.lectureRepo.UpdateFilePath(ctx, lecture.ID, key); err != nil {
		log.Warnf("[LectureService.archive] 更新 file_path 失败, lectureID: %d, error: %v", lecture.ID, err)
		return
	}
	lecture.FilePath = key
}

func (s *lectureService) publishRetry(ctx context.Context, lecture *model.Lecture, reason string) bool {
	if s.deps.Publisher == nil {
		log.Warnf("[LectureService] Kafka 未启用, 无法投递抽取任务, lectureID: %d", lecture.ID)
		return false
	}
	task := tasks.ConceptExtractionTask{
		LectureID:  lecture.ID,
		CourseID:   lecture.CourseID,
		Reason:     reason,
		EnqueuedAt: time.Now(),
	}
	if err := s.deps.Publisher.PublishExtractionTask(ctx, task); err != nil {
		log.Errorf("[LectureService] 投递抽取任务失败, lectureID: %d, error: %v", lecture.ID, err)
		return false
	}
	log.Infof("[LectureService] 已投递抽取任务, lectureID: %d, reason: %s", lecture.ID, reason)
	return true
}

func (s *lectureService) List(ctx context.Context, courseID uint) ([]model.Lecture, error) {
	return s.lectureRepo.ListByCourse(ctx, courseID)
}

func (s *lectureService) Delete(ctx context.Context, id uint) error {
	lecture, err := s.lectureRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.lectureRepo.Delete(ctx, id); err != nil {
		return err
	}
	log.Infof("[LectureService.Delete] 讲义已删除, ID: %d", id)

	if s.deps.Store != nil && lecture.FilePath != "" {
		if err := s.deps.Store.Remove(ctx, lecture.FilePath); err != nil {
			log.Warnf("[LectureService.Delete] 删除归档文件失败, key: %s, error: %v", lecture.FilePath, err)
		}
	}
	if s.deps.Index != nil {
		if err := s.deps.Index.DeleteBy(ctx, "lecture_id", id); err != nil {
			log.Warnf("[LectureService.Delete] 清理概念索引失败, lectureID: %d, error: %v", id, err)
		}
	}
	return nil
}

// RegenerateConcepts 为尚无概念的讲义重新抽取。Kafka 可用时异步投递，否则同步执行。
func (s *lectureService) RegenerateConcepts(ctx context.Context, id uint) (*RegenerateResult, error) {
	lecture, err := s.lectureRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := s.conceptRepo.CountByLecture(ctx, id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: lecture %d already has %d concepts", apperr.ErrInvalidState, id, count)
	}

	if s.publishRetry(ctx, lecture, "requested") {
		return &RegenerateResult{Queued: true}, nil
	}
	concepts, err := s.concepts.ExtractAndPersist(ctx, lecture)
	if err != nil {
		return nil, err
	}
	return &RegenerateResult{Concepts: concepts}, nil
}

func (s *lectureService) DownloadURL(ctx context.Context, id uint) (string, error) {
	lecture, err := s.lectureRepo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if s.deps.Store == nil || lecture.FilePath == "" {
		return "", fmt.Errorf("lecture %d has no archived file: %w", id, apperr.ErrNotFound)
	}
	return s.deps.Store.PresignedURL(ctx, lecture.FilePath, downloadURLExpiry)
}
