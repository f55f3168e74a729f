package testutil

import (
	"context"
	"sync"

	"super-feynman-go/internal/model"
)

// FakeLLM 实现 gateway.LLMGateway，按字段返回预设结果并记录调用。
type FakeLLM struct {
	mu sync.Mutex

	Concepts    []model.ExtractedConcept
	ExtractErr  error
	Opener      string
	OpenErr     error
	Replies     []string
	ContinueErr error
	Feedback    *model.FeedbackResult
	FeedbackErr error

	ExtractCalls  int
	OpenCalls     int
	ContinueCalls int
	FeedbackCalls int
	// LastHistory 是最近一次 ContinueSession/AnalyzeFeedback 收到的历史。
	LastHistory []model.Message
}

func (f *FakeLLM) ExtractConcepts(_ context.Context, _ string) ([]model.ExtractedConcept, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ExtractCalls++
	if f.ExtractErr != nil {
		return nil, f.ExtractErr
	}
	return f.Concepts, nil
}

func (f *FakeLLM) OpenSession(_ context.Context, _, _ string, _ model.AudienceLevel) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenCalls++
	if f.OpenErr != nil {
		return "", f.OpenErr
	}
	return f.Opener, nil
}

func (f *FakeLLM) ContinueSession(_ context.Context, history []model.Message, _, _ string, _ model.AudienceLevel) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ContinueCalls++
	f.LastHistory = append([]model.Message(nil), history...)
	if f.ContinueErr != nil {
		return "", f.ContinueErr
	}
	if len(f.Replies) == 0 {
		return "Tell me more.", nil
	}
	r := f.Replies[0]
	f.Replies = f.Replies[1:]
	return r, nil
}

func (f *FakeLLM) AnalyzeFeedback(_ context.Context, history []model.Message, _, _ string, _ model.AudienceLevel) (*model.FeedbackResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FeedbackCalls++
	f.LastHistory = append([]model.Message(nil), history...)
	if f.FeedbackErr != nil {
		return nil, f.FeedbackErr
	}
	return f.Feedback, nil
}

// FakeSpeech 实现 gateway.SpeechGateway。
type FakeSpeech struct {
	Text  string
	Err   error
	Calls int
	Audio []byte
}

func (f *FakeSpeech) Transcribe(_ context.Context, audio []byte, _, _ string) (string, error) {
	f.Calls++
	f.Audio = audio
	if f.Err != nil {
		return "", f.Err
	}
	return f.Text, nil
}

// FakeIndex 实现 es.ConceptIndex，文档保存在内存中。
type FakeIndex struct {
	mu   sync.Mutex
	Docs map[uint]model.ConceptDocument
	Err  error
}

// NewFakeIndex 创建一个空的内存索引。
func NewFakeIndex() *FakeIndex {
	return &FakeIndex{Docs: make(map[uint]model.ConceptDocument)}
}

func (f *FakeIndex) IndexConcept(_ context.Context, doc model.ConceptDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Docs[doc.ConceptID] = doc
	return nil
}

func (f *FakeIndex) DeleteConcept(_ context.Context, conceptID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Docs, conceptID)
	return nil
}

func (f *FakeIndex) DeleteBy(_ context.Context, field string, value uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, d := range f.Docs {
		if (field == "lecture_id" && d.LectureID == value) || (field == "course_id" && d.CourseID == value) {
			delete(f.Docs, id)
		}
	}
	return nil
}

func (f *FakeIndex) Search(_ context.Context, _ string, _ []float32, size int) ([]model.ConceptSearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	hits := make([]model.ConceptSearchHit, 0, len(f.Docs))
	for _, d := range f.Docs {
		if len(hits) == size {
			break
		}
		hits = append(hits, model.ConceptSearchHit{
			ConceptID: d.ConceptID, LectureID: d.LectureID, CourseID: d.CourseID,
			Name: d.Name, Description: d.Description, Score: 1,
		})
	}
	return hits, nil
}
