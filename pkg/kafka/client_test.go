package kafka

import (
	"context"
	"errors"
	"testing"

	"super-feynman-go/pkg/tasks"
)

type memoryCounter struct {
	counts map[string]int64
	fail   bool
}

func (m *memoryCounter) Incr(_ context.Context, key string) (int64, error) {
	if m.fail {
		return 0, errors.New("redis down")
	}
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memoryCounter) Reset(_ context.Context, key string) { delete(m.counts, key) }

type processorFunc func(ctx context.Context, task tasks.ConceptExtractionTask) error

func (f processorFunc) Process(ctx context.Context, task tasks.ConceptExtractionTask) error {
	return f(ctx, task)
}

func TestHandleMessageCommitsAfterMaxAttempts(t *testing.T) {
	counter := &memoryCounter{counts: map[string]int64{}}
	failing := processorFunc(func(context.Context, tasks.ConceptExtractionTask) error { return errors.New("llm down") })
	msg := []byte(`{"lecture_id": 7, "reason": "extraction_failed"}`)

	for i := 1; i < maxAttempts; i++ {
		if handleMessage(context.Background(), msg, failing, counter) {
			t.Fatalf("attempt %d committed early", i)
		}
	}
	if !handleMessage(context.Background(), msg, failing, counter) {
		t.Fatalf("attempt %d should commit", maxAttempts)
	}
	if len(counter.counts) != 0 {
		t.Fatalf("counter not reset: %v", counter.counts)
	}
}

func TestHandleMessageSuccessAndPoison(t *testing.T) {
	counter := &memoryCounter{counts: map[string]int64{"kafka:attempts:lecture:7": 2}}
	var got tasks.ConceptExtractionTask
	ok := processorFunc(func(_ context.Context, task tasks.ConceptExtractionTask) error {
		got = task
		return nil
	})

	if !handleMessage(context.Background(), []byte(`{"lecture_id": 7}`), ok, counter) {
		t.Fatal("successful task not committed")
	}
	if got.LectureID != 7 || len(counter.counts) != 0 {
		t.Fatalf("task = %+v counts = %v", got, counter.counts)
	}

	if !handleMessage(context.Background(), []byte(`not json`), ok, counter) {
		t.Fatal("malformed message should be committed")
	}
}

func TestHandleMessageKeepsOffsetWhenCounterFails(t *testing.T) {
	counter := &memoryCounter{counts: map[string]int64{}, fail: true}
	failing := processorFunc(func(context.Context, tasks.ConceptExtractionTask) error { return errors.New("boom") })
	if handleMessage(context.Background(), []byte(`{"lecture_id": 1}`), failing, counter) {
		t.Fatal("should not commit when attempts cannot be tracked")
	}
}
