package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"super-feynman-go/internal/model"
	"super-feynman-go/internal/repository"
	"super-feynman-go/internal/testutil"
	"super-feynman-go/pkg/apperr"
	"super-feynman-go/pkg/lock"
)

var fixedNow = time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC)

type reviewFixture struct {
	db       *gorm.DB
	llm      *testutil.FakeLLM
	svc      ReviewService
	concepts repository.ConceptRepository
	sessions repository.ReviewSessionRepository
}

func newReviewFixture(t *testing.T, opts ...ReviewOption) *reviewFixture {
	t.Helper()
	db := testutil.DB(t)
	llm := &testutil.FakeLLM{
		Opener: "Hey! Can you explain entropy to me?",
		Feedback: &model.FeedbackResult{
			OverallQuality: "Clear explanation with a good analogy.",
			ClearParts:     []string{"disorder analogy"},
			UnclearParts:   []string{},
			JargonUsed:     []string{"microstates"},
			StruggledWith:  []string{},
		},
	}
	concepts := repository.NewConceptRepository(db)
	sessions := repository.NewReviewSessionRepository(db)
	opts = append([]ReviewOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return &reviewFixture{
		db:       db,
		llm:      llm,
		svc:      NewReviewService(llm, concepts, sessions, lock.NewMemoryLocker(), opts...),
		concepts: concepts,
		sessions: sessions,
	}
}

func TestReviewEntropyScenario(t *testing.T) {
	f := newReviewFixture(t)
	concept := testutil.SeedEntropy(t, f.db, model.StatusNotStarted)
	ctx := context.Background()
	f.llm.Replies = []string{"So it's like a messy room?"}

	session, opener, err := f.svc.StartSession(ctx, concept.ID, "classmate")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if opener != f.llm.Opener || session.State != model.SessionActive {
		t.Fatalf("opener = %q, state = %s", opener, session.State)
	}

	turn, err := f.svc.SendMessage(ctx, session.ID, "Entropy measures how many ways a system can be arranged.")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if turn.Reply != "So it's like a messy room?" {
		t.Fatalf("reply = %q", turn.Reply)
	}
	wantHistory := model.History{
		{Role: model.RoleAssistant, Content: "Hey! Can you explain entropy to me?"},
		{Role: model.RoleUser, Content: "Entropy measures how many ways a system can be arranged."},
		{Role: model.RoleAssistant, Content: "So it's like a messy room?"},
	}
	if !reflect.DeepEqual(turn.Session.History, wantHistory) {
		t.Fatalf("history = %+v", turn.Session.History)
	}
	if len(f.llm.LastHistory) != 2 || f.llm.LastHistory[1].Role != model.RoleUser {
		t.Fatalf("provider history = %+v", f.llm.LastHistory)
	}

	end, err := f.svc.EndSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if end.OldStatus != model.StatusNotStarted || end.NewStatus != model.StatusReviewing {
		t.Fatalf("status %s -> %s", end.OldStatus, end.NewStatus)
	}
	if end.Feedback.OverallQuality != "Clear explanation with a good analogy." {
		t.Fatalf("feedback = %+v", end.Feedback)
	}

	stored, _ := f.concepts.FindByID(ctx, concept.ID)
	if stored.ProgressStatus != model.StatusReviewing || stored.LastReviewed == nil || !stored.LastReviewed.Equal(fixedNow) {
		t.Fatalf("concept = %+v", stored)
	}
	ended, _ := f.svc.GetSession(ctx, session.ID)
	if ended.State != model.SessionEnded || ended.Feedback == nil || len(ended.History) != 3 {
		t.Fatalf("session = %+v", ended)
	}

	if _, err := f.svc.EndSession(ctx, session.ID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("second End err = %v, want ErrInvalidState", err)
	}
	if _, err := f.svc.SendMessage(ctx, session.ID, "more"); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("message after End err = %v, want ErrInvalidState", err)
	}
}

func TestReviewProgressionIsCappedAtMastered(t *testing.T) {
	f := newReviewFixture(t)
	concept := testutil.SeedEntropy(t, f.db, model.StatusUnderstood)
	ctx := context.Background()

	for _, want := range []model.ProgressStatus{model.StatusMastered, model.StatusMastered} {
		session, _, err := f.svc.StartSession(ctx, concept.ID, "kid")
		if err != nil {
			t.Fatalf("StartSession: %v", err)
		}
		end, err := f.svc.EndSession(ctx, session.ID)
		if err != nil {
			t.Fatalf("EndSession: %v", err)
		}
		if end.NewStatus != want {
			t.Fatalf("new status = %s, want %s", end.NewStatus, want)
		}
	}
}

func TestStartSessionValidation(t *testing.T) {
	f := newReviewFixture(t)
	concept := testutil.SeedEntropy(t, f.db, model.StatusNotStarted)
	ctx := context.Background()

	if _, _, err := f.svc.StartSession(ctx, 9999, "professor"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("bad audience err = %v, want ErrInvalidInput before NotFound", err)
	}
	if _, _, err := f.svc.StartSession(ctx, 9999, "kid"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing concept err = %v, want ErrNotFound", err)
	}
	if f.llm.OpenCalls != 0 {
		t.Fatalf("provider called %d times for invalid requests", f.llm.OpenCalls)
	}

	f.llm.OpenErr = apperr.ErrRateLimited
	if _, _, err := f.svc.StartSession(ctx, concept.ID, "kid"); !errors.Is(err, apperr.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	var n int64
	f.db.Model(&model.ReviewSession{}).Count(&n)
	if n != 0 {
		t.Fatalf("persisted %d sessions after provider failure", n)
	}
}

func TestSendMessageProviderFailureLeavesHistory(t *testing.T) {
	f := newReviewFixture(t)
	concept := testutil.SeedEntropy(t, f.db, model.StatusNotStarted)
	ctx := context.Background()
	session, _, _ := f.svc.StartSession(ctx, concept.ID, "middleschooler")

	if _, err := f.svc.SendMessage(ctx, session.ID, "   "); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("blank message err = %v", err)
	}
	if _, err := f.svc.SendMessage(ctx, 9999, "hi"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing session err = %v", err)
	}

	f.llm.ContinueErr = apperr.ErrProviderCallFailed
	if _, err := f.svc.SendMessage(ctx, session.ID, "Entropy is disorder."); !errors.Is(err, apperr.ErrProviderCallFailed) {
		t.Fatalf("err = %v, want ErrProviderCallFailed", err)
	}
	stored, _ := f.svc.GetSession(ctx, session.ID)
	if len(stored.History) != 1 || stored.State != model.SessionActive {
		t.Fatalf("session mutated on provider failure: %+v", stored)
	}
}

func TestEndSessionProviderFailureMutatesNothing(t *testing.T) {
	f := newReviewFixture(t)
	concept := testutil.SeedEntropy(t, f.db, model.StatusReviewing)
	ctx := context.Background()
	session, _, _ := f.svc.StartSession(ctx, concept.ID, "classmate")

	f.llm.FeedbackErr = apperr.ErrMalformedProviderResponse
	if _, err := f.svc.EndSession(ctx, session.ID); !errors.Is(err, apperr.ErrMalformedProviderResponse) {
		t.Fatalf("err = %v", err)
	}
	stored, _ := f.concepts.FindByID(ctx, concept.ID)
	if stored.ProgressStatus != model.StatusReviewing || stored.LastReviewed != nil {
		t.Fatalf("concept mutated: %+v", stored)
	}
	s, _ := f.svc.GetSession(ctx, session.ID)
	if s.State != model.SessionActive || s.Feedback != nil {
		t.Fatalf("session mutated: %+v", s)
	}

	// 失败后可以重试结束
	f.llm.FeedbackErr = nil
	if _, err := f.svc.EndSession(ctx, session.ID); err != nil {
		t.Fatalf("retry End: %v", err)
	}
}

func TestSendMessageTurnLimit(t *testing.T) {
	f := newReviewFixture(t, WithMaxTurns(2))
	concept := testutil.SeedEntropy(t, f.db, model.StatusNotStarted)
	ctx := context.Background()
	session, _, _ := f.svc.StartSession(ctx, concept.ID, "classmate")

	for i := 0; i < 2; i++ {
		if _, err := f.svc.SendMessage(ctx, session.ID, "explanation"); err != nil {
			t.Fatalf("turn %d: %v", i+1, err)
		}
	}
	if _, err := f.svc.SendMessage(ctx, session.ID, "one more"); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState at the turn limit", err)
	}
	if f.llm.ContinueCalls != 2 {
		t.Fatalf("provider called %d times, want 2", f.llm.ContinueCalls)
	}
	if _, err := f.svc.EndSession(ctx, session.ID); err != nil {
		t.Fatalf("End after limit: %v", err)
	}
}

func TestEndSessionConceptDeleted(t *testing.T) {
	f := newReviewFixture(t)
	concept := testutil.SeedEntropy(t, f.db, model.StatusNotStarted)
	ctx := context.Background()
	session, _, _ := f.svc.StartSession(ctx, concept.ID, "classmate")

	if err := f.concepts.Delete(ctx, concept.ID); err != nil {
		t.Fatalf("delete concept: %v", err)
	}
	if _, err := f.svc.EndSession(ctx, session.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestConcurrentMessagesAreSerialized(t *testing.T) {
	f := newReviewFixture(t, WithMaxTurns(0))
	concept := testutil.SeedEntropy(t, f.db, model.StatusNotStarted)
	ctx := context.Background()
	session, _, _ := f.svc.StartSession(ctx, concept.ID, "classmate")

	const n = 4
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.SendMessage(ctx, session.ID, "explanation")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
	}

	stored, _ := f.svc.GetSession(ctx, session.ID)
	if len(stored.History) != 1+2*n {
		t.Fatalf("history length = %d, want %d", len(stored.History), 1+2*n)
	}
	for i, m := range stored.History {
		want := model.RoleAssistant
		if i%2 == 1 {
			want = model.RoleUser
		}
		if m.Role != want {
			t.Fatalf("message %d role = %s, want %s", i, m.Role, want)
		}
	}
}

type busyLocker struct{}

func (busyLocker) Lock(context.Context, string) (func(), error) { return nil, lock.ErrLockTimeout }

func TestLockTimeoutIsInvalidState(t *testing.T) {
	f := newReviewFixture(t)
	svc := NewReviewService(f.llm, f.concepts, f.sessions, busyLocker{})
	if _, err := svc.SendMessage(context.Background(), 1, "hi"); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}
