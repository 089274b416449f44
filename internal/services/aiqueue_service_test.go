package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/careassist/handoff-backend/internal/domain"
)

// ----- Fake repo -----

type fakeQueueRepo struct {
	visitor    *domain.Visitor
	visitorErr error

	conv    *domain.Conversation
	convErr error

	updatedID    string
	updatedState domain.QueueState
	updateErr    error
	updateCalls  int
}

func (r *fakeQueueRepo) GetVisitor(ctx context.Context, db *gorm.DB, id string) (*domain.Visitor, error) {
	return r.visitor, r.visitorErr
}

func (r *fakeQueueRepo) GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	return r.conv, r.convErr
}

func (r *fakeQueueRepo) UpdateQueueState(ctx context.Context, db *gorm.DB, id string, st domain.QueueState) error {
	r.updateCalls++
	r.updatedID, r.updatedState = id, st
	return r.updateErr
}

func queueFixture() *fakeQueueRepo {
	return &fakeQueueRepo{
		visitor: &domain.Visitor{ID: "v1", PropertyID: "p1", SessionID: "s1"},
		conv:    &domain.Conversation{ID: "c1", PropertyID: "p1", VisitorID: "v1", Status: domain.StatusActive},
	}
}

// ----- Tests -----

func TestQueueApply_InvalidAction(t *testing.T) {
	repo := queueFixture()
	svc := NewQueueService(nil, repo)

	for _, a := range []string{"", "requeue", "QUEUE", "stop"} {
		if err := svc.Apply(context.Background(), "c1", "v1", "s1", a, "", nil); !errors.Is(err, ErrInvalidAction) {
			t.Fatalf("action %q: expected ErrInvalidAction, got %v", a, err)
		}
	}
	if repo.updateCalls != 0 {
		t.Fatal("invalid action must not write")
	}
}

func TestQueueApply_AuthChain(t *testing.T) {
	// Unknown visitor
	svc := NewQueueService(nil, &fakeQueueRepo{visitorErr: gorm.ErrRecordNotFound})
	if err := svc.Apply(context.Background(), "c1", "v1", "s1", domain.ActionQueue, "", nil); !errors.Is(err, ErrInvalidVisitor) {
		t.Fatalf("expected ErrInvalidVisitor, got %v", err)
	}

	// Forged session
	repo := queueFixture()
	svc = NewQueueService(nil, repo)
	if err := svc.Apply(context.Background(), "c1", "v1", "nope", domain.ActionQueue, "", nil); !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("expected ErrSessionMismatch, got %v", err)
	}

	// Missing conversation
	repo = queueFixture()
	repo.convErr = gorm.ErrRecordNotFound
	svc = NewQueueService(nil, repo)
	if err := svc.Apply(context.Background(), "c1", "v1", "s1", domain.ActionQueue, "", nil); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}

	// Conversation of another visitor
	repo = queueFixture()
	repo.conv.VisitorID = "v2"
	svc = NewQueueService(nil, repo)
	if err := svc.Apply(context.Background(), "c1", "v1", "s1", domain.ActionClear, "", nil); !errors.Is(err, ErrConversationMismatch) {
		t.Fatalf("expected ErrConversationMismatch, got %v", err)
	}
	if repo.updateCalls != 0 {
		t.Fatal("cross-visitor action must not write")
	}
}

func TestQueueApply_QueueWritesFreshState(t *testing.T) {
	repo := queueFixture()
	svc := NewQueueService(nil, repo)

	before := time.Now().UTC()
	if err := svc.Apply(context.Background(), "c1", "v1", "s1", domain.ActionQueue, "  hello there  ", nil); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if repo.updateCalls != 1 || repo.updatedID != "c1" {
		t.Fatalf("expected one write to c1, got %d (%s)", repo.updateCalls, repo.updatedID)
	}
	st := repo.updatedState
	if st.Phase != domain.QueueQueued || st.Since.Before(before) {
		t.Fatalf("bad state: %+v", st)
	}
	if st.Preview != "hello there" {
		t.Fatalf("preview not trimmed: %q", st.Preview)
	}
	// Omitted window falls back to the service default.
	if st.WindowMS == nil || *st.WindowMS != svc.DefaultWindowMS {
		t.Fatalf("window default not applied: %v", st.WindowMS)
	}
}

func TestQueueApply_RequeueKeepsCustomWindow(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	prev := "first reply"
	win := 5000

	repo := queueFixture()
	repo.conv.AIQueuedAt = &at
	repo.conv.AIQueuedPreview = &prev
	repo.conv.AIQueuedWindowMS = &win
	svc := NewQueueService(nil, repo)

	// A re-queue with windowMs omitted keeps the window supplied earlier
	// instead of falling back to the service default.
	if err := svc.Apply(context.Background(), "c1", "v1", "s1", domain.ActionQueue, "second reply", nil); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	st := repo.updatedState
	if st.WindowMS == nil || *st.WindowMS != 5000 {
		t.Fatalf("custom window lost on requeue: %v", st.WindowMS)
	}
	if st.Preview != "second reply" || st.Since.Equal(at) {
		t.Fatalf("requeue must still reset the countdown basis: %+v", st)
	}

	// An explicit windowMs always wins.
	w := 2500
	if err := svc.Apply(context.Background(), "c1", "v1", "s1", domain.ActionQueue, "third reply", &w); err != nil {
		t.Fatalf("requeue with window: %v", err)
	}
	if st := repo.updatedState; st.WindowMS == nil || *st.WindowMS != 2500 {
		t.Fatalf("explicit window not applied: %v", st.WindowMS)
	}
}

func TestQueueApply_PreviewClipping(t *testing.T) {
	repo := queueFixture()
	svc := NewQueueService(nil, repo)
	svc.PreviewMaxRunes = 10

	long := strings.Repeat("é", 40)
	if err := svc.Apply(context.Background(), "c1", "v1", "s1", domain.ActionQueue, long, nil); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	got := repo.updatedState.Preview
	if want := strings.Repeat("é", 10); got != want {
		t.Fatalf("clip on runes, not bytes: got %d runes", len([]rune(got)))
	}
}

func TestQueueApply_NoOpSkipsWrite(t *testing.T) {
	// Pause on an idle conversation is acknowledged without a write.
	repo := queueFixture()
	svc := NewQueueService(nil, repo)
	if err := svc.Apply(context.Background(), "c1", "v1", "s1", domain.ActionPause, "", nil); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if repo.updateCalls != 0 {
		t.Fatal("pause on idle wrote")
	}

	// Resume on idle likewise.
	if err := svc.Apply(context.Background(), "c1", "v1", "s1", domain.ActionResume, "", nil); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if repo.updateCalls != 0 {
		t.Fatal("resume on idle wrote")
	}

	// Clear on idle likewise.
	if err := svc.Apply(context.Background(), "c1", "v1", "s1", domain.ActionClear, "", nil); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if repo.updateCalls != 0 {
		t.Fatal("clear on idle wrote")
	}
}

func TestQueueApply_PauseResumeKeepBasis(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	prev := "queued reply"
	win := 8000

	repo := queueFixture()
	repo.conv.AIQueuedAt = &at
	repo.conv.AIQueuedPreview = &prev
	repo.conv.AIQueuedWindowMS = &win
	svc := NewQueueService(nil, repo)

	if err := svc.Apply(context.Background(), "c1", "v1", "s1", domain.ActionPause, "", nil); err != nil {
		t.Fatalf("pause: %v", err)
	}
	st := repo.updatedState
	if st.Phase != domain.QueuePaused || !st.Since.Equal(at) || st.Preview != prev {
		t.Fatalf("pause changed the countdown basis: %+v", st)
	}

	repo.conv.AIQueuedPaused = true
	if err := svc.Apply(context.Background(), "c1", "v1", "s1", domain.ActionResume, "", nil); err != nil {
		t.Fatalf("resume: %v", err)
	}
	st = repo.updatedState
	if st.Phase != domain.QueueQueued || !st.Since.Equal(at) {
		t.Fatalf("resume changed the countdown basis: %+v", st)
	}
}

func TestQueueApply_UpdateErrorSurfaces(t *testing.T) {
	repo := queueFixture()
	repo.updateErr = errors.New("disk full")
	svc := NewQueueService(nil, repo)

	if err := svc.Apply(context.Background(), "c1", "v1", "s1", domain.ActionQueue, "p", nil); err == nil {
		t.Fatal("expected write error to surface")
	}
}
