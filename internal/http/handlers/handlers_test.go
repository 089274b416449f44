package handlers

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/careassist/handoff-backend/internal/domain"
	"github.com/careassist/handoff-backend/internal/repo"
	"github.com/careassist/handoff-backend/internal/services"
)

// ---------- shared stubs for handlers.New() ----------
//
// Each stub defaults to a benign zero-value result; individual tests override
// behavior through the function fields.

type stubPresenceSvc struct {
	update func(ctx context.Context, propertyID, visitorID, sessionID, status string) (services.PresenceAck, error)
}

func (s stubPresenceSvc) Update(ctx context.Context, propertyID, visitorID, sessionID, status string) (services.PresenceAck, error) {
	if s.update != nil {
		return s.update(ctx, propertyID, visitorID, sessionID, status)
	}
	return services.PresenceAck{}, nil
}

type stubQueueSvc struct {
	apply func(ctx context.Context, conversationID, visitorID, sessionID, action, preview string, windowMS *int) error
}

func (s stubQueueSvc) Apply(ctx context.Context, conversationID, visitorID, sessionID, action, preview string, windowMS *int) error {
	if s.apply != nil {
		return s.apply(ctx, conversationID, visitorID, sessionID, action, preview, windowMS)
	}
	return nil
}

type stubSweepSvc struct {
	sweep func(ctx context.Context, userID, propertyID string, staleSeconds int) (services.SweepResult, error)
}

func (s stubSweepSvc) Sweep(ctx context.Context, userID, propertyID string, staleSeconds int) (services.SweepResult, error) {
	if s.sweep != nil {
		return s.sweep(ctx, userID, propertyID, staleSeconds)
	}
	return services.SweepResult{PropertyIDs: []string{}}, nil
}

type stubConvSvc struct {
	open      func(ctx context.Context, propertyID, visitorID, sessionID string) (*domain.Conversation, bool, error)
	post      func(ctx context.Context, conversationID, visitorID, sessionID, content string) (*domain.Message, error)
	listMsgs  func(ctx context.Context, conversationID, visitorID, sessionID string, page, pageSize int) ([]domain.Message, int64, error)
	dashList  func(ctx context.Context, userID, propertyID string, page, pageSize int) ([]domain.Conversation, int64, error)
	queue     func(ctx context.Context, userID, conversationID string) (services.QueueSnapshot, error)
	authorize func(ctx context.Context, userID, propertyID string) error
}

func (s stubConvSvc) AuthorizeDashboard(ctx context.Context, userID, propertyID string) error {
	if s.authorize != nil {
		return s.authorize(ctx, userID, propertyID)
	}
	return nil
}

func (s stubConvSvc) Open(ctx context.Context, propertyID, visitorID, sessionID string) (*domain.Conversation, bool, error) {
	if s.open != nil {
		return s.open(ctx, propertyID, visitorID, sessionID)
	}
	return &domain.Conversation{ID: "c"}, false, nil
}

func (s stubConvSvc) PostMessage(ctx context.Context, conversationID, visitorID, sessionID, content string) (*domain.Message, error) {
	if s.post != nil {
		return s.post(ctx, conversationID, visitorID, sessionID, content)
	}
	return &domain.Message{ID: "m"}, nil
}

func (s stubConvSvc) ListMessages(ctx context.Context, conversationID, visitorID, sessionID string, page, pageSize int) ([]domain.Message, int64, error) {
	if s.listMsgs != nil {
		return s.listMsgs(ctx, conversationID, visitorID, sessionID, page, pageSize)
	}
	return nil, 0, nil
}

func (s stubConvSvc) DashboardList(ctx context.Context, userID, propertyID string, page, pageSize int) ([]domain.Conversation, int64, error) {
	if s.dashList != nil {
		return s.dashList(ctx, userID, propertyID, page, pageSize)
	}
	return nil, 0, nil
}

func (s stubConvSvc) Queue(ctx context.Context, userID, conversationID string) (services.QueueSnapshot, error) {
	if s.queue != nil {
		return s.queue(ctx, userID, conversationID)
	}
	return services.QueueSnapshot{Phase: domain.QueueIdle}, nil
}

// ---------- test DB + seed helpers ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:handoff_handlers_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// seedHandlerPair creates a property owned by "owner-1" plus a visitor bound
// to session "sess-1" and returns their ids.
func seedHandlerPair(t *testing.T, db *gorm.DB) (propertyID, visitorID string) {
	t.Helper()
	ctx := context.Background()

	p, err := repo.CreateProperty(ctx, db, "owner-1", "Acme Support", "acme.example")
	if err != nil {
		t.Fatalf("seed property: %v", err)
	}
	v, err := repo.CreateVisitor(ctx, db, p.ID, "sess-1")
	if err != nil {
		t.Fatalf("seed visitor: %v", err)
	}
	return p.ID, v.ID
}

func newStubHandlers() *Handlers {
	return New(stubPresenceSvc{}, stubQueueSvc{}, stubSweepSvc{}, stubConvSvc{})
}

// ---------- helpers-only tests ----------

func Test_userID_and_clampPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// userID helper
	rc := gin.CreateTestContextOnly(httptest.NewRecorder(), gin.New())
	if got := userID(rc); got != "demo-user" {
		t.Fatalf("fallback userID = %q", got)
	}
	rc.Set("userID", "u1")
	if got := userID(rc); got != "u1" {
		t.Fatalf("ctx userID = %q", got)
	}
	rc.Set("userID", 123) // wrong type → fallback
	if got := userID(rc); got != "demo-user" {
		t.Fatalf("wrong-type fallback userID = %q", got)
	}

	// header fallback
	cH, _ := gin.CreateTestContext(httptest.NewRecorder())
	reqH := httptest.NewRequest("GET", "/", nil)
	reqH.Header.Set("X-User-ID", "u-123")
	cH.Request = reqH
	if got := userID(cH); got != "u-123" {
		t.Fatalf("header fallback userID = %q", got)
	}

	// clampPagination bounds
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?page=-5&page_size=9999", nil)
	p, ps := clampPagination(c)
	if p != 1 || ps != 100 {
		t.Fatalf("clamp bounds got p=%d ps=%d", p, ps)
	}
	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?page=&page_size=0", nil)
	p, ps = clampPagination(c)
	if p != 1 || ps != 1 {
		t.Fatalf("clamp floor got p=%d ps=%d", p, ps)
	}
	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/", nil)
	p, ps = clampPagination(c)
	if p != 1 || ps != 20 {
		t.Fatalf("clamp defaults got p=%d ps=%d", p, ps)
	}
}
