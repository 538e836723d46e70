package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/claimsage/claimsage-backend/internal/platform/apperr"
	"github.com/claimsage/claimsage-backend/internal/platform/dbctx"
	"github.com/claimsage/claimsage-backend/internal/platform/logger"
	"github.com/claimsage/claimsage-backend/internal/requestdata"
	"github.com/claimsage/claimsage-backend/internal/types"
)

type stubChatService struct {
	getSessionErr error
	streamed      bool
}

func (s *stubChatService) CreateSession(dbctx.Context, uuid.UUID, string) (*types.ChatSession, error) {
	return nil, nil
}

func (s *stubChatService) GetSession(_ dbctx.Context, _, sessionID uuid.UUID) (*types.ChatSession, error) {
	if s.getSessionErr != nil {
		return nil, s.getSessionErr
	}
	return &types.ChatSession{ID: sessionID}, nil
}

func (s *stubChatService) ListSessions(dbctx.Context, uuid.UUID, int) ([]*types.ChatSession, error) {
	return nil, nil
}

func (s *stubChatService) DeleteSession(dbctx.Context, uuid.UUID, uuid.UUID) error { return nil }

func (s *stubChatService) ListMessages(dbctx.Context, uuid.UUID, uuid.UUID, int) ([]*types.ChatMessage, error) {
	return nil, nil
}

func (s *stubChatService) StreamReply(_ dbctx.Context, _, _ uuid.UUID, _ string, onDelta func(string)) (*types.ChatMessage, error) {
	s.streamed = true
	onDelta("hi")
	return &types.ChatMessage{ID: uuid.New(), Role: types.RoleAssistant, Content: "hi"}, nil
}

func streamRequestContext(t *testing.T, svc *stubChatService, sessionID uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/sessions/"+sessionID.String()+"/stream?message=hello", nil)
	rd := &requestdata.RequestData{UserID: uuid.New()}
	c.Request = req.WithContext(requestdata.WithRequestData(req.Context(), rd))
	c.Params = gin.Params{{Key: "id", Value: sessionID.String()}}

	NewChatHandler(log, svc).Stream(c)
	return rec
}

func TestStreamUnknownSessionIsPlainHTTPError(t *testing.T) {
	svc := &stubChatService{getSessionErr: apperr.Newf(apperr.KindNotFound, "chat session not found")}
	rec := streamRequestContext(t, svc, uuid.New())

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: want=%d got=%d", http.StatusNotFound, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); strings.Contains(ct, "text/event-stream") {
		t.Fatalf("error response must not be an event stream, got %q", ct)
	}
	if svc.streamed {
		t.Fatalf("stream must not start for an unknown session")
	}
}

func TestStreamValidSessionEmitsEvents(t *testing.T) {
	svc := &stubChatService{}
	rec := streamRequestContext(t, svc, uuid.New())

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("content type: want event stream, got %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: delta") || !strings.Contains(body, "event: done") {
		t.Fatalf("missing stream events: %q", body)
	}
}
