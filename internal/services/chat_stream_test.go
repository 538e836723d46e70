package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/claimsage/claimsage-backend/internal/platform/apperr"
	"github.com/claimsage/claimsage-backend/internal/platform/dbctx"
	"github.com/claimsage/claimsage-backend/internal/retrieval"
	"github.com/claimsage/claimsage-backend/internal/types"
)

func newChatService(e *testEnv) ChatService {
	retriever := retrieval.NewRetriever(e.log, e.ai, e.searcher, retrieval.Config{})
	return NewChatService(e.log, e.sessions, e.messages, e.docs, e.ai, retriever, ChatConfig{})
}

func TestStreamReplyPersistsOnCompletion(t *testing.T) {
	e := newTestEnv(t)
	user := seedUser(t, e.db)
	svc := newChatService(e)

	session, err := svc.CreateSession(e.dbc(), user.ID, "Ratings")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	var deltas []string
	msg, err := svc.StreamReply(e.dbc(), user.ID, session.ID, "What does a 70% PTSD rating mean?", func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("StreamReply: %v", err)
	}
	if msg == nil || msg.Role != types.RoleAssistant {
		t.Fatalf("expected persisted assistant message, got %+v", msg)
	}
	if strings.Join(deltas, "") != msg.Content {
		t.Fatalf("concatenated deltas %q != persisted content %q", strings.Join(deltas, ""), msg.Content)
	}

	stored, err := svc.ListMessages(e.dbc(), user.ID, session.ID, 10)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected user+assistant messages, got %d", len(stored))
	}
	if stored[0].Role != types.RoleUser || stored[1].Role != types.RoleAssistant {
		t.Fatalf("messages out of order: %v then %v", stored[0].Role, stored[1].Role)
	}
}

// Consumer cancels after 3 increments: the producer stops, and no assistant
// message is persisted.
func TestStreamReplyCancellation(t *testing.T) {
	e := newTestEnv(t)
	user := seedUser(t, e.db)
	svc := newChatService(e)

	session, err := svc.CreateSession(e.dbc(), user.ID, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	increments := 0
	e.ai.streamFn = func(ctx context.Context, _, _ string, onDelta func(string)) (string, error) {
		parts := []string{"A ", "70% ", "rating ", "means ", "severe impairment."}
		var b strings.Builder
		for _, p := range parts {
			if ctx.Err() != nil {
				return b.String(), ctx.Err()
			}
			increments++
			b.WriteString(p)
			onDelta(p)
			if increments == 3 {
				cancel()
			}
		}
		return b.String(), nil
	}

	_, err = svc.StreamReply(dbctx.Context{Ctx: ctx}, user.ID, session.ID, "question", func(string) {})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if increments != 3 {
		t.Fatalf("producer delivered %d increments after cancellation, want exactly 3", increments)
	}

	var count int64
	if err := e.db.Model(&types.ChatMessage{}).Where("session_id = ?", session.ID).Count(&count).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 1 {
		t.Fatalf("only the user message should be persisted, got %d rows", count)
	}
}

func TestStreamReplyFailureIsTerminalNotPersisted(t *testing.T) {
	e := newTestEnv(t)
	user := seedUser(t, e.db)
	svc := newChatService(e)

	session, _ := svc.CreateSession(e.dbc(), user.ID, "")

	e.ai.streamFn = func(_ context.Context, _, _ string, onDelta func(string)) (string, error) {
		onDelta("partial ")
		return "partial ", apperr.Newf(apperr.KindCompletionService, "upstream broke mid-stream")
	}

	_, err := svc.StreamReply(e.dbc(), user.ID, session.ID, "question", func(string) {})
	if !apperr.IsKind(err, apperr.KindCompletionService) {
		t.Fatalf("expected completion_service error, got %v", err)
	}

	var count int64
	_ = e.db.Model(&types.ChatMessage{}).Where("session_id = ?", session.ID).Count(&count).Error
	if count != 1 {
		t.Fatalf("failed stream must not persist an assistant message, got %d rows", count)
	}
}

// Retrieval failing (provider down for the query embedding) must not block
// the conversation: the reply streams with an empty context.
func TestStreamReplyFailsOpenOnRetrievalFailure(t *testing.T) {
	e := newTestEnv(t)
	user := seedUser(t, e.db)
	svc := newChatService(e)

	session, _ := svc.CreateSession(e.dbc(), user.ID, "")

	e.ai.embedFn = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("embedding provider down")
	}

	msg, err := svc.StreamReply(e.dbc(), user.ID, session.ID, "question", func(string) {})
	if err != nil {
		t.Fatalf("retrieval failure must fail open, got %v", err)
	}
	if msg == nil || msg.Content == "" {
		t.Fatal("expected a streamed reply despite empty context")
	}
}

func TestStreamReplyRejectsForeignSession(t *testing.T) {
	e := newTestEnv(t)
	owner := seedUser(t, e.db)
	other := seedUser(t, e.db)
	svc := newChatService(e)

	session, _ := svc.CreateSession(e.dbc(), owner.ID, "")

	_, err := svc.StreamReply(e.dbc(), other.ID, session.ID, "question", func(string) {})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("cross-owner session access must look like not_found, got %v", err)
	}
}
