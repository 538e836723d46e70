package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/claimsage/claimsage-backend/internal/platform/apperr"
	"github.com/claimsage/claimsage-backend/internal/platform/dbctx"
	"github.com/claimsage/claimsage-backend/internal/types"
)

func (s *chatService) StreamReply(dbc dbctx.Context, userID, sessionID uuid.UUID, userMessage string, onDelta func(delta string)) (*types.ChatMessage, error) {
	userMessage = strings.TrimSpace(userMessage)
	if userMessage == "" {
		return nil, apperr.Newf(apperr.KindInvalidInput, "message content required")
	}

	session, err := s.GetSession(dbc, userID, sessionID)
	if err != nil {
		return nil, err
	}

	// History is loaded before the new message is stored so the assembler
	// appends it exactly once, as the final turn.
	history, err := s.messages.ListBySessionID(dbc, session.ID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}

	if _, err := s.messages.Create(dbc, []*types.ChatMessage{{
		ID:        uuid.New(),
		SessionID: session.ID,
		Role:      types.RoleUser,
		Content:   userMessage,
	}}); err != nil {
		return nil, err
	}
	if err := s.sessions.TouchLastMessage(dbc, session.ID); err != nil {
		s.log.Warn("Session timestamp update failed", "session_id", session.ID, "error", err.Error())
	}

	// Retrieval fails open; scope violations are the one error it surfaces.
	fragments, err := s.retriever.Retrieve(dbc, userID, userMessage, true, nil)
	if err != nil {
		s.log.Error("Retrieval aborted the reply", "session_id", session.ID, "error", err.Error())
		return nil, err
	}

	analyses, err := s.docs.ListCompletedByUserID(dbc, userID, s.cfg.PriorAnalysesLimit)
	if err != nil {
		s.log.Warn("Prior analyses unavailable; continuing without them",
			"session_id", session.ID, "error", err.Error())
		analyses = nil
	}

	prompt := AssembleContext(fragments, analyses, history, userMessage, s.cfg.ContextBudgetTokens)

	full, err := s.ai.StreamText(dbc.Ctx, chatSystemPrompt, prompt.RenderTranscript(), onDelta)
	if err != nil {
		// Deltas already forwarded stay with the caller, but an incomplete
		// reply is never persisted; the caller gets a terminal error signal
		// distinct from normal completion.
		if errors.Is(err, context.Canceled) {
			s.log.Info("Reply stream canceled by consumer", "session_id", session.ID)
		} else {
			s.log.Warn("Reply stream failed", "session_id", session.ID, "error", err.Error())
		}
		return nil, err
	}

	full = strings.TrimSpace(full)
	if full == "" {
		return nil, apperr.Newf(apperr.KindCompletionService, "model produced no reply")
	}

	assistant := &types.ChatMessage{
		ID:        uuid.New(),
		SessionID: session.ID,
		Role:      types.RoleAssistant,
		Content:   full,
	}
	if _, err := s.messages.Create(dbc, []*types.ChatMessage{assistant}); err != nil {
		return nil, err
	}
	if err := s.sessions.TouchLastMessage(dbc, session.ID); err != nil {
		s.log.Warn("Session timestamp update failed", "session_id", session.ID, "error", err.Error())
	}
	return assistant, nil
}
