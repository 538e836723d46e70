package services

import (
	"context"

	"github.com/claimsage/claimsage-backend/internal/realtime"
)

// Emitter decouples services from how lifecycle events reach clients: a bare
// hub in single-process deployments, Redis pub/sub when fanned out.
type Emitter interface {
	Emit(ctx context.Context, msg realtime.SSEMessage)
}

type HubEmitter struct{ Hub *realtime.SSEHub }

func (e *HubEmitter) Emit(_ context.Context, msg realtime.SSEMessage) {
	e.Hub.Broadcast(msg)
}

type BusEmitter struct{ Bus realtime.Bus }

func (e *BusEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	_ = e.Bus.Publish(ctx, msg)
}

// NopEmitter is used where realtime delivery is not configured (tests, CLI).
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, realtime.SSEMessage) {}
