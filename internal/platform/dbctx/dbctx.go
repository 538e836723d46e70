package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction. Repos
// fall back to their own *gorm.DB when Tx is nil, so most callers only carry
// the request context.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// From wraps a plain context with no transaction.
func From(ctx context.Context) Context {
	return Context{Ctx: ctx}
}

// WithTx returns a copy bound to tx, for multi-write operations that must
// commit or roll back together.
func (c Context) WithTx(tx *gorm.DB) Context {
	c.Tx = tx
	return c
}

// Context never returns nil, so repos can pass it to gorm's WithContext
// without guarding.
func (c Context) Context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}
