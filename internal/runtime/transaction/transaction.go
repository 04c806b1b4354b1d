// Package transaction carries the only part of a transaction the bus core
// uses: the request to roll it back.
package transaction

import (
	"context"
	"sync/atomic"

	"github.com/drblury/flowcore/internal/runtime/ids"
)

// Transaction is the rollback contract of an external transaction manager.
type Transaction interface {
	ID() string
	SetRollbackOnly() error
	IsRollbackOnly() bool
}

type txKey struct{}

// WithTransaction binds tx to ctx.
func WithTransaction(ctx context.Context, tx Transaction) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// FromContext returns the transaction bound to ctx, or nil.
func FromContext(ctx context.Context) Transaction {
	if ctx == nil {
		return nil
	}
	tx, _ := ctx.Value(txKey{}).(Transaction)
	return tx
}

// IsActive reports whether ctx carries a transaction.
func IsActive(ctx context.Context) bool {
	return FromContext(ctx) != nil
}

// MarkRollbackOnly requests rollback of the transaction bound to ctx. It
// reports whether a transaction was found.
func MarkRollbackOnly(ctx context.Context) (bool, error) {
	tx := FromContext(ctx)
	if tx == nil {
		return false, nil
	}
	return true, tx.SetRollbackOnly()
}

// Local is an in-memory Transaction for callers without a transaction manager.
type Local struct {
	id       string
	rollback atomic.Bool
}

// NewLocal returns a fresh local transaction.
func NewLocal() *Local {
	return &Local{id: ids.WithPrefix("tx")}
}

func (l *Local) ID() string { return l.id }

func (l *Local) SetRollbackOnly() error {
	l.rollback.Store(true)
	return nil
}

func (l *Local) IsRollbackOnly() bool { return l.rollback.Load() }
