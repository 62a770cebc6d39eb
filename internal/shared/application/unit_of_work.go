// Package application holds cross-context application primitives.
package application

import (
	"context"
	"errors"
	"fmt"
)

// UnitOfWork groups repository calls into one transaction carried by context.
type UnitOfWork interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// WithUnitOfWork runs fn inside a unit of work. fn's error triggers a rollback
// and is returned unchanged (joined with a rollback failure, if any), so
// callers can still match sentinels with errors.Is. A panic rolls back and
// re-panics.
func WithUnitOfWork(ctx context.Context, uow UnitOfWork, fn func(ctx context.Context) error) (err error) {
	txCtx, err := uow.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = uow.Rollback(txCtx)
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := uow.Rollback(txCtx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := uow.Commit(txCtx); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	return nil
}
