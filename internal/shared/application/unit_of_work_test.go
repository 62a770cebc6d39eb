package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUnitOfWork struct {
	mock.Mock
}

func (m *mockUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	args := m.Called(ctx)
	return args.Get(0).(context.Context), args.Error(1)
}

func (m *mockUnitOfWork) Commit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockUnitOfWork) Rollback(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type txMarker struct{}

func TestWithUnitOfWork(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		ctx := context.Background()
		txCtx := context.WithValue(ctx, txMarker{}, "tx")
		uow.On("Begin", ctx).Return(txCtx, nil)
		uow.On("Commit", txCtx).Return(nil)

		err := WithUnitOfWork(ctx, uow, func(got context.Context) error {
			assert.Equal(t, txCtx, got)
			return nil
		})

		require.NoError(t, err)
		uow.AssertExpectations(t)
	})

	t.Run("rolls back and keeps the sentinel", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		ctx := context.Background()
		uow.On("Begin", ctx).Return(ctx, nil)
		uow.On("Rollback", ctx).Return(errors.New("conn reset"))

		sentinel := errors.New("already processed")
		err := WithUnitOfWork(ctx, uow, func(context.Context) error { return sentinel })

		assert.ErrorIs(t, err, sentinel)
		assert.Contains(t, err.Error(), "rollback: conn reset")
		uow.AssertNotCalled(t, "Commit", mock.Anything)
	})

	t.Run("begin failure skips fn", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		ctx := context.Background()
		uow.On("Begin", ctx).Return(ctx, errors.New("pool exhausted"))

		called := false
		err := WithUnitOfWork(ctx, uow, func(context.Context) error { called = true; return nil })

		assert.ErrorContains(t, err, "begin unit of work")
		assert.False(t, called)
	})

	t.Run("commit failure is reported", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		ctx := context.Background()
		uow.On("Begin", ctx).Return(ctx, nil)
		uow.On("Commit", ctx).Return(errors.New("disk full"))

		err := WithUnitOfWork(ctx, uow, func(context.Context) error { return nil })
		assert.ErrorContains(t, err, "commit unit of work: disk full")
	})

	t.Run("panic rolls back", func(t *testing.T) {
		uow := new(mockUnitOfWork)
		ctx := context.Background()
		uow.On("Begin", ctx).Return(ctx, nil)
		uow.On("Rollback", ctx).Return(nil)

		assert.Panics(t, func() {
			_ = WithUnitOfWork(ctx, uow, func(context.Context) error { panic("boom") })
		})
		uow.AssertCalled(t, "Rollback", ctx)
	})
}
