package auth

import "context"

// execute runs one operation inside a fresh unit of work: run the handler,
// then commit exactly once, only when the handler succeeded. A failed handler
// never commits; its staged writes are discarded wholesale.
func execute[T any](ctx context.Context, store Store, fn func(uow UnitOfWork) (T, error)) (T, error) {
	var zero T
	uow, err := store.Begin(ctx)
	if err != nil {
		return zero, err
	}
	out, err := fn(uow)
	if err != nil {
		_ = uow.Rollback(ctx)
		return zero, err
	}
	if err := uow.Commit(ctx); err != nil {
		_ = uow.Rollback(ctx)
		return zero, err
	}
	return out, nil
}
