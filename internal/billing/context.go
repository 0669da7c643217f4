package billing

import "context"

type cashierContextKey struct{}

// WithCashier records the user ringing up sales made with ctx.
func WithCashier(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, cashierContextKey{}, userID)
}

func CashierFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(cashierContextKey{}).(int64)
	return id, ok
}
