package authz

import "context"

type filterContextKey struct{}

// ContextWithFilter attaches the policy outcome's collection filter for the
// downstream handler.
func ContextWithFilter(ctx context.Context, f Filter) context.Context {
	return context.WithValue(ctx, filterContextKey{}, f)
}

// FilterFromContext returns the filter attached by the guard; ok is false
// on routes that declared no policy.
func FilterFromContext(ctx context.Context) (Filter, bool) {
	f, ok := ctx.Value(filterContextKey{}).(Filter)
	return f, ok
}
