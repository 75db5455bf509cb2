package switchboard

import "context"

type bindingKey struct{}

// WithBinding stores b in ctx.
func WithBinding(ctx context.Context, b *Binding) context.Context {
	return context.WithValue(ctx, bindingKey{}, b)
}

// FromContext returns the binding stored in ctx.
func FromContext(ctx context.Context) (*Binding, bool) {
	b, ok := ctx.Value(bindingKey{}).(*Binding)
	return b, ok && b != nil
}

// DBFromContext returns the tenant DB handle of the request.
func DBFromContext(ctx context.Context) (DB, error) {
	b, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoBinding
	}
	return b.DB()
}
