package instrument

import "context"

type clientAddressKey struct{}

// WithClientAddress annotates ctx with the calling client's network address.
// Transports set this where they know it; the wrapper reads it best-effort
// and never fabricates one.
func WithClientAddress(ctx context.Context, address string) context.Context {
	if address == "" {
		return ctx
	}
	return context.WithValue(ctx, clientAddressKey{}, address)
}

// ClientAddressFromContext returns the client address, if a transport set one.
func ClientAddressFromContext(ctx context.Context) string {
	address, _ := ctx.Value(clientAddressKey{}).(string)
	return address
}
