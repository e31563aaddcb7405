package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
)

// HeaderName carries the correlation id across HTTP hops.
const HeaderName = "X-Correlation-Id"

const maxInboundLength = 128

type correlationKey struct{}

// ExtractCorrelationID fetches a correlation ID from the context if present.
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(correlationKey{}).(string); ok {
		return val
	}
	return ""
}

// ContextWithCorrelationID sets the correlation ID onto the context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// Sanitize returns an inbound correlation id when it is short and made of
// visible ASCII, and "" otherwise. Gateways and callers control the header.
func Sanitize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxInboundLength {
		return ""
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '!' || raw[i] > '~' {
			return ""
		}
	}
	return raw
}

// EnsureCorrelationID guarantees a correlation ID on the context, generating one when missing.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	cid := ExtractCorrelationID(ctx)
	if cid == "" {
		cid = ulid.Make().String()
	}
	return ContextWithCorrelationID(ctx, cid), cid
}

// Detach returns a background context carrying the correlation id and span
// of ctx, for work that must outlive the request that started it.
func Detach(ctx context.Context) context.Context {
	out := context.Background()
	if cid := ExtractCorrelationID(ctx); cid != "" {
		out = ContextWithCorrelationID(out, cid)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		out = trace.ContextWithSpanContext(out, sc)
	}
	return out
}
