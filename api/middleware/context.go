package middleware

import "context"

type contextKey string

const ctxDeliveryID contextKey = "delivery_local_id"

// DeliveryIDFromContext returns the local id a verified delivery token was
// minted for.
func DeliveryIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxDeliveryID).(string); ok {
		return v
	}
	return ""
}

// WithDeliveryID injects the verified delivery id into the context.
func WithDeliveryID(ctx context.Context, localID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxDeliveryID, localID)
}

const ctxRequestID contextKey = "request_id"

// RequestIDFromContext returns the id RequestID assigned, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(ctxRequestID).(string)
	return v
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}
