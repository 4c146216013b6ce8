package middleware

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"example.com/payment-gateway/pkg/logger"
)

// Ключи gRPC metadata. Совпадают с HTTP заголовками X-Trace-ID / X-Correlation-ID.
const (
	TraceIDKey       = "x-trace-id"
	CorrelationIDKey = "x-correlation-id"
)

// TracingUnaryInterceptor переносит trace_id и correlation_id из metadata в context
// (через пакет logger), генерируя недостающие.
func TracingUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(extractTraceInfo(ctx), req)
	}
}

func extractTraceInfo(ctx context.Context) context.Context {
	traceID := firstMetadataValue(ctx, TraceIDKey)
	if traceID == "" {
		traceID = uuid.NewString()
	}

	correlationID := firstMetadataValue(ctx, CorrelationIDKey)
	if correlationID == "" {
		correlationID = traceID
	}

	return logger.NewContextWithIDs(ctx, traceID, correlationID)
}

func firstMetadataValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// InjectTraceMetadata кладет идентификаторы из context в исходящую metadata.
func InjectTraceMetadata(ctx context.Context) context.Context {
	md := metadata.Pairs(
		TraceIDKey, logger.TraceIDFromContext(ctx),
		CorrelationIDKey, logger.CorrelationIDFromContext(ctx),
	)
	if existing, ok := metadata.FromOutgoingContext(ctx); ok {
		md = metadata.Join(existing, md)
	}
	return metadata.NewOutgoingContext(ctx, md)
}
