package middleware

import (
	"context"
	"runtime/debug"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"example.com/payment-gateway/pkg/logger"
)

// RecoveryUnaryInterceptor превращает панику обработчика в codes.Internal.
// Детали паники клиенту не отдаются.
func RecoveryUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Ctx(ctx).Error().
					Str("grpc_method", info.FullMethod).
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("Перехвачена паника в gRPC handler")

				err = status.Error(codes.Internal, "внутренняя ошибка сервера")
			}
		}()

		return handler(ctx, req)
	}
}
