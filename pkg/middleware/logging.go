package middleware

import (
	"context"
	"path"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"example.com/payment-gateway/pkg/logger"
	"example.com/payment-gateway/pkg/metrics"
)

// LoggingUnaryInterceptor логирует каждый unary вызов и пишет метрики requests_total.
func LoggingUnaryInterceptor(service string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		method := path.Base(info.FullMethod)

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		code := status.Code(err)

		log := logger.Ctx(ctx)
		if err != nil && isServerFault(code) {
			log.Error().Err(err).
				Str("grpc_method", method).
				Str("grpc_code", code.String()).
				Dur("duration", duration).
				Msg("gRPC запрос завершился с ошибкой")
			metrics.RecordRequest(service, method, "error", duration)
			return resp, err
		}

		log.Info().
			Str("grpc_method", method).
			Str("grpc_code", code.String()).
			Dur("duration", duration).
			Msg("gRPC запрос обработан")
		metrics.RecordRequest(service, method, "success", duration)

		return resp, err
	}
}

// isServerFault — ошибки, за которые отвечает сервер, а не клиент.
func isServerFault(code codes.Code) bool {
	switch code {
	case codes.Internal, codes.Unknown, codes.Unavailable, codes.DeadlineExceeded, codes.DataLoss:
		return true
	default:
		return false
	}
}
