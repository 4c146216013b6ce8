// Package middleware — gRPC interceptors сервера: recovery, trace/correlation id, логирование с метриками.
package middleware

import (
	"google.golang.org/grpc"
)

// UnaryServerChain возвращает interceptors в порядке применения:
// recovery должен быть внешним, чтобы перехватить панику в любом из следующих.
func UnaryServerChain(service string) grpc.ServerOption {
	return grpc.ChainUnaryInterceptor(
		RecoveryUnaryInterceptor(),
		TracingUnaryInterceptor(),
		LoggingUnaryInterceptor(service),
	)
}
