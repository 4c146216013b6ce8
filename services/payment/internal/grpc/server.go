package grpc

import (
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"example.com/payment-gateway/pkg/middleware"
)

// NewServer создает gRPC сервер с interceptors и зарегистрированным сервисом.
func NewServer(handler PaymentGatewayServer, serviceName string, maxConnectionIdle time.Duration) *grpc.Server {
	opts := []grpc.ServerOption{middleware.UnaryServerChain(serviceName)}
	if maxConnectionIdle > 0 {
		opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{MaxConnectionIdle: maxConnectionIdle}))
	}

	srv := grpc.NewServer(opts...)
	RegisterPaymentGatewayServer(srv, handler)
	reflection.Register(srv)
	return srv
}
