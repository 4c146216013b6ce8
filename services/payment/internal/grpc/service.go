// Package grpc — gRPC сервис payment.v1.PaymentGatewayService.
//
// Сообщения передаются как google.protobuf.Struct: поля запроса и ответа
// совпадают по именам с JSON REST API.
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName — полное имя сервиса.
const ServiceName = "payment.v1.PaymentGatewayService"

// Полные имена методов.
const (
	MethodProcessPayment     = "/" + ServiceName + "/ProcessPayment"
	MethodGetPayment         = "/" + ServiceName + "/GetPayment"
	MethodValidateCreditCard = "/" + ServiceName + "/ValidateCreditCard"
	MethodGetCardType        = "/" + ServiceName + "/GetCardType"
)

// PaymentGatewayServer — серверная часть сервиса.
type PaymentGatewayServer interface {
	ProcessPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ValidateCreditCard(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetCardType(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv PaymentGatewayServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// ServiceDesc — описание сервиса для grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PaymentGatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ProcessPayment", Handler: unaryHandler(MethodProcessPayment, PaymentGatewayServer.ProcessPayment)},
		{MethodName: "GetPayment", Handler: unaryHandler(MethodGetPayment, PaymentGatewayServer.GetPayment)},
		{MethodName: "ValidateCreditCard", Handler: unaryHandler(MethodValidateCreditCard, PaymentGatewayServer.ValidateCreditCard)},
		{MethodName: "GetCardType", Handler: unaryHandler(MethodGetCardType, PaymentGatewayServer.GetCardType)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "payment/v1/payment_gateway.proto",
}

// RegisterPaymentGatewayServer регистрирует реализацию на сервере.
func RegisterPaymentGatewayServer(s grpc.ServiceRegistrar, srv PaymentGatewayServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PaymentGatewayServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PaymentGatewayServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client — клиент сервиса.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient создает клиента поверх соединения.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) ProcessPayment(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodProcessPayment, in, opts...)
}

func (c *Client) GetPayment(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetPayment, in, opts...)
}

func (c *Client) ValidateCreditCard(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodValidateCreditCard, in, opts...)
}

func (c *Client) GetCardType(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetCardType, in, opts...)
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
