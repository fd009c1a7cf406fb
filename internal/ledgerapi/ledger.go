// Package ledgerapi describes the internal Ledger gRPC service shared by the
// server and its callers (the billing scheduler and ppctl). Messages are
// google.protobuf.Struct values, so no generated code is needed.
package ledgerapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "profitpal.internal.Ledger"

const (
	MethodConsumeCreditOrCharge = "ConsumeCreditOrCharge"
	MethodReferralStats         = "ReferralStats"
	MethodGlobalStats           = "GlobalStats"
	MethodReconcile             = "Reconcile"
)

// FullMethod returns the wire name of a Ledger method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// LedgerServer is implemented by the server side.
type LedgerServer interface {
	ConsumeCreditOrCharge(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReferralStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GlobalStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reconcile(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type call func(LedgerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, fn call) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(LedgerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(LedgerServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodConsumeCreditOrCharge, LedgerServer.ConsumeCreditOrCharge),
		unary(MethodReferralStats, LedgerServer.ReferralStats),
		unary(MethodGlobalStats, LedgerServer.GlobalStats),
		unary(MethodReconcile, LedgerServer.Reconcile),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "profitpal/internal/ledger",
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// LedgerClient is a thin typed wrapper over a client connection.
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

// Call invokes method with the given request fields.
func (c *LedgerClient) Call(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
