package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// LedgerServiceName gRPCサービス名
const LedgerServiceName = "loyalty.v1.LedgerService"

// メソッドのフルネーム
const (
	MethodGetMember        = "/" + LedgerServiceName + "/GetMember"
	MethodApplyTransaction = "/" + LedgerServiceName + "/ApplyTransaction"
	MethodGetLedger        = "/" + LedgerServiceName + "/GetLedger"
	MethodVerifyLedger     = "/" + LedgerServiceName + "/VerifyLedger"
	MethodRedeem           = "/" + LedgerServiceName + "/Redeem"
	MethodGetRedemption    = "/" + LedgerServiceName + "/GetRedemption"
)

// AdminMethods APIキーが必要なメソッド
var AdminMethods = map[string]bool{
	MethodVerifyLedger: true,
}

// LedgerServiceServer 台帳サービスのサーバーインターフェース
// リクエストとレスポンスは google.protobuf.Struct で表現する
type LedgerServiceServer interface {
	GetMember(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApplyTransaction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetLedger(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyLedger(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Redeem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRedemption(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterLedgerServiceServer サーバーに台帳サービスを登録
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

type unaryMethod func(LedgerServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler 生成コードの _Service_Method_Handler に相当する
func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(LedgerServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// LedgerServiceDesc 台帳サービスの記述子
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: LedgerServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetMember", Handler: unaryHandler(MethodGetMember, LedgerServiceServer.GetMember)},
		{MethodName: "ApplyTransaction", Handler: unaryHandler(MethodApplyTransaction, LedgerServiceServer.ApplyTransaction)},
		{MethodName: "GetLedger", Handler: unaryHandler(MethodGetLedger, LedgerServiceServer.GetLedger)},
		{MethodName: "VerifyLedger", Handler: unaryHandler(MethodVerifyLedger, LedgerServiceServer.VerifyLedger)},
		{MethodName: "Redeem", Handler: unaryHandler(MethodRedeem, LedgerServiceServer.Redeem)},
		{MethodName: "GetRedemption", Handler: unaryHandler(MethodGetRedemption, LedgerServiceServer.GetRedemption)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "",
}
