package gameserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// BattleServiceName is the fully qualified gRPC service name.
const BattleServiceName = "pokeduel.v1.BattleService"

// FullMethod returns the gRPC method path for name.
func FullMethod(name string) string {
	return "/" + BattleServiceName + "/" + name
}

// BattleServiceServer is the server API for the battle service. Requests and
// responses are JSON objects carried as google.protobuf.Struct.
type BattleServiceServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateBattle(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitChoice(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitReplacement(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBattleView(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportReplay(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchBattle(*structpb.Struct, grpc.ServerStream) error
}

type unaryCall func(BattleServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BattleServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(BattleServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchBattleHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(BattleServiceServer).WatchBattle(in, stream)
}

// BattleServiceDesc describes the battle service for grpc.Server registration
// and for clients opening the WatchBattle stream.
var BattleServiceDesc = grpc.ServiceDesc{
	ServiceName: BattleServiceName,
	HandlerType: (*BattleServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Register", BattleServiceServer.Register),
		unaryHandler("Login", BattleServiceServer.Login),
		unaryHandler("CreateBattle", BattleServiceServer.CreateBattle),
		unaryHandler("SubmitChoice", BattleServiceServer.SubmitChoice),
		unaryHandler("SubmitReplacement", BattleServiceServer.SubmitReplacement),
		unaryHandler("GetBattleView", BattleServiceServer.GetBattleView),
		unaryHandler("ExportReplay", BattleServiceServer.ExportReplay),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchBattle",
			Handler:       watchBattleHandler,
			ServerStreams: true,
		},
	},
	Metadata: "pokeduel/v1/battle.proto",
}

// RegisterBattleServiceServer registers srv on s.
func RegisterBattleServiceServer(s grpc.ServiceRegistrar, srv BattleServiceServer) {
	s.RegisterService(&BattleServiceDesc, srv)
}
