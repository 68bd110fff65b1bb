package gameserver

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/cory-johannsen/pokeduel/internal/auth"
	"github.com/cory-johannsen/pokeduel/internal/game/battle"
)

// AuthorizationHeader carries "Bearer <token>" on every authenticated call.
const AuthorizationHeader = "authorization"

var publicMethods = map[string]bool{
	FullMethod("Register"): true,
	FullMethod("Login"):    true,
}

type playerKey struct{}

// ContextWithPlayer returns ctx carrying the authenticated player.
func ContextWithPlayer(ctx context.Context, p battle.Player) context.Context {
	return context.WithValue(ctx, playerKey{}, p)
}

// PlayerFromContext returns the authenticated player, if any.
func PlayerFromContext(ctx context.Context) (battle.Player, bool) {
	p, ok := ctx.Value(playerKey{}).(battle.Player)
	return p, ok
}

// UnaryAuthInterceptor verifies the session token of every unary call except
// Register and Login and stores the player in the context.
func UnaryAuthInterceptor(tokens *auth.TokenIssuer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		ctx, err := authenticate(ctx, tokens)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor is the streaming counterpart of UnaryAuthInterceptor.
func StreamAuthInterceptor(tokens *auth.TokenIssuer) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), tokens)
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
	}
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }

func authenticate(ctx context.Context, tokens *auth.TokenIssuer) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get(AuthorizationHeader)
	if len(vals) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing authorization token")
	}
	raw, found := strings.CutPrefix(vals[0], "Bearer ")
	if !found {
		return nil, status.Error(codes.Unauthenticated, "authorization must be a bearer token")
	}
	claims, err := tokens.Verify(raw)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	return ContextWithPlayer(ctx, battle.Player{UID: claims.Subject, Name: claims.Username}), nil
}

// UnaryLoggingInterceptor logs each unary call with its status code and duration.
func UnaryLoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("duration", time.Since(start)),
		}
		if code == codes.Internal || code == codes.Unknown {
			logger.Error("rpc failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("rpc", fields...)
		}
		return resp, err
	}
}
