package gameserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/pokeduel/internal/auth"
	"github.com/cory-johannsen/pokeduel/internal/game/battle"
)

// Credential bounds.
const (
	minUsernameLen = 3
	maxUsernameLen = 32
	minPasswordLen = 8
	maxPasswordLen = 72
)

// BattleService implements BattleServiceServer on top of the battle handler
// and the account store.
type BattleService struct {
	battles  *BattleHandler
	accounts auth.Accounts
	tokens   *auth.TokenIssuer
	logger   *zap.Logger
}

// NewBattleService creates a BattleService.
//
// Precondition: every argument must be non-nil.
func NewBattleService(battles *BattleHandler, accounts auth.Accounts, tokens *auth.TokenIssuer, logger *zap.Logger) *BattleService {
	return &BattleService{battles: battles, accounts: accounts, tokens: tokens, logger: logger}
}

// NewGRPCServer builds a grpc.Server with logging and authentication
// interceptors and svc registered.
func NewGRPCServer(svc *BattleService, tokens *auth.TokenIssuer, logger *zap.Logger) *grpc.Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryLoggingInterceptor(logger), UnaryAuthInterceptor(tokens)),
		grpc.ChainStreamInterceptor(StreamAuthInterceptor(tokens)),
	)
	RegisterBattleServiceServer(s, svc)
	return s
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

type createBattleRequest struct {
	Players battle.Players `json:"players"`
	TeamA   []TeamMember   `json:"teamA"`
	TeamB   []TeamMember   `json:"teamB"`
}

type createBattleResponse struct {
	BattleID string `json:"battleId"`
}

type submitChoiceRequest struct {
	BattleID      string        `json:"battleId"`
	Turn          int           `json:"turn"`
	Action        battle.Action `json:"action"`
	ClientVersion int           `json:"clientVersion"`
}

type submitReplacementRequest struct {
	BattleID      string `json:"battleId"`
	Turn          int    `json:"turn"`
	SwitchIndex   int    `json:"switchIndex"`
	ClientVersion int    `json:"clientVersion"`
}

type battleRequest struct {
	BattleID string `json:"battleId"`
}

type acceptedResponse struct {
	Accepted bool `json:"accepted"`
}

// Register creates an account and returns a session token.
func (s *BattleService) Register(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req credentialsRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if err := checkCredentials(req); err != nil {
		return nil, err
	}
	acct, err := s.accounts.Create(ctx, req.Username, req.Password)
	if err != nil {
		return nil, s.statusFor(err)
	}
	s.logger.Info("account registered", zap.String("uid", acct.UID), zap.String("username", acct.Username))
	return s.session(acct)
}

// Login authenticates an account and returns a session token.
func (s *BattleService) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req credentialsRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	acct, err := s.accounts.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, s.statusFor(err)
	}
	return s.session(acct)
}

func (s *BattleService) session(acct auth.Account) (*structpb.Struct, error) {
	token, err := s.tokens.Issue(acct)
	if err != nil {
		return nil, s.statusFor(err)
	}
	return encodeResponse(sessionResponse{UID: acct.UID, Username: acct.Username, Token: token})
}

// CreateBattle starts a battle between the two listed players. The caller
// must be one of them.
func (s *BattleService) CreateBattle(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req createBattleRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	switch caller.UID {
	case req.Players.P1.UID:
		if req.Players.P1.Name == "" {
			req.Players.P1.Name = caller.Name
		}
	case req.Players.P2.UID:
		if req.Players.P2.Name == "" {
			req.Players.P2.Name = caller.Name
		}
	default:
		return nil, status.Error(codes.PermissionDenied, "caller must be one of the battle's players")
	}
	id, err := s.battles.CreateBattle(ctx, req.Players.P1, req.Players.P2, req.TeamA, req.TeamB)
	if err != nil {
		return nil, s.statusFor(err)
	}
	return encodeResponse(createBattleResponse{BattleID: id})
}

// SubmitChoice records the caller's action for the current turn.
func (s *BattleService) SubmitChoice(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req submitChoiceRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if err := s.battles.SubmitChoice(ctx, req.BattleID, req.Turn, caller.UID, req.Action, req.ClientVersion); err != nil {
		return nil, s.statusFor(err)
	}
	return encodeResponse(acceptedResponse{Accepted: true})
}

// SubmitReplacement records the caller's forced switch.
func (s *BattleService) SubmitReplacement(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req submitReplacementRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if err := s.battles.SubmitReplacement(ctx, req.BattleID, req.Turn, caller.UID, req.SwitchIndex, req.ClientVersion); err != nil {
		return nil, s.statusFor(err)
	}
	return encodeResponse(acceptedResponse{Accepted: true})
}

// GetBattleView returns the caller's view of a battle.
func (s *BattleService) GetBattleView(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req battleRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	view, err := s.battles.GetBattleView(ctx, req.BattleID, caller.UID)
	if err != nil {
		return nil, s.statusFor(err)
	}
	return encodeResponse(view)
}

// ExportReplay returns a battle's history to one of its participants.
func (s *BattleService) ExportReplay(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	caller, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req battleRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	replay, err := s.battles.ExportReplay(ctx, req.BattleID, caller.UID)
	if err != nil {
		return nil, s.statusFor(err)
	}
	return encodeResponse(replay)
}

// WatchBattle streams every change the caller may see until the client
// disconnects.
func (s *BattleService) WatchBattle(in *structpb.Struct, stream grpc.ServerStream) error {
	ctx := stream.Context()
	caller, err := callerFrom(ctx)
	if err != nil {
		return err
	}
	var req battleRequest
	if err := decodeRequest(in, &req); err != nil {
		return err
	}
	updates, err := s.battles.Watch(ctx, req.BattleID, caller.UID)
	if err != nil {
		return s.statusFor(err)
	}
	s.logger.Debug("watch opened", zap.String("battle_id", req.BattleID), zap.String("uid", caller.UID))
	for u := range updates {
		msg, err := encodeResponse(u)
		if err != nil {
			return err
		}
		if err := stream.SendMsg(msg); err != nil {
			return err
		}
	}
	return nil
}

func callerFrom(ctx context.Context) (battle.Player, error) {
	p, ok := PlayerFromContext(ctx)
	if !ok || p.UID == "" {
		return battle.Player{}, status.Error(codes.Unauthenticated, "no authenticated player")
	}
	return p, nil
}

func checkCredentials(req credentialsRequest) error {
	if n := len(req.Username); n < minUsernameLen || n > maxUsernameLen {
		return status.Errorf(codes.InvalidArgument, "username must be %d-%d characters", minUsernameLen, maxUsernameLen)
	}
	if n := len(req.Password); n < minPasswordLen || n > maxPasswordLen {
		return status.Errorf(codes.InvalidArgument, "password must be %d-%d characters", minPasswordLen, maxPasswordLen)
	}
	return nil
}

// decodeRequest converts a Struct request into v, rejecting unknown fields.
func decodeRequest(in *structpb.Struct, v any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "reading request: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	return nil
}

// encodeResponse converts v to a Struct through its JSON form.
func encodeResponse(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	return out, nil
}

// statusFor maps domain errors onto gRPC status codes. Unexpected errors are
// logged and reported as Internal without their detail.
func (s *BattleService) statusFor(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	var ve *battle.ValidationError
	var ref *battle.ReferenceDataError
	switch {
	case errors.As(err, &ve):
		return status.Error(kindCode(ve.Kind), err.Error())
	case isNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &ref):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, battle.ErrBattleExists), errors.Is(err, auth.ErrAccountExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, battle.ErrConcurrencyConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, auth.ErrAccountNotFound), errors.Is(err, auth.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, "invalid username or password")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	s.logger.Error("unexpected error", zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}

func kindCode(k battle.ErrorKind) codes.Code {
	switch k {
	case battle.KindStaleVersion:
		return codes.Aborted
	case battle.KindWrongPhase:
		return codes.FailedPrecondition
	case battle.KindUnauthenticated:
		return codes.Unauthenticated
	case battle.KindNotParticipant:
		return codes.PermissionDenied
	}
	return codes.InvalidArgument
}
