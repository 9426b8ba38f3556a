// Package rpc exposes supervisor control over gRPC. Messages are
// google.protobuf.Struct values so the service needs no generated code.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/TheGojiOG/vuserver/internal/auth"
	"github.com/TheGojiOG/vuserver/internal/console"
	"github.com/TheGojiOG/vuserver/internal/rcon"
	"github.com/TheGojiOG/vuserver/internal/server"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "vuserver.Control"

// Controller is the supervisor surface exposed over gRPC.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Restart(ctx context.Context) error
	Snapshot() server.Snapshot
	CanSendCommands() bool
	SendCommand(ctx context.Context, words []string) ([]string, error)
}

// TokenValidator validates bearer tokens from the authorization metadata.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// CommandRecorder persists commands executed over gRPC.
type CommandRecorder interface {
	LogCommandExecute(actor, command string, response []string, cmdErr error) error
}

// ControlServer is the handler interface registered for ServiceName.
type ControlServer interface {
	Status(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Start(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Stop(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Restart(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Command(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(ControlServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodDesc(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			cs := srv.(ControlServer)
			if interceptor == nil {
				return call(cs, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(cs, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes the control service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc("Status", ControlServer.Status),
		methodDesc("Start", ControlServer.Start),
		methodDesc("Stop", ControlServer.Stop),
		methodDesc("Restart", ControlServer.Restart),
		methodDesc("Command", ControlServer.Command),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vuserver/control",
}

// Service implements ControlServer on top of a Controller.
type Service struct {
	ctrl     Controller
	recorder CommandRecorder
}

// NewService creates the control service. recorder may be nil.
func NewService(ctrl Controller, recorder CommandRecorder) *Service {
	return &Service{ctrl: ctrl, recorder: recorder}
}

// Status returns the supervisor snapshot.
func (s *Service) Status(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return snapshotStruct(s.ctrl.Snapshot())
}

// Start launches the server.
func (s *Service) Start(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ctrl.Start(ctx); err != nil {
		return nil, lifecycleStatus(err)
	}
	return snapshotStruct(s.ctrl.Snapshot())
}

// Stop kills the server.
func (s *Service) Stop(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ctrl.Stop(); err != nil {
		return nil, lifecycleStatus(err)
	}
	return snapshotStruct(s.ctrl.Snapshot())
}

// Restart stops and starts the server.
func (s *Service) Restart(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ctrl.Restart(ctx); err != nil {
		return nil, lifecycleStatus(err)
	}
	return snapshotStruct(s.ctrl.Snapshot())
}

// Command sends one RCON command. The request carries either "command",
// a single line split like console input, or "words".
func (s *Service) Command(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	words, err := requestWords(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if !s.ctrl.CanSendCommands() {
		return nil, status.Error(codes.FailedPrecondition, "RCON unavailable")
	}

	response, err := s.ctrl.SendCommand(ctx, words)
	if s.recorder != nil {
		actor := "rpc"
		if username := UsernameFromContext(ctx); username != "" {
			actor = "rpc:" + username
		}
		if recErr := s.recorder.LogCommandExecute(actor, strings.Join(words, " "), response, err); recErr != nil {
			log.Printf("[RPC] Failed to record command: %v", recErr)
		}
	}
	if err != nil {
		return nil, commandStatus(err)
	}

	list := make([]interface{}, len(response))
	for i, w := range response {
		list[i] = w
	}
	return structpb.NewStruct(map[string]interface{}{"response": list})
}

func requestWords(in *structpb.Struct) ([]string, error) {
	fields := in.GetFields()
	if v, ok := fields["words"]; ok {
		var words []string
		for _, w := range v.GetListValue().GetValues() {
			words = append(words, w.GetStringValue())
		}
		if len(words) == 0 || words[0] == "" {
			return nil, console.ErrEmptyCommand
		}
		return words, nil
	}

	command, err := console.SanitizeCommand(fields["command"].GetStringValue())
	if err != nil {
		return nil, err
	}
	words := rcon.SplitWords(command)
	if len(words) == 0 {
		return nil, console.ErrEmptyCommand
	}
	return words, nil
}

func snapshotStruct(snap server.Snapshot) (*structpb.Struct, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return structpb.NewStruct(m)
}

func lifecycleStatus(err error) error {
	var launchErr *server.LaunchError
	switch {
	case errors.Is(err, server.ErrAlreadyRunning), errors.Is(err, server.ErrNotRunning):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, server.ErrShutdown):
		return status.Error(codes.Unavailable, err.Error())
	case errors.As(err, &launchErr):
		return status.Error(codes.Internal, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}

func commandStatus(err error) error {
	var reqErr *rcon.RequestError
	switch {
	case errors.As(err, &reqErr):
		return status.Error(codes.Aborted, reqErr.Error())
	case errors.Is(err, rcon.ErrNotOpen), errors.Is(err, rcon.ErrClosed), errors.Is(err, server.ErrControlLinkUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}

type usernameKey struct{}

// UsernameFromContext returns the authenticated caller, if any.
func UsernameFromContext(ctx context.Context) string {
	username, _ := ctx.Value(usernameKey{}).(string)
	return username
}

// AuthInterceptor rejects calls without a valid token in the
// authorization metadata.
func AuthInterceptor(validator TokenValidator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "authorization token required")
		}

		token := strings.TrimSpace(strings.TrimPrefix(values[0], "Bearer "))
		claims, err := validator.Validate(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		}
		return handler(context.WithValue(ctx, usernameKey{}, claims.Username), req)
	}
}

// Server serves the control service.
type Server struct {
	grpc *grpc.Server
}

// NewServer creates a gRPC server for svc. A nil validator disables auth.
func NewServer(svc *Service, validator TokenValidator) *Server {
	var opts []grpc.ServerOption
	if validator != nil {
		opts = append(opts, grpc.UnaryInterceptor(AuthInterceptor(validator)))
	}
	gs := grpc.NewServer(opts...)
	gs.RegisterService(&ServiceDesc, svc)
	return &Server{grpc: gs}
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	log.Printf("[RPC] Control service listening on %s", lis.Addr())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("rpc serve: %w", err)
	}
	return nil
}

// Stop waits for in-flight calls and closes all listeners.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}
