// Package rpcserver implements the RemoteConnection gRPC service: the
// out-of-process surface over the connection manager's five
// operations, consumed by the reference CLI and web/Python clients.
//
// This repository carries no protoc-generated stubs. Wire messages are
// plain structs (see messages.go) marshaled through a custom
// encoding.Codec named "json" (see codec.go); the ServiceDesc below is
// hand-written in its place.
package rpcserver

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rechermann/puttygo/connid"
	"github.com/rechermann/puttygo/manager"
	"github.com/rechermann/puttygo/profile"
	"github.com/rechermann/puttygo/transport"
)

// ServiceName is the gRPC service name under which the methods below
// are registered, matching the reference client's
// RemoteConnectionStub.
const ServiceName = "putty_interface.RemoteConnection"

// Server implements the four RemoteConnection RPCs against a
// manager.Manager, optionally resolving a CreateRequest.Profile
// through a profile.Store.
type Server struct {
	mgr      *manager.Manager
	profiles *profile.Store
	logger   zerolog.Logger
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithProfileStore attaches a profile.Store used to resolve
// CreateRequest.Profile. Without one, a CreateRequest naming a profile
// always fails.
func WithProfileStore(store *profile.Store) Option {
	return func(s *Server) { s.profiles = store }
}

// WithLogger attaches a logger used for RPC-level events.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New constructs a Server fronting mgr.
func New(mgr *manager.Manager, opts ...Option) *Server {
	s := &Server{mgr: mgr, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches the RemoteConnection service to grpcServer.
func Register(grpcServer *grpc.Server, s *Server) {
	grpcServer.RegisterService(&serviceDesc, s)
}

func (s *Server) createRemoteConnection(ctx context.Context, req *CreateRequest) (*ConnectionId, error) {
	cfg, err := s.resolveConfig(req)
	if err != nil {
		return nil, err
	}

	id, err := s.mgr.AddConnection(cfg)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ConnectionId{Id: id.String()}, nil
}

func (s *Server) resolveConfig(req *CreateRequest) (transport.Config, error) {
	if req.Profile != "" {
		if s.profiles == nil {
			return transport.Config{}, status.Errorf(codes.FailedPrecondition, "no profile store configured")
		}
		cfg, ok := s.profiles.Get(req.Profile)
		if !ok {
			return transport.Config{}, status.Errorf(codes.NotFound, "unknown profile %q", req.Profile)
		}
		return cfg, nil
	}
	switch {
	case req.Serial != nil:
		return transport.Config{
			Kind:   transport.KindSerial,
			Serial: transport.SerialConfig{Port: req.Serial.Port, Baud: req.Serial.Baud},
		}, nil
	case req.Ssh != nil:
		return transport.Config{
			Kind: transport.KindSSH,
			SSH: transport.SSHConfig{
				Host:     req.Ssh.Host,
				Port:     uint16(req.Ssh.Port),
				User:     req.Ssh.User,
				Password: req.Ssh.Password,
			},
		}, nil
	default:
		return transport.Config{}, status.Errorf(codes.InvalidArgument, "request names neither serial, ssh, nor profile")
	}
}

func (s *Server) write(ctx context.Context, req *WriteRequest) (*Empty, error) {
	id, err := connid.Parse(req.Id)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid connection id: %v", err)
	}
	if err := s.mgr.WriteBytes(id, req.Data); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Server) stop(ctx context.Context, req *ConnectionId) (*Empty, error) {
	id, err := connid.Parse(req.Id)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid connection id: %v", err)
	}
	s.mgr.StopConnection(id)
	return &Empty{}, nil
}

func (s *Server) read(req *ConnectionId, stream grpc.ServerStream) error {
	id, err := connid.Parse(req.Id)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid connection id: %v", err)
	}
	sub, err := s.mgr.Subscribe(id)
	if err != nil {
		return toStatus(err)
	}
	defer s.mgr.Unsubscribe(id, sub)

	for chunk := range sub.Chunks() {
		if err := stream.SendMsg(&ByteChunk{Data: chunk}); err != nil {
			return err
		}
	}
	return nil
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if manager.IsNotFound(err) {
		return status.Error(codes.NotFound, err.Error())
	}
	if manager.IsClosed(err) {
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateRemoteConnection",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				req := new(CreateRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				s := srv.(*Server)
				if interceptor == nil {
					return s.createRemoteConnection(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: s, FullMethod: ServiceName + "/CreateRemoteConnection"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return s.createRemoteConnection(ctx, req.(*CreateRequest))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
		{
			MethodName: "Write",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				req := new(WriteRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				s := srv.(*Server)
				if interceptor == nil {
					return s.write(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: s, FullMethod: ServiceName + "/Write"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return s.write(ctx, req.(*WriteRequest))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
		{
			MethodName: "Stop",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				req := new(ConnectionId)
				if err := dec(req); err != nil {
					return nil, err
				}
				s := srv.(*Server)
				if interceptor == nil {
					return s.stop(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: s, FullMethod: ServiceName + "/Stop"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return s.stop(ctx, req.(*ConnectionId))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Read",
			Handler:       readStreamHandler,
			ServerStreams: true,
		},
	},
	Metadata: "putty_interface.proto",
}

func readStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(ConnectionId)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(*Server).read(req, stream)
}
