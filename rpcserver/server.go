package rpcserver

import (
	"context"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/rechermann/puttygo/manager"
	"github.com/rechermann/puttygo/profile"
)

// Listen builds a *grpc.Server bound to the RemoteConnection service
// fronting mgr and serves it on addr until ctx is done or the server
// errors. It forces every call onto the package's "json" codec,
// regardless of what content-subtype a client requests.
func Listen(ctx context.Context, addr string, mgr *manager.Manager, store *profile.Store, logger zerolog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer lis.Close()

	grpcServer := grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	Register(grpcServer, New(mgr, WithProfileStore(store), WithLogger(logger)))

	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	logger.Info().Str("addr", addr).Msg("rpcserver: listening")
	if err := grpcServer.Serve(lis); err != nil {
		return err
	}
	return ctx.Err()
}
