// Package grpc serves the shortener over gRPC.
package grpc

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/atinyakov/shortlinks/internal/app/service"
	"github.com/atinyakov/shortlinks/internal/intercepters"
	"github.com/atinyakov/shortlinks/internal/middleware"
	"github.com/atinyakov/shortlinks/internal/storage"
)

// Server wraps the gRPC server and dependencies.
type Server struct {
	grpcServer *grpc.Server
	addr       string
	logger     *zap.Logger
}

// New creates a gRPC server. Resolve is reachable without a token, like
// the HTTP redirect.
func New(addr string, logger *zap.Logger, svc service.URLServiceIface, auth service.AuthIface) *Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			logging.UnaryServerInterceptor(intercepters.InterceptorLogger(logger)),
			intercepters.RealIPInterceptor,
			intercepters.WithJWT(auth, ResolveMethod),
		),
	)

	s.RegisterService(&ShortenerServiceDesc, &ShortenerService{
		Service: svc,
		Logger:  logger,
	})

	return &Server{
		grpcServer: s,
		addr:       addr,
		logger:     logger,
	}
}

// Start listens on the configured address and serves until stopped.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.logger.Error("gRPC server failed to listen", zap.Error(err))
		return err
	}

	return s.Serve(lis)
}

// Serve serves on an existing listener.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))

	err := s.grpcServer.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// GracefulStop shuts down the server gracefully.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}

// ShortenerService implements ShortenerServer on top of the URL service.
type ShortenerService struct {
	Service service.URLServiceIface
	Logger  *zap.Logger
}

var _ ShortenerServer = (*ShortenerService)(nil)

func (s *ShortenerService) Shorten(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "user ID missing in context")
	}

	fields := req.GetFields()
	destination := fields["destination"].GetStringValue()
	if destination == "" {
		return nil, status.Error(codes.InvalidArgument, "destination is required")
	}

	m, err := s.Service.Shorten(ctx, destination, userID, fields["custom_code"].GetStringValue())
	if err != nil {
		return nil, s.toStatus(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"code":      m.Code,
		"short_url": s.Service.ShortURL(m.Code),
	})
}

func (s *ShortenerService) Resolve(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	destination, err := s.Service.Resolve(ctx, req.GetValue(), service.Visit{
		SourceAddress:    intercepters.RealIP(ctx),
		ClientDescriptor: "grpc",
	})
	if err != nil {
		return nil, s.toStatus(err)
	}

	return wrapperspb.String(destination), nil
}

func (s *ShortenerService) ListMappings(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "user ID missing in context")
	}

	mappings, err := s.Service.ListByOwner(ctx, userID)
	if err != nil {
		return nil, s.toStatus(err)
	}

	items := lo.Map(mappings, func(m storage.Mapping, _ int) interface{} {
		return map[string]interface{}{
			"code":         m.Code,
			"short_url":    s.Service.ShortURL(m.Code),
			"original_url": m.Destination,
			"custom":       m.Custom,
			"created_at":   m.CreatedAt.UTC().Format(time.RFC3339),
		}
	})

	return structpb.NewStruct(map[string]interface{}{"items": items})
}

func (s *ShortenerService) toStatus(err error) error {
	switch {
	case errors.Is(err, service.ErrCustomCodeBlacklisted):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrCustomCodeTaken):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, storage.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, "link not found")
	case errors.Is(err, service.ErrGenerationExhausted):
		return status.Error(codes.Unavailable, "temporarily unable to create a link, please retry")
	default:
		s.Logger.Error("grpc call failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}
