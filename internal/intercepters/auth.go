package intercepters

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/atinyakov/shortlinks/internal/app/service"
	"github.com/atinyakov/shortlinks/internal/middleware"
)

// WithJWT authenticates calls from the "authorization" metadata. A caller
// without a token gets a fresh anonymous identity, returned in the
// "new-token" trailer. Methods listed in public skip authentication.
func WithJWT(auth service.AuthIface, public ...string) grpc.UnaryServerInterceptor {
	skip := make(map[string]struct{}, len(public))
	for _, m := range public {
		skip[m] = struct{}{}
	}

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if _, ok := skip[info.FullMethod]; ok {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		authHeader := md.Get("authorization")
		if len(authHeader) == 0 {
			token, generatedID, err := auth.BuildJWTString()
			if err != nil {
				return nil, status.Error(codes.Internal, "failed to issue token")
			}
			_ = grpc.SetTrailer(ctx, metadata.Pairs("new-token", token))

			return handler(withCaller(ctx, generatedID, false), req)
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader[0], "Bearer "))
		claims, err := auth.ParseRawJWT(tokenString)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		return handler(withCaller(ctx, claims.UserID, claims.Admin), req)
	}
}

func withCaller(ctx context.Context, userID string, admin bool) context.Context {
	ctx = context.WithValue(ctx, middleware.UserIDKey, userID)
	return context.WithValue(ctx, middleware.AdminKey, admin)
}
