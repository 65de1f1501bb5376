package intercepters

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"github.com/atinyakov/shortlinks/internal/middleware"
)

type contextKey string

const RealIPKey contextKey = "real-ip"

// RealIPInterceptor stores the client address: the x-real-ip metadata set by
// a proxy, or else the transport peer.
func RealIPInterceptor(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	var ip string

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ips := md.Get("x-real-ip"); len(ips) > 0 {
			ip = strings.TrimSpace(ips[0])
		}
	}
	if ip == "" {
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			ip = middleware.RemoteHost(p.Addr.String())
		}
	}

	if ip != "" {
		ctx = context.WithValue(ctx, RealIPKey, ip)
	}
	return handler(ctx, req)
}

// RealIP returns the address stored by RealIPInterceptor.
func RealIP(ctx context.Context) string {
	ip, _ := ctx.Value(RealIPKey).(string)
	return ip
}
