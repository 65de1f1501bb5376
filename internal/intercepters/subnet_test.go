package intercepters

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

func TestRealIPInterceptor(t *testing.T) {
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return RealIP(ctx), nil
	}

	withPeer := peer.NewContext(context.Background(), &peer.Peer{
		Addr: &net.TCPAddr{IP: net.ParseIP("198.51.100.4"), Port: 5555},
	})

	tests := []struct {
		name   string
		ctx    context.Context
		wantIP string
	}{
		{
			name:   "with x-real-ip metadata",
			ctx:    metadata.NewIncomingContext(withPeer, metadata.Pairs("x-real-ip", "192.168.1.100")),
			wantIP: "192.168.1.100",
		},
		{
			name:   "empty x-real-ip falls back to peer",
			ctx:    metadata.NewIncomingContext(withPeer, metadata.Pairs("x-real-ip", "")),
			wantIP: "198.51.100.4",
		},
		{
			name:   "peer only",
			ctx:    withPeer,
			wantIP: "198.51.100.4",
		},
		{
			name:   "nothing known",
			ctx:    context.Background(),
			wantIP: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := RealIPInterceptor(tt.ctx, nil, &grpc.UnaryServerInfo{
				FullMethod: "/test.TestMethod",
			}, handler)
			if err != nil {
				t.Fatalf("Interceptor returned error: %v", err)
			}
			gotIP, _ := resp.(string)
			if gotIP != tt.wantIP {
				t.Errorf("got IP = %q, want %q", gotIP, tt.wantIP)
			}
		})
	}
}
