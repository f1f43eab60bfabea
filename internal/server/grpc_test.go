package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dragonvein/dragonvein-server-go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

type flakyPinger struct {
	down atomic.Bool
}

func (p *flakyPinger) Ping(context.Context) error {
	if p.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func servingStatus(t *testing.T, check func() (*healthpb.HealthCheckResponse, error)) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := check()
	require.NoError(t, err)
	return resp.Status
}

func TestWatchHealthFollowsPinger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, hs := NewGRPCServer(config.GRPCConfig{}, zaptest.NewLogger(t))
	pinger := &flakyPinger{}

	go WatchHealth(ctx, hs, pinger, 20*time.Millisecond, zaptest.NewLogger(t))

	check := func() (*healthpb.HealthCheckResponse, error) {
		return hs.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	}
	assert.Eventually(t, func() bool {
		return servingStatus(t, check) == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	pinger.down.Store(true)
	assert.Eventually(t, func() bool {
		return servingStatus(t, check) == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecoveryInterceptor(t *testing.T) {
	ic := RecoveryInterceptor(zaptest.NewLogger(t))
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err := ic(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestChainUnaryInterceptorsOrder(t *testing.T) {
	var order []string
	mark := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			order = append(order, name)
			return handler(ctx, req)
		}
	}
	chain := ChainUnaryInterceptors(mark("outer"), mark("inner"), LoggingInterceptor(zaptest.NewLogger(t)))

	resp, err := chain(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/x"}, func(ctx context.Context, req any) (any, error) {
		order = append(order, "handler")
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
