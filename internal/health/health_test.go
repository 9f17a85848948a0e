package health

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	reflectionpb "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"

	"github.com/manifest-network/chainview/internal/metrics"
	"github.com/manifest-network/chainview/internal/reconciler"
)

func startServer(t *testing.T) (*Server, *grpc.ClientConn) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewServer()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv, conn
}

func check(t *testing.T, conn *grpc.ClientConn, service string) *healthpb.HealthCheckResponse {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp
}

func TestHealthFollowsReconciler(t *testing.T) {
	srv, conn := startServer(t)

	serving := &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}
	notServing := &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}

	assert.True(t, proto.Equal(serving, check(t, conn, "")))
	assert.True(t, proto.Equal(notServing, check(t, conn, ReconcilerService)))

	cases := []struct {
		name   string
		result reconciler.Result
		want   *healthpb.HealthCheckResponse
	}{
		{name: "demo pass", result: reconciler.Result{Mode: metrics.ModeDemo}, want: serving},
		{name: "live failure", result: reconciler.Result{Mode: metrics.ModeLive, Err: errors.New("down")}, want: notServing},
		{name: "live partial", result: reconciler.Result{Mode: metrics.ModeLive, Failures: 2}, want: serving},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv.ObservePass(tc.result)
			assert.Equal(t, tc.want.GetStatus(), srv.Status())
			assert.True(t, proto.Equal(tc.want, check(t, conn, ReconcilerService)))
		})
	}
}

func TestReflectionListsHealth(t *testing.T) {
	_, conn := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := reflectionpb.NewServerReflectionClient(conn).ServerReflectionInfo(ctx)
	require.NoError(t, err)
	require.NoError(t, stream.Send(&reflectionpb.ServerReflectionRequest{
		MessageRequest: &reflectionpb.ServerReflectionRequest_ListServices{ListServices: "*"},
	}))
	resp, err := stream.Recv()
	require.NoError(t, err)
	require.NoError(t, stream.CloseSend())

	var names []string
	for _, svc := range resp.GetListServicesResponse().GetService() {
		names = append(names, svc.GetName())
	}
	assert.Contains(t, names, healthpb.Health_ServiceDesc.ServiceName)
}
