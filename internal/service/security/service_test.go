package security_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/soulmate-hub/internal/db"
	"github.com/oggyb/soulmate-hub/internal/logger"
	"github.com/oggyb/soulmate-hub/internal/repository"
	"github.com/oggyb/soulmate-hub/internal/server"
	"github.com/oggyb/soulmate-hub/internal/service/access"
	"github.com/oggyb/soulmate-hub/internal/service/security"
	"github.com/oggyb/soulmate-hub/internal/testutil"
)

func dial(t *testing.T, monitor *access.Monitor) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := server.NewGRPCServer(logger.Discard(), security.NewRegistrar(monitor))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func method(name string) string { return "/" + security.ServiceName + "/" + name }

func TestSecurityService(t *testing.T) {
	ctx := context.Background()
	monitor := access.NewMonitor(10, repository.NewSecurityEventRepository(testutil.NewDB(t)), logger.Discard())
	for i := 0; i < 5; i++ {
		_ = monitor.Check(ctx, access.Request{ActorID: "mallory", ActorRole: db.RoleGold, Action: access.ActionDeleteUser, TargetID: "u"})
	}
	conn := dial(t, monitor)

	health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, health.GetStatus())

	report := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, method("GetReport"), &structpb.Struct{}, report))
	fields := report.GetFields()
	assert.Equal(t, float64(6), fields["total_events"].GetNumberValue())
	assert.Equal(t, float64(5), fields["denied_events"].GetNumberValue())
	assert.Equal(t, "mallory", fields["suspicious_users"].GetListValue().GetValues()[0].GetStringValue())

	req, err := structpb.NewStruct(map[string]any{"severity": "critical", "limit": 10})
	require.NoError(t, err)
	list := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, method("ListEvents"), req, list))
	events := list.GetFields()["events"].GetListValue().GetValues()
	require.Len(t, events, 1)
	assert.Equal(t, access.ActionSuspicious, events[0].GetStructValue().GetFields()["action"].GetStringValue())

	bad, err := structpb.NewStruct(map[string]any{"severity": "extreme"})
	require.NoError(t, err)
	err = conn.Invoke(ctx, method("ListEvents"), bad, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
