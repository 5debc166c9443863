package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"DriveGuard/go-backend/internal/detection"
	"DriveGuard/go-backend/internal/rpc"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type wsEnvelope struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	ClientID string          `json:"client_id"`
}

func (env *testEnv) dialTrip(t *testing.T, tripID, driver int64) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := fmt.Sprintf("ws%s/ws?trip_id=%d&driver_id=%d", strings.TrimPrefix(env.srv.URL, "http"), tripID, driver)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readUntil(t *testing.T, conn *websocket.Conn, want ...string) map[string]wsEnvelope {
	t.Helper()
	seen := make(map[string]wsEnvelope)
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for len(seen) < len(want) {
		var msg wsEnvelope
		require.NoError(t, conn.ReadJSON(&msg))
		for _, w := range want {
			if msg.Type == w {
				seen[w] = msg
			}
		}
	}
	return seen
}

func TestWebSocket_DetectsDrowsiness(t *testing.T) {
	env := newTestEnv(t)
	tripID := env.startTrip(t, 5)

	conn, _, err := env.dialTrip(t, tripID, 5)
	require.NoError(t, err)

	welcome := readUntil(t, conn, MsgWelcome)[MsgWelcome]
	assert.NotEmpty(t, welcome.ClientID)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": MsgPing}))
	readUntil(t, conn, MsgPong)

	m, ok := env.registry.Get(tripID)
	require.True(t, ok)

	start := time.Now()
	for i := 1; i <= detection.EARConsecFrames; i++ {
		lm := detection.Synthesize(0.1, 0.3, 640, 480, start.Add(time.Duration(i)*100*time.Millisecond))
		require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": MsgFrame, "payload": framePayload(lm)}))
		// One frame in flight at a time, otherwise the queue drops it.
		n := i
		require.Eventually(t, func() bool { return m.Summary().FramesProcessed == n }, 2*time.Second, 5*time.Millisecond)
	}

	seen := readUntil(t, conn, MsgAlert, MsgAlarm)
	var alert struct {
		AlertType string `json:"alert_type"`
		Count     int    `json:"recent_alert_count"`
	}
	require.NoError(t, json.Unmarshal(seen[MsgAlert].Payload, &alert))
	assert.Equal(t, "drowsy", alert.AlertType)
	assert.Equal(t, 1, alert.Count)

	var alarm struct {
		On bool `json:"on"`
	}
	require.NoError(t, json.Unmarshal(seen[MsgAlarm].Payload, &alarm))
	assert.True(t, alarm.On)

	require.Eventually(t, func() bool {
		records, _ := env.alerts.ListByTrip(context.Background(), tripID)
		return len(records) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWebSocket_RejectsBadFrames(t *testing.T) {
	env := newTestEnv(t)
	tripID := env.startTrip(t, 5)

	conn, _, err := env.dialTrip(t, tripID, 5)
	require.NoError(t, err)
	readUntil(t, conn, MsgWelcome)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": MsgFrame, "payload": map[string]int{"width": 0, "height": 0}}))
	errMsg := readUntil(t, conn, MsgError)[MsgError]
	assert.Contains(t, string(errMsg.Payload), "frame_rejected")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "HELLO"}))
	errMsg = readUntil(t, conn, MsgError)[MsgError]
	assert.Contains(t, string(errMsg.Payload), "unknown_type")
}

func TestWebSocket_RefusesInactiveTrips(t *testing.T) {
	env := newTestEnv(t)
	tripID := env.startTrip(t, 5)

	_, resp, err := env.dialTrip(t, 999, 5)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = env.dialTrip(t, tripID, 6)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	env.do(t, http.MethodPost, fmt.Sprintf("/api/trips/%d/end", tripID), 5, nil)
	_, resp, err = env.dialTrip(t, tripID, 5)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestWebSocket_ClosedWhenTripEnds(t *testing.T) {
	env := newTestEnv(t)
	tripID := env.startTrip(t, 5)

	conn, _, err := env.dialTrip(t, tripID, 5)
	require.NoError(t, err)
	readUntil(t, conn, MsgWelcome)

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/trips/%d/end", tripID), 5, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg wsEnvelope
		if err := conn.ReadJSON(&msg); err != nil {
			var ne net.Error
			if errors.As(err, &ne) {
				assert.False(t, ne.Timeout(), "connection should be closed by the server")
			}
			return
		}
	}
}

func newMonitorClient(t *testing.T, env *testEnv) *rpc.MonitorClient {
	t.Helper()
	client, _ := newMonitorServer(t, env)
	return client
}

func newMonitorServer(t *testing.T, env *testEnv) (*rpc.MonitorClient, *grpc.Server) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	rpc.RegisterMonitorServer(srv, NewGRPCHandler(env.api))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return rpc.NewMonitorClient(conn), srv
}

func watchContext(tripID, driver int64) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	return metadata.AppendToOutgoingContext(ctx,
		TripIDMetadata, fmt.Sprint(tripID),
		DriverIDMetadata, fmt.Sprint(driver),
	), cancel
}

func recvType(t *testing.T, stream rpc.MonitorWatchClient, want string) *structpb.Struct {
	t.Helper()
	for {
		msg, err := stream.Recv()
		require.NoError(t, err)
		if msg.GetFields()["type"].GetStringValue() == want {
			return msg
		}
	}
}

func TestGRPC_WatchDetectsYawn(t *testing.T) {
	env := newTestEnv(t)
	client := newMonitorClient(t, env)
	tripID := env.startTrip(t, 8)

	ctx, cancel := watchContext(tripID, 8)
	defer cancel()
	stream, err := client.Watch(ctx)
	require.NoError(t, err)

	welcome := recvType(t, stream, MsgWelcome)
	assert.EqualValues(t, tripID, welcome.GetFields()["trip_id"].GetNumberValue())

	m, ok := env.registry.Get(tripID)
	require.True(t, ok)

	start := time.Now()
	for i := 1; i <= detection.YawnConsecFrames; i++ {
		lm := detection.Synthesize(0.3, 0.9, 640, 480, start.Add(time.Duration(i)*100*time.Millisecond))
		msg, err := rpc.FrameToStruct(framePayload(lm))
		require.NoError(t, err)
		require.NoError(t, stream.Send(msg))
		n := i
		require.Eventually(t, func() bool { return m.Summary().FramesProcessed == n }, 2*time.Second, 5*time.Millisecond)
	}

	alert := recvType(t, stream, MsgAlert)
	assert.Equal(t, "yawn", alert.GetFields()["alert_type"].GetStringValue())

	require.NoError(t, stream.CloseSend())
	_, err = stream.Recv()
	assert.Error(t, err)
	assert.Equal(t, 1, m.Summary().YawnCount)
}

func TestGRPC_WatchEndsWithTrip(t *testing.T) {
	env := newTestEnv(t)
	client := newMonitorClient(t, env)
	tripID := env.startTrip(t, 8)

	ctx, cancel := watchContext(tripID, 8)
	defer cancel()
	stream, err := client.Watch(ctx)
	require.NoError(t, err)
	recvType(t, stream, MsgWelcome)

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/trips/%d/end", tripID), 8, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for {
		_, err := stream.Recv()
		if err != nil {
			assert.Equal(t, codes.Aborted, status.Code(err))
			return
		}
	}
}

func TestGRPC_WatchRejectsBadMetadata(t *testing.T) {
	env := newTestEnv(t)
	client := newMonitorClient(t, env)
	tripID := env.startTrip(t, 8)

	tests := []struct {
		name string
		ctx  func() (context.Context, context.CancelFunc)
		want codes.Code
	}{
		{"no metadata", func() (context.Context, context.CancelFunc) {
			return context.WithTimeout(context.Background(), 5*time.Second)
		}, codes.InvalidArgument},
		{"no driver", func() (context.Context, context.CancelFunc) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			return metadata.AppendToOutgoingContext(ctx, TripIDMetadata, fmt.Sprint(tripID)), cancel
		}, codes.Unauthenticated},
		{"other driver", func() (context.Context, context.CancelFunc) { return watchContext(tripID, 9) }, codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.ctx()
			defer cancel()
			stream, err := client.Watch(ctx)
			require.NoError(t, err)
			_, err = stream.Recv()
			assert.Equal(t, tt.want, status.Code(err))
		})
	}
}

func TestGRPC_Health(t *testing.T) {
	env := newTestEnv(t)
	client := newMonitorClient(t, env)
	env.startTrip(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.Health(ctx)
	require.NoError(t, err)

	fields := resp.GetFields()
	assert.Equal(t, "healthy", fields["status"].GetStringValue())
	assert.True(t, fields["database"].GetBoolValue())
	assert.False(t, fields["landmark_service"].GetBoolValue())
	assert.EqualValues(t, 1, fields["active_trips"].GetNumberValue())
}

func TestGRPC_StopAllReleasesGracefulStop(t *testing.T) {
	env := newTestEnv(t)
	client, srv := newMonitorServer(t, env)
	tripID := env.startTrip(t, 8)

	ctx, cancel := watchContext(tripID, 8)
	defer cancel()
	stream, err := client.Watch(ctx)
	require.NoError(t, err)
	recvType(t, stream, MsgWelcome)

	env.registry.StopAll()

	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("GracefulStop still waiting on the watch stream")
	}
}
