//go:build integration

// Run against a live server: go test -tags integration ./tests/integration
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"DriveGuard/go-backend/internal/detection"
	"DriveGuard/go-backend/internal/handlers"
	"DriveGuard/go-backend/internal/models"
	"DriveGuard/go-backend/internal/rpc"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const driverID = 4242

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func dial(t *testing.T) *rpc.MonitorClient {
	t.Helper()
	conn, err := grpc.NewClient(env("DRIVEGUARD_GRPC", "localhost:50051"), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("did not connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return rpc.NewMonitorClient(conn)
}

func post(t *testing.T, path string, body, out interface{}) {
	t.Helper()
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, env("DRIVEGUARD_HTTP", "http://localhost:8081")+path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handlers.DriverIDHeader, fmt.Sprint(driverID))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		t.Fatalf("POST %s: status %d", path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("POST %s: decode: %v", path, err)
		}
	}
}

func TestGRPCHealth(t *testing.T) {
	client := dial(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	status, err := client.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if got := status.GetFields()["status"].GetStringValue(); got != "healthy" {
		t.Errorf("Expected healthy, got %s", got)
	}
	t.Logf("Health: %v", status.AsMap())
}

func TestGRPCWatchDrowsyTrip(t *testing.T) {
	client := dial(t)

	var started models.StartTripResponse
	post(t, "/api/trips", models.StartTripRequest{StartLocation: "A", EndLocation: "B"}, &started)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx,
		handlers.TripIDMetadata, fmt.Sprint(started.TripID),
		handlers.DriverIDMetadata, fmt.Sprint(driverID),
	)
	stream, err := client.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	alerts := make(chan string, 8)
	go func() {
		defer close(alerts)
		for {
			msg, err := stream.Recv()
			if err != nil {
				return
			}
			if msg.GetFields()["type"].GetStringValue() == handlers.MsgAlert {
				alerts <- msg.GetFields()["alert_type"].GetStringValue()
			}
		}
	}()

	at := time.Now()
	for i := 0; i < detection.EARConsecFrames*2; i++ {
		at = at.Add(100 * time.Millisecond)
		lm := detection.Synthesize(0.1, 0.3, 640, 480, at)
		points := make([][2]float64, len(lm.Points))
		for j, p := range lm.Points {
			points[j] = [2]float64{p.X, p.Y}
		}
		msg, err := rpc.FrameToStruct(models.Frame{Width: lm.Width, Height: lm.Height, Points: points, Timestamp: at.UnixMilli()})
		if err != nil {
			t.Fatalf("encode frame: %v", err)
		}
		if err := stream.Send(msg); err != nil {
			t.Fatalf("send frame: %v", err)
		}
		// Pace the frames so none is dropped while the previous one is in flight.
		time.Sleep(50 * time.Millisecond)
	}

	select {
	case typ := <-alerts:
		if typ != "drowsy" {
			t.Errorf("Expected drowsy alert, got %q", typ)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no alert received")
	}
	stream.CloseSend()

	var ended models.EndTripResponse
	post(t, fmt.Sprintf("/api/trips/%d/end", started.TripID), models.EndTripRequest{}, &ended)
	if ended.Trip.AlertCount < 1 {
		t.Errorf("Expected at least one stored alert, got %d", ended.Trip.AlertCount)
	}
	t.Logf("Trip ended: score=%d points=%d", ended.Trip.SafetyScore, ended.Trip.PointsEarned)
}
