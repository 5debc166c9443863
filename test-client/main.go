package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"DriveGuard/go-backend/internal/detection"
	"DriveGuard/go-backend/internal/handlers"
	"DriveGuard/go-backend/internal/models"
	"DriveGuard/go-backend/internal/rpc"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// Frames per second of the simulated camera.
const fps = 10

var (
	backendURL = flag.String("backend", "http://localhost:8081", "REST and websocket base URL")
	grpcAddr   = flag.String("grpc", "", "stream frames over gRPC to this address instead of the websocket")
	driverID   = flag.Int64("driver", 1, "driver id sent in "+handlers.DriverIDHeader)
	episodes   = flag.Int("episodes", 5, "number of eyes-closed episodes to simulate")
)

type client struct {
	http *http.Client
}

func (c *client) call(method, path string, body, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, *backendURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handlers.DriverIDHeader, fmt.Sprint(*driverID))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d, body: %s", method, path, resp.StatusCode, raw)
	}
	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}

func (c *client) health() error {
	fmt.Println("\n[TEST] /api/health")
	var h models.HealthStatus
	if err := c.call(http.MethodGet, "/api/health", nil, &h); err != nil {
		return err
	}
	fmt.Printf("✓ status=%s database=%v redis=%v landmark_service=%v\n", h.Status, h.Database, h.Redis, h.LandmarkService)
	return nil
}

func (c *client) addContact() error {
	fmt.Println("\n[TEST] /api/contacts (POST)")
	var contact models.EmergencyContact
	err := c.call(http.MethodPost, "/api/contacts", models.CreateContactRequest{
		Name:  "Test Contact",
		Email: "contact@example.com",
	}, &contact)
	if err != nil {
		return err
	}
	fmt.Printf("✓ contact %d (%s)\n", contact.ID, contact.NotificationType)
	return nil
}

func (c *client) startTrip() (int64, error) {
	fmt.Println("\n[TEST] /api/trips (POST)")
	var started models.StartTripResponse
	err := c.call(http.MethodPost, "/api/trips", models.StartTripRequest{StartLocation: "Home", EndLocation: "Office"}, &started)
	if err != nil {
		return 0, err
	}
	fmt.Printf("✓ trip %d started\n", started.TripID)
	return started.TripID, nil
}

func (c *client) endTrip(tripID int64, duration time.Duration) error {
	fmt.Println("\n[TEST] /api/trips/{id}/end")
	var ended models.EndTripResponse
	err := c.call(http.MethodPost, fmt.Sprintf("/api/trips/%d/end", tripID),
		models.EndTripRequest{DurationSeconds: int(duration.Seconds())}, &ended)
	if err != nil {
		return err
	}
	fmt.Printf("✓ alerts=%d yawns=%d score=%d points=%d total=%d\n",
		ended.Trip.AlertCount, ended.Trip.YawnCount, ended.Trip.SafetyScore, ended.Trip.PointsEarned, ended.TotalPoints)
	for _, b := range ended.NewBadges {
		fmt.Printf("  badge earned: %s (+%d)\n", b.Name, b.PointsReward)
	}
	return nil
}

func (c *client) rewards() error {
	fmt.Println("\n[TEST] /api/rewards")
	var rw models.RewardsResponse
	if err := c.call(http.MethodGet, "/api/rewards", nil, &rw); err != nil {
		return err
	}
	fmt.Printf("✓ points=%d trips=%d badges=%d\n", rw.Points, rw.Stats.TotalTrips, len(rw.Badges))
	return nil
}

func (c *client) analytics() error {
	fmt.Println("\n[TEST] /api/analytics/summary")
	var s models.AnalyticsSummary
	if err := c.call(http.MethodGet, "/api/analytics/summary", nil, &s); err != nil {
		return err
	}
	fmt.Printf("✓ trips=%d alerts=%d yawns=%d overall_score=%d\n", s.TotalTrips, s.TotalAlerts, s.TotalYawns, s.OverallSafetyScore)

	var streak models.Streak
	if err := c.call(http.MethodGet, "/api/rewards/streak", nil, &streak); err != nil {
		return err
	}
	fmt.Printf("✓ streak=%d days (longest %d)\n", streak.Current, streak.Longest)
	return nil
}

// script yields the frames of a drive: open eyes with a yawn, then the
// requested number of eyes-closed episodes long enough to raise an alert.
func script(n int) []models.Frame {
	var frames []models.Frame
	at := time.Now()
	add := func(count int, ear, mar float64) {
		for i := 0; i < count; i++ {
			at = at.Add(time.Second / fps)
			lm := detection.Synthesize(ear, mar, 640, 480, at)
			frames = append(frames, toFrame(lm))
		}
	}

	add(20, 0.32, 0.3)
	add(detection.YawnConsecFrames+2, 0.3, 0.9)
	for i := 0; i < n; i++ {
		add(10, 0.32, 0.3)
		add(detection.EARConsecFrames+5, 0.12, 0.3)
	}
	add(10, 0.32, 0.3)
	return frames
}

func toFrame(lm detection.FrameLandmarks) models.Frame {
	points := make([][2]float64, len(lm.Points))
	for i, p := range lm.Points {
		points[i] = [2]float64{p.X, p.Y}
	}
	return models.Frame{Width: lm.Width, Height: lm.Height, Points: points, Timestamp: lm.CapturedAt.UnixMilli()}
}

func printEvent(typ string, payload interface{}) {
	if typ == handlers.MsgPong || typ == "" {
		return
	}
	b, _ := json.Marshal(payload)
	fmt.Printf("  <- %s %s\n", typ, b)
}

func streamWebSocket(tripID int64, frames []models.Frame) error {
	fmt.Println("\n[TEST] /ws")
	u, err := url.Parse(*backendURL)
	if err != nil {
		return err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws"
	u.RawQuery = fmt.Sprintf("trip_id=%d&driver_id=%d", tripID, *driverID)

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		for {
			var msg handlers.WebSocketMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			printEvent(msg.Type, msg.Payload)
		}
	}()

	tick := time.NewTicker(time.Second / fps)
	defer tick.Stop()
	for _, f := range frames {
		<-tick.C
		if err := conn.WriteJSON(map[string]interface{}{"type": handlers.MsgFrame, "payload": f}); err != nil {
			return err
		}
	}
	fmt.Printf("✓ sent %d frames\n", len(frames))

	time.Sleep(time.Second)
	return conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func streamGRPC(tripID int64, frames []models.Frame) error {
	fmt.Println("\n[TEST] driveguard.v1.Monitor/Watch")
	conn, err := grpc.NewClient(*grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx,
		handlers.TripIDMetadata, fmt.Sprint(tripID),
		handlers.DriverIDMetadata, fmt.Sprint(*driverID),
	)

	stream, err := rpc.NewMonitorClient(conn).Watch(ctx)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		for {
			msg, err := stream.Recv()
			if err != nil {
				done <- err
				return
			}
			fields := msg.AsMap()
			printEvent(fmt.Sprint(fields["type"]), fields)
		}
	}()

	tick := time.NewTicker(time.Second / fps)
	defer tick.Stop()
	for _, f := range frames {
		<-tick.C
		msg, err := rpc.FrameToStruct(f)
		if err != nil {
			return err
		}
		if err := stream.Send(msg); err != nil {
			return err
		}
	}
	fmt.Printf("✓ sent %d frames\n", len(frames))

	if err := stream.CloseSend(); err != nil {
		return err
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

func main() {
	flag.Parse()

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("DriveGuard - drive simulator")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("\n[INFO] backend:", *backendURL)

	c := &client{http: &http.Client{Timeout: 10 * time.Second}}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"Health Check", c.health},
		{"Emergency Contact", c.addContact},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			log.Printf("❌ %s failed: %v", s.name, err)
			os.Exit(1)
		}
	}

	tripID, err := c.startTrip()
	if err != nil {
		log.Printf("❌ Start trip failed: %v", err)
		os.Exit(1)
	}

	frames := script(*episodes)
	started := time.Now()
	if *grpcAddr != "" {
		err = streamGRPC(tripID, frames)
	} else {
		err = streamWebSocket(tripID, frames)
	}
	if err != nil {
		log.Printf("❌ Streaming failed: %v", err)
	}

	if err := c.endTrip(tripID, time.Since(started)); err != nil {
		log.Printf("❌ End trip failed: %v", err)
		os.Exit(1)
	}
	if err := c.rewards(); err != nil {
		log.Printf("⚠ Rewards failed: %v", err)
	}
	if err := c.analytics(); err != nil {
		log.Printf("⚠ Analytics failed: %v", err)
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("✅ Simulation completed")
	fmt.Println(strings.Repeat("=", 60))
}
