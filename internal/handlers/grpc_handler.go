package handlers

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	"DriveGuard/go-backend/internal/models"
	"DriveGuard/go-backend/internal/monitor"
	"DriveGuard/go-backend/internal/repository"
	"DriveGuard/go-backend/internal/rpc"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Metadata keys selecting the trip of a Watch stream.
const (
	TripIDMetadata   = "x-trip-id"
	DriverIDMetadata = "x-driver-id"
)

// GRPCHandler serves driveguard.v1.Monitor for in-car units that stream
// frames over gRPC instead of the websocket.
type GRPCHandler struct {
	api *API
}

func NewGRPCHandler(api *API) *GRPCHandler {
	return &GRPCHandler{api: api}
}

func metadataInt(md metadata.MD, key string) (int64, bool) {
	vals := md.Get(key)
	if len(vals) == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(vals[0], 10, 64)
	return n, err == nil && n > 0
}

func (h *GRPCHandler) Watch(stream rpc.MonitorWatchServer) error {
	a := h.api
	md, _ := metadata.FromIncomingContext(stream.Context())
	tripID, ok := metadataInt(md, TripIDMetadata)
	if !ok {
		return status.Error(codes.InvalidArgument, TripIDMetadata+" is required")
	}
	userID, ok := metadataInt(md, DriverIDMetadata)
	if !ok {
		return status.Error(codes.Unauthenticated, DriverIDMetadata+" is required")
	}

	ctx, cancel := context.WithTimeout(stream.Context(), requestTimeout)
	trip, err := a.Trips.Get(ctx, tripID, userID)
	cancel()
	if errors.Is(err, repository.ErrNotFound) {
		return status.Error(codes.NotFound, "trip not found")
	}
	if err != nil {
		a.Logger.Error("trip lookup failed", zap.Int64("trip_id", tripID), zap.Error(err))
		return status.Error(codes.Internal, "trip lookup failed")
	}
	if trip.Status != models.TripActive {
		return status.Error(codes.FailedPrecondition, "trip already ended")
	}
	m, err := a.Registry.Ensure(tripID, userID)
	if err != nil {
		return status.Error(codes.FailedPrecondition, "trip already ended")
	}

	log := a.Logger.With(zap.Int64("trip_id", tripID), zap.String("transport", "grpc"))
	log.Info("watch stream started")

	var (
		sendMu sync.Mutex
		ended  bool
	)
	send := func(e event) {
		payload, err := payloadMap(e.Payload)
		if err == nil {
			var msg *structpb.Struct
			if msg, err = rpc.Event(e.Type, payload); err == nil {
				sendMu.Lock()
				defer sendMu.Unlock()
				if !ended {
					err = stream.Send(msg)
				}
			}
		}
		if err != nil {
			log.Debug("watch send failed", zap.String("type", e.Type), zap.Error(err))
		}
	}
	defer func() {
		sendMu.Lock()
		ended = true
		sendMu.Unlock()
	}()

	send(event{MsgWelcome, map[string]interface{}{"trip_id": tripID, "version": a.Version}})

	queue := monitor.NewFrameQueue(nil)
	runCtx, stopRun := context.WithCancel(stream.Context())
	defer stopRun()

	runErr := make(chan error, 1)
	go func() {
		runErr <- m.Run(runCtx, queue, a.observer(tripID, send))
	}()
	recvErr := make(chan error, 1)
	go func() {
		recvErr <- a.recvFrames(stream, m, queue, send)
	}()

	select {
	case err := <-recvErr:
		queue.Close()
		<-runErr
		log.Info("watch stream ended")
		if err != nil && status.Code(err) != codes.Canceled {
			return err
		}
		return nil

	case err := <-runErr:
		switch {
		case err == nil:
			log.Info("watch stream closed, trip ended")
			return status.Error(codes.Aborted, "trip ended")
		case errors.Is(err, context.Canceled):
			return nil
		default:
			return status.Error(codes.Internal, err.Error())
		}
	}
}

// recvFrames feeds the stream's frames into the queue until the client
// half-closes (nil) or the stream breaks.
func (a *API) recvFrames(stream rpc.MonitorWatchServer, m *monitor.Monitor, queue *monitor.FrameQueue, send func(event)) error {
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		f, err := rpc.FrameFromStruct(msg)
		if err != nil {
			send(errorEvent("bad_frame", err))
			continue
		}
		if !queue.OfferLazy(a.lazyFrame(f, time.Now(), send)) {
			m.FrameDropped()
			a.Metrics.IncrementDropped()
		}
	}
}

func (h *GRPCHandler) Health(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	a := h.api
	db := a.DatabasePing != nil && a.DatabasePing(ctx) == nil
	landmarks := a.Resolver.ModelAvailable(ctx)

	a.Logger.Debug("grpc health", zap.Bool("database", db), zap.Bool("landmark_service", landmarks))

	state := "healthy"
	if !db {
		state = "degraded"
	}
	return structpb.NewStruct(map[string]interface{}{
		"status":           state,
		"database":         db,
		"landmark_service": landmarks,
		"active_trips":     a.Registry.Len(),
		"active_clients":   a.clients.len(),
	})
}
