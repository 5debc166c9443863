package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"DriveGuard/go-backend/internal/detection"
	"DriveGuard/go-backend/internal/models"
	"DriveGuard/go-backend/internal/rpc"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var (
	ErrNoLandmarkService = errors.New("image frames need the landmark service")
	ErrEmptyFrame        = errors.New("frame carries neither points nor image")
)

const landmarkTimeout = 5 * time.Second

// LandmarkClient talks to the face-landmark model over gRPC.
type LandmarkClient struct {
	conn   *grpc.ClientConn
	client *rpc.LandmarkModelClient
	url    string
	logger *zap.Logger
}

func NewLandmarkClient(url string, maxMessageSizeMB int, logger *zap.Logger) (*LandmarkClient, error) {
	logger = logger.Named("landmarks")
	logger.Info("connecting to landmark service", zap.String("url", url))

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxMessageSizeMB*1024*1024),
			grpc.MaxCallSendMsgSize(maxMessageSizeMB*1024*1024),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	conn, err := grpc.NewClient(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not connect to landmark service at %s: %w", url, err)
	}
	return NewLandmarkClientConn(conn, url, logger), nil
}

// NewLandmarkClientConn wraps an existing connection.
func NewLandmarkClientConn(conn *grpc.ClientConn, url string, logger *zap.Logger) *LandmarkClient {
	return &LandmarkClient{
		conn:   conn,
		client: rpc.NewLandmarkModelClient(conn),
		url:    url,
		logger: logger,
	}
}

// Detect returns the normalized face landmarks of an encoded image. No face
// yields an empty slice.
func (lc *LandmarkClient) Detect(ctx context.Context, image []byte) ([]detection.Point, error) {
	ctx, cancel := context.WithTimeout(ctx, landmarkTimeout)
	defer cancel()

	res, err := lc.client.Detect(ctx, wrapperspb.Bytes(image))
	if err != nil {
		return nil, fmt.Errorf("could not detect landmarks: %w", err)
	}
	raw, err := rpc.PointsFromList(res.GetFields()["points"].GetListValue())
	if err != nil {
		return nil, fmt.Errorf("landmark response: %w", err)
	}
	return toPoints(raw), nil
}

func (lc *LandmarkClient) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := lc.client.Detect(ctx, wrapperspb.Bytes(nil))
	return err == nil
}

func (lc *LandmarkClient) Close() error {
	if lc.conn != nil {
		return lc.conn.Close()
	}
	return nil
}

// FrameResolver turns client frames into landmarks, asking the model only
// for frames that carry an image.
type FrameResolver struct {
	model *LandmarkClient
}

// NewFrameResolver accepts a nil model; image frames are then rejected.
func NewFrameResolver(model *LandmarkClient) *FrameResolver {
	return &FrameResolver{model: model}
}

func (r *FrameResolver) Resolve(ctx context.Context, f models.Frame, received time.Time) (detection.FrameLandmarks, error) {
	lm := detection.FrameLandmarks{
		Width:      f.Width,
		Height:     f.Height,
		CapturedAt: f.CapturedAt(received),
	}
	switch {
	case len(f.Points) > 0:
		lm.Points = toPoints(f.Points)
	case len(f.Image) > 0:
		if r.model == nil {
			return lm, ErrNoLandmarkService
		}
		points, err := r.model.Detect(ctx, f.Image)
		if err != nil {
			return lm, err
		}
		lm.Points = points
	case f.Width <= 0 && f.Height <= 0:
		return lm, ErrEmptyFrame
	}
	return lm, nil
}

// ModelAvailable reports whether a landmark model is configured and healthy.
func (r *FrameResolver) ModelAvailable(ctx context.Context) bool {
	return r.model != nil && r.model.HealthCheck(ctx)
}

func toPoints(raw [][2]float64) []detection.Point {
	points := make([]detection.Point, len(raw))
	for i, p := range raw {
		points[i] = detection.Point{X: p[0], Y: p[1]}
	}
	return points
}
