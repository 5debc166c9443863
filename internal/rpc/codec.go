package rpc

import (
	"encoding/base64"
	"fmt"

	"DriveGuard/go-backend/internal/models"

	"google.golang.org/protobuf/types/known/structpb"
)

// FrameToStruct encodes a frame for the Watch stream. Image bytes travel
// base64 encoded.
func FrameToStruct(f models.Frame) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"width":           f.Width,
		"height":          f.Height,
		"timestamp":       f.Timestamp,
		"sequence_number": f.SequenceNumber,
	}
	if len(f.Points) > 0 {
		fields["points"] = PointsToList(f.Points)
	}
	if len(f.Image) > 0 {
		fields["image"] = f.Image
	}
	return structpb.NewStruct(fields)
}

func FrameFromStruct(s *structpb.Struct) (models.Frame, error) {
	fields := s.GetFields()
	f := models.Frame{
		Width:          int(fields["width"].GetNumberValue()),
		Height:         int(fields["height"].GetNumberValue()),
		Timestamp:      int64(fields["timestamp"].GetNumberValue()),
		SequenceNumber: int32(fields["sequence_number"].GetNumberValue()),
	}
	if v, ok := fields["image"]; ok {
		img, err := base64.StdEncoding.DecodeString(v.GetStringValue())
		if err != nil {
			return f, fmt.Errorf("decode image: %w", err)
		}
		f.Image = img
	}
	if v, ok := fields["points"]; ok {
		points, err := PointsFromList(v.GetListValue())
		if err != nil {
			return f, err
		}
		f.Points = points
	}
	return f, nil
}

func PointsToList(points [][2]float64) []interface{} {
	out := make([]interface{}, len(points))
	for i, p := range points {
		out[i] = []interface{}{p[0], p[1]}
	}
	return out
}

// PointsFromList reads [[x, y], ...].
func PointsFromList(l *structpb.ListValue) ([][2]float64, error) {
	values := l.GetValues()
	points := make([][2]float64, 0, len(values))
	for i, v := range values {
		xy := v.GetListValue().GetValues()
		if len(xy) != 2 {
			return nil, fmt.Errorf("point %d: want [x, y], got %d values", i, len(xy))
		}
		points = append(points, [2]float64{xy[0].GetNumberValue(), xy[1].GetNumberValue()})
	}
	return points, nil
}

// Event builds an outgoing Watch message.
func Event(typ string, fields map[string]interface{}) (*structpb.Struct, error) {
	m := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		m[k] = v
	}
	m["type"] = typ
	return structpb.NewStruct(m)
}
