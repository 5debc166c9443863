package rpc

import (
	"testing"

	"DriveGuard/go-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestFrameStructRoundTrip(t *testing.T) {
	in := models.Frame{
		Width:          640,
		Height:         480,
		Points:         [][2]float64{{0.25, 0.5}, {0.75, 0.125}},
		Image:          []byte{0xff, 0xd8, 0x00, 0x10},
		Timestamp:      1700000000123,
		SequenceNumber: 9,
	}

	s, err := FrameToStruct(in)
	require.NoError(t, err)
	out, err := FrameFromStruct(s)
	require.NoError(t, err)

	assert.Equal(t, in, out)
}

func TestFrameFromStruct_BadPoint(t *testing.T) {
	s, err := structpb.NewStruct(map[string]interface{}{
		"width":  640,
		"height": 480,
		"points": []interface{}{[]interface{}{0.1}},
	})
	require.NoError(t, err)

	_, err = FrameFromStruct(s)
	assert.Error(t, err)
}

func TestFrameFromStruct_BadImage(t *testing.T) {
	s, err := structpb.NewStruct(map[string]interface{}{"image": "not base64!"})
	require.NoError(t, err)

	_, err = FrameFromStruct(s)
	assert.Error(t, err)
}

func TestEvent(t *testing.T) {
	ev, err := Event("ALERT", map[string]interface{}{"alert_type": "yawn", "type": "ignored"})
	require.NoError(t, err)

	assert.Equal(t, "ALERT", ev.GetFields()["type"].GetStringValue())
	assert.Equal(t, "yawn", ev.GetFields()["alert_type"].GetStringValue())
}
