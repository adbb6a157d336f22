package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	frame, err := Encode(ActionProgressUpdate, "ab12cd34", ProgressPayload{
		Name:     "Alice",
		WPM:      61.5,
		Progress: 40,
		Accuracy: 98.2,
	})
	require.NoError(t, err)

	env, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, ActionProgressUpdate, env.Action)
	assert.Equal(t, "ab12cd34", env.SenderID)

	var p ProgressPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, 61.5, p.WPM)
	assert.False(t, p.Finished)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"not json", []byte("not json at all")},
		{"empty object", []byte(`{}`)},
		{"unknown action", []byte(`{"action":"self_destruct","sender_id":"x","payload":{}}`)},
		{"missing sender", []byte(`{"action":"join","payload":{"name":"Bob"}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestFinishedFlagOmittedWhenFalse(t *testing.T) {
	frame, err := Encode(ActionProgressUpdate, "x", ProgressPayload{Name: "Bob"})
	require.NoError(t, err)
	assert.NotContains(t, string(frame), "finished")

	frame, err = Encode(ActionProgressUpdate, "x", ProgressPayload{Name: "Bob", Finished: true})
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"finished":true`)
}
