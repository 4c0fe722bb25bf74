package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumaboard/whiteboard/internal/v1/board"
)

func validOpFrame(t *testing.T) []byte {
	t.Helper()
	frame := map[string]interface{}{
		"type":       TypeOp,
		"boardId":    "board-1",
		"clientOpId": "op-1",
		"baseSeq":    7,
		"op": map[string]interface{}{
			"id":        "ev-1",
			"boardId":   "board-1",
			"type":      "objectCreated",
			"timestamp": 1000,
			"payload": map[string]interface{}{
				"object": map[string]interface{}{
					"id":   "obj-1",
					"type": "rectangle",
					"x":    10,
					"y":    20,
				},
			},
		},
	}
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	return data
}

func TestParse_ValidOp(t *testing.T) {
	msg, err := Parse(validOpFrame(t))
	require.NoError(t, err)
	require.Equal(t, TypeOp, msg.Type)
	require.NotNil(t, msg.Op)

	assert.Equal(t, "board-1", msg.Op.BoardID)
	assert.Equal(t, "op-1", msg.Op.ClientOpID)
	assert.Equal(t, int64(7), msg.Op.BaseSeq)
	assert.Equal(t, board.EventObjectCreated, msg.Op.Op.Type)

	payload, ok := msg.Op.Op.Payload.(board.ObjectCreatedPayload)
	require.True(t, ok)
	assert.Equal(t, "obj-1", payload.Object.ID)
}

func TestParse_OpRoundTrip(t *testing.T) {
	msg, err := Parse(validOpFrame(t))
	require.NoError(t, err)

	// Re-marshaling the parsed op and parsing again must yield the same event.
	data, err := json.Marshal(msg.Op)
	require.NoError(t, err)
	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, msg.Op.Op, again.Op.Op)
}

func TestParse_TooLarge(t *testing.T) {
	frame := append([]byte(`{"type":"ping","t":1,"pad":"`), bytes.Repeat([]byte("x"), MaxMessageBytes)...)
	frame = append(frame, []byte(`"}`)...)

	_, err := Parse(frame)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestParse_NotUTF8(t *testing.T) {
	_, err := Parse([]byte{'{', 0xff, 0xfe, '}'})
	assert.ErrorIs(t, err, ErrNotUTF8)
}

func TestParse_BadJSON(t *testing.T) {
	_, err := Parse([]byte(`{"type":`))
	assert.ErrorIs(t, err, ErrBadJSON)
}

func TestParse_UnknownType(t *testing.T) {
	_, err := Parse([]byte(`{"type":"subscribe"}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestParse_Join(t *testing.T) {
	frame := []byte(`{"type":"join","boardId":"board-1","auth":{"kind":"invite","inviteToken":"tok"},"client":{"displayName":"Ada","color":"#ff0000"}}`)
	msg, err := Parse(frame)
	require.NoError(t, err)
	require.NotNil(t, msg.Join)
	assert.Equal(t, AuthKindInvite, msg.Join.Auth.Kind)
	assert.Equal(t, "Ada", msg.Join.Client.DisplayName)
}

func TestParse_JoinRejections(t *testing.T) {
	cases := []struct {
		name  string
		frame string
	}{
		{"missing boardId", `{"type":"join","auth":{"kind":"invite","inviteToken":"tok"}}`},
		{"unknown auth kind", `{"type":"join","boardId":"b","auth":{"kind":"apikey"}}`},
		{"owner without jwt", `{"type":"join","boardId":"b","auth":{"kind":"owner"}}`},
		{"invite without token", `{"type":"join","boardId":"b","auth":{"kind":"invite"}}`},
		{"negative clientKnownSeq", `{"type":"join","boardId":"b","auth":{"kind":"invite","inviteToken":"t"},"clientKnownSeq":-1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.frame))
			assert.Error(t, err)
		})
	}
}

func TestParse_OpBoardIDMismatch(t *testing.T) {
	frame := []byte(`{"type":"op","boardId":"board-1","clientOpId":"op-1","baseSeq":0,"op":{"id":"ev-1","boardId":"board-OTHER","type":"objectDeleted","timestamp":1,"payload":{"objectId":"obj-1"}}}`)
	_, err := Parse(frame)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boardId")
}

func TestParse_OpFieldCaps(t *testing.T) {
	mk := func(objectFields string) []byte {
		return []byte(fmt.Sprintf(`{"type":"op","boardId":"b","clientOpId":"c","baseSeq":0,"op":{"id":"e","boardId":"b","type":"objectCreated","timestamp":1,"payload":{"object":{"id":"o","type":"rectangle"%s}}}}`, objectFields))
	}

	_, err := Parse(mk(`,"strokeWidth":201`))
	assert.Error(t, err, "strokeWidth above cap")

	_, err = Parse(mk(`,"fontSize":513`))
	assert.Error(t, err, "fontSize above cap")

	_, err = Parse(mk(`,"fontSize":0.5`))
	assert.Error(t, err, "fontSize below minimum")

	_, err = Parse(mk(""))
	assert.NoError(t, err, "zero-value optional fields are fine")
}

func TestParse_UnknownPayloadFieldRejected(t *testing.T) {
	frame := []byte(`{"type":"op","boardId":"b","clientOpId":"c","baseSeq":0,"op":{"id":"e","boardId":"b","type":"objectDeleted","timestamp":1,"payload":{"objectId":"o","sneaky":true}}}`)
	_, err := Parse(frame)
	assert.Error(t, err)
}

func TestParse_Presence(t *testing.T) {
	frame := []byte(`{"type":"presence","boardId":"b","presence":{"cursor":{"x":1,"y":2},"selectionIds":["a"],"viewport":{"x":0,"y":0,"zoom":1}}}`)
	msg, err := Parse(frame)
	require.NoError(t, err)
	require.NotNil(t, msg.Presence)
	assert.Equal(t, 1.0, msg.Presence.Presence.Cursor.X)
}

func TestParse_PresenceZoomOutOfRange(t *testing.T) {
	frame := []byte(`{"type":"presence","boardId":"b","presence":{"viewport":{"x":0,"y":0,"zoom":1000}}}`)
	_, err := Parse(frame)
	assert.Error(t, err)
}

func TestParse_SelectionCap(t *testing.T) {
	ids := make([]string, MaxSelectionIDs+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}
	body, err := json.Marshal(map[string]interface{}{
		"type":     TypePresence,
		"boardId":  "b",
		"presence": map[string]interface{}{"selectionIds": ids},
	})
	require.NoError(t, err)

	_, err = Parse(body)
	assert.Error(t, err)
}

func TestParse_Ping(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"ping","t":12345}`))
	require.NoError(t, err)
	require.NotNil(t, msg.Ping)
	assert.Equal(t, int64(12345), msg.Ping.T)
}

func TestParse_ConnectorAttachment(t *testing.T) {
	frame := []byte(`{"type":"op","boardId":"b","clientOpId":"c","baseSeq":0,"op":{"id":"e","boardId":"b","type":"objectCreated","timestamp":1,"payload":{"object":{"id":"o","type":"connector","from":{"objectId":"a","attachment":{"kind":"edgeT","edge":"top","t":0.5}},"to":{"point":{"x":1,"y":2}}}}}}`)
	_, err := Parse(frame)
	assert.NoError(t, err)

	bad := []byte(`{"type":"op","boardId":"b","clientOpId":"c","baseSeq":0,"op":{"id":"e","boardId":"b","type":"objectCreated","timestamp":1,"payload":{"object":{"id":"o","type":"connector","from":{"objectId":"a","attachment":{"kind":"edgeT","edge":"top","t":1.5}}}}}}`)
	_, err = Parse(bad)
	assert.Error(t, err)
}
