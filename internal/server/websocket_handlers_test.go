package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/doorcount/internal/counter"
	"github.com/MeKo-Tech/doorcount/internal/crossing"
	"github.com/MeKo-Tech/doorcount/internal/ledger"
)

// mockWebSocketConn is a mock implementation of websocket.Conn for testing.
type mockWebSocketConn struct {
	sentMessages []sentMessage
	err          error
}

type sentMessage struct {
	messageType int
	data        []byte
}

func (m *mockWebSocketConn) WriteMessage(messageType int, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.sentMessages = append(m.sentMessages, sentMessage{messageType: messageType, data: data})
	return nil
}

func TestServer_SendOutcome(t *testing.T) {
	conn := &mockWebSocketConn{}
	s := &Server{}
	id := 4
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	err := s.sendOutcome(conn, counter.Outcome{
		Snapshot: ledger.Snapshot{In: 1, Occupancy: 1, At: at},
		Events: []counter.Counted{{
			Event: crossing.Event{TrackID: id, Direction: crossing.Rightward, PrevX: 180, CurX: 210, At: at},
			Label: ledger.LabelIn,
		}},
		Detections: []counter.Detection{{TrackID: &id, Box: counter.Box{X1: 190, X2: 230, Y2: 100}, Confidence: 0.9}},
		LineX:      200,
	})
	require.NoError(t, err)
	require.Len(t, conn.sentMessages, 1)
	assert.Equal(t, websocket.TextMessage, conn.sentMessages[0].messageType)

	var msg struct {
		Type    string          `json:"type"`
		Payload counter.Outcome `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(conn.sentMessages[0].data, &msg))
	assert.Equal(t, "outcome", msg.Type)
	assert.Equal(t, 1, msg.Payload.Snapshot.In)
	assert.InDelta(t, 200, msg.Payload.LineX, 1e-9)
	require.Len(t, msg.Payload.Events, 1)
	assert.Equal(t, ledger.LabelIn, msg.Payload.Events[0].Label)
	require.Len(t, msg.Payload.Detections, 1)
	assert.Equal(t, 4, *msg.Payload.Detections[0].TrackID)
	assert.NotContains(t, string(conn.sentMessages[0].data), "Frame")
}

func TestServer_SendMessageWriteError(t *testing.T) {
	conn := &mockWebSocketConn{err: errors.New("broken pipe")}
	s := &Server{}

	err := s.sendMessage(conn, WebSocketMessage{Type: "counts"})
	assert.Error(t, err)
	assert.Empty(t, conn.sentMessages)
}

func TestWebSocketUpgrader(t *testing.T) {
	allowed := upgrader.CheckOrigin(&http.Request{
		Header: http.Header{"Origin": []string{"http://display.local"}},
	})
	assert.True(t, allowed)
	assert.Equal(t, 1024, upgrader.ReadBufferSize)
	assert.Equal(t, 1024, upgrader.WriteBufferSize)
}

func TestServer_OutcomeStream(t *testing.T) {
	_, ctl, mux := newTestServer(t)
	ctl.snap = ledger.Snapshot{In: 2, Out: 1, Occupancy: 1}
	ts := httptest.NewServer(mux)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first struct {
		Type    string         `json:"type"`
		Payload CountsResponse `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "counts", first.Type)
	assert.Equal(t, CountsResponse{In: 2, Out: 1, Occupancy: 1}, first.Payload)

	ctl.publish(counter.Outcome{Snapshot: ledger.Snapshot{In: 3, Out: 1, Occupancy: 2}, LineX: 320})

	var next struct {
		Type    string          `json:"type"`
		Payload counter.Outcome `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "outcome", next.Type)
	assert.Equal(t, 3, next.Payload.Snapshot.In)

	ctl.stop()
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
}
