package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poppop/racer/internal/config"
	"github.com/poppop/racer/pkg/core"
	"github.com/poppop/racer/pkg/streaming"
)

type received struct {
	conn int
	env  streaming.Envelope
}

type messageLog struct {
	mu       sync.Mutex
	messages []received
	secrets  []string
}

func (m *messageLog) add(conn int, env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, received{conn: conn, env: env})
}

func (m *messageLog) all() []received {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]received, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func (m *messageLog) types() map[string]int {
	out := make(map[string]int)
	for _, r := range m.all() {
		out[r.env.Type]++
	}
	return out
}

// testServer upgrades to WebSocket, records received envelopes and acks
// race_started and race_finished. When dropFirst is set the first
// connection is cut right after its race_started ack.
func testServer(t *testing.T, dropFirst bool) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}
	var conns atomic.Int32

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ml.mu.Lock()
		ml.secrets = append(ml.secrets, r.URL.Query().Get("secret"))
		ml.mu.Unlock()

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()
		id := int(conns.Add(1))

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(id, env)

			if env.Type == streaming.TypeRaceStarted || env.Type == streaming.TypeRaceFinished {
				data, _ := json.Marshal(streaming.AckMessage{Type: streaming.TypeAck, For: env.Type})
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
				if dropFirst && id == 1 && env.Type == streaming.TypeRaceStarted {
					return
				}
			}
		}
	}))

	return srv, ml
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testRace() *core.RaceInfo {
	return &core.RaceInfo{
		ID: "race-1",
		Competitors: [2]core.CompetitorAttributes{
			{ID: "a", Name: "Player A"},
			{ID: "b", Name: "Player B"},
		},
	}
}

func TestStartAndEndRace(t *testing.T) {
	srv, ml := testServer(t, false)
	defer srv.Close()

	b := New(config.WebSocketConfig{URL: wsURL(srv), Secret: "test"}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartRace(testRace()))
	require.NoError(t, b.EndRace(&core.RaceResult{RaceID: "race-1", WinnerID: "a", WinnerName: "Player A"}))

	msgs := ml.all()
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, streaming.TypeRaceStarted, msgs[0].env.Type)
	assert.Equal(t, streaming.TypeRaceFinished, msgs[len(msgs)-1].env.Type)

	var p streaming.RaceFinishedPayload
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1].env.Payload, &p))
	assert.Equal(t, "Player A", p.Result.WinnerName)

	ml.mu.Lock()
	assert.Equal(t, "test", ml.secrets[0])
	ml.mu.Unlock()
}

func TestSnapshotsAreFireAndForget(t *testing.T) {
	srv, ml := testServer(t, false)
	defer srv.Close()

	b := New(config.WebSocketConfig{URL: wsURL(srv)}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartRace(testRace()))
	for tick := uint64(1); tick <= 3; tick++ {
		require.NoError(t, b.RecordSnapshot(&core.Snapshot{RaceID: "race-1", Tick: tick}))
	}
	require.NoError(t, b.ResetRace())

	assert.Eventually(t, func() bool {
		types := ml.types()
		return types[streaming.TypeSnapshot] == 3 && types[streaming.TypeRaceReset] == 1
	}, 2*time.Second, 10*time.Millisecond)

	var p streaming.SnapshotPayload
	for _, m := range ml.all() {
		if m.env.Type == streaming.TypeSnapshot {
			require.NoError(t, json.Unmarshal(m.env.Payload, &p))
			assert.Equal(t, "race-1", p.Snapshot.RaceID)
		}
	}
}

func TestAckTimeout(t *testing.T) {
	upgrader := ws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	b := New(config.WebSocketConfig{URL: wsURL(srv)}, nil)
	b.ackTimeout = 50 * time.Millisecond
	require.NoError(t, b.Init())
	defer b.Close()

	err := b.StartRace(testRace())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout waiting for ack")
}

func TestReconnectReplaysRaceStart(t *testing.T) {
	srv, ml := testServer(t, true)
	defer srv.Close()

	b := New(config.WebSocketConfig{URL: wsURL(srv)}, nil)
	b.conn.backoff = 10 * time.Millisecond
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartRace(testRace()))

	// the replayed header is the first thing the second connection sees
	require.Eventually(t, func() bool {
		for _, m := range ml.all() {
			if m.conn == 2 {
				return m.env.Type == streaming.TypeRaceStarted
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, b.RecordSnapshot(&core.Snapshot{RaceID: "race-1", Tick: 9}))
	assert.Eventually(t, func() bool {
		for _, m := range ml.all() {
			if m.conn == 2 && m.env.Type == streaming.TypeSnapshot {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
}

func TestInitFailsWithoutServer(t *testing.T) {
	b := New(config.WebSocketConfig{URL: "ws://127.0.0.1:1/live"}, nil)
	err := b.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "websocket dial failed")
	assert.NoError(t, b.Close())
}

func TestCloseIsIdempotent(t *testing.T) {
	srv, _ := testServer(t, false)
	defer srv.Close()

	b := New(config.WebSocketConfig{URL: wsURL(srv)}, nil)
	require.NoError(t, b.Init())

	assert.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		name, raw, secret, want string
	}{
		{"no secret", "ws://localhost:8090/live", "", "ws://localhost:8090/live"},
		{"secret", "ws://localhost:8090/live", "s3cret", "ws://localhost:8090/live?secret=s3cret"},
		{"keeps query", "ws://localhost:8090/live?track=oval", "x", "ws://localhost:8090/live?secret=x&track=oval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := streamURL(tt.raw, tt.secret)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := streamURL("://bad", "")
	assert.ErrorContains(t, err, "invalid websocket URL")
}

func TestReplayStateFollowsRace(t *testing.T) {
	c := newConnection(slog.Default())

	// no race running, nothing to replay
	c.track([]byte("snap-0"))
	assert.Nil(t, c.latest)

	c.remember([]byte("header"))
	c.track([]byte("snap-1"))
	c.track([]byte("snap-2"))
	assert.Equal(t, []byte("header"), c.header)
	assert.Equal(t, []byte("snap-2"), c.latest)

	c.remember(nil)
	assert.Nil(t, c.header)
	assert.Nil(t, c.latest)
}
