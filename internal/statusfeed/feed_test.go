package statusfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sceneforge/internal/analyzer"
	"sceneforge/internal/manager"
	"sceneforge/internal/types"
)

// fakeSource is a canned StatusSource.
type fakeSource struct {
	status   types.BuildStatus
	analysis *analyzer.BuildAnalysis
	trends   analyzer.TrendReport
}

func (s *fakeSource) Status() types.BuildStatus             { return s.status }
func (s *fakeSource) LastAnalysis() *analyzer.BuildAnalysis { return s.analysis }
func (s *fakeSource) Trends() analyzer.TrendReport          { return s.trends }

func TestHandleStatus_Snapshot(t *testing.T) {
	source := &fakeSource{
		status: types.BuildStatus{State: types.StateSuccess, Bytes: 4096, DurationMs: 210},
		analysis: &analyzer.BuildAnalysis{
			Framework: "babylon",
			Success:   true,
			Grade:     analyzer.GradeGood,
		},
		trends: analyzer.TrendReport{BuildTime: analyzer.TrendStable, BundleSize: analyzer.TrendIncreasing},
	}
	feed := New(source, nil, nil)

	server := httptest.NewServer(feed.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snapshot struct {
		State      string                  `json:"state"`
		Bytes      int                     `json:"bytes"`
		DurationMs int                     `json:"durationMs"`
		Analysis   *analyzer.BuildAnalysis `json:"analysis"`
		Trends     analyzer.TrendReport    `json:"trends"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	assert.Equal(t, "success", snapshot.State)
	assert.Equal(t, 4096, snapshot.Bytes)
	assert.Equal(t, 210, snapshot.DurationMs)
	require.NotNil(t, snapshot.Analysis)
	assert.Equal(t, analyzer.GradeGood, snapshot.Analysis.Grade)
	assert.Equal(t, analyzer.TrendIncreasing, snapshot.Trends.BundleSize)
}

func TestWebSocket_ReceivesEvents(t *testing.T) {
	feed := New(&fakeSource{}, nil, nil)
	server := httptest.NewServer(feed.Handler())
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Wait for the feed to register the client before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for feed.ClientCount() == 0 {
		require.True(t, time.Now().Before(deadline), "client never registered")
		time.Sleep(2 * time.Millisecond)
	}

	feed.HandleEvent(manager.Event{Status: types.BuildStatus{State: types.StateBuilding}})
	feed.HandleEvent(manager.Event{
		Status: types.BuildStatus{State: types.StateSuccess, Bytes: 128, DurationMs: 40},
		Analysis: &analyzer.BuildAnalysis{
			Grade:   analyzer.GradeExcellent,
			Success: true,
		},
	})

	_, first, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(first, &msg))
	assert.Equal(t, "building", msg.State)
	assert.Nil(t, msg.Analysis)

	_, second, err := conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(second, &msg))
	assert.Equal(t, "success", msg.State)
	assert.Equal(t, 128, msg.Bytes)
	require.NotNil(t, msg.Analysis)
	assert.Equal(t, analyzer.GradeExcellent, msg.Analysis.Grade)
}

func TestWebSocket_DisconnectRemovesClient(t *testing.T) {
	feed := New(&fakeSource{}, nil, nil)
	server := httptest.NewServer(feed.Handler())
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for feed.ClientCount() == 0 {
		require.True(t, time.Now().Before(deadline), "client never registered")
		time.Sleep(2 * time.Millisecond)
	}

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))

	deadline = time.Now().Add(2 * time.Second)
	for feed.ClientCount() != 0 {
		require.True(t, time.Now().Before(deadline), "client never dropped")
		time.Sleep(2 * time.Millisecond)
	}
}

func TestBroadcast_NoClientsIsNoOp(t *testing.T) {
	feed := New(&fakeSource{}, nil, nil)
	// Must not panic or block with nobody listening.
	feed.HandleEvent(manager.Event{Status: types.BuildStatus{State: types.StateIdle}})
	assert.Zero(t, feed.ClientCount())
}
