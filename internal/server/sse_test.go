package server

import (
	"bufio"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/stacks/pkg/event"
)

func TestSimulationStream(t *testing.T) {
	ts := setupServer(t)
	createBook(t, ts.URL, "Introduction to Algorithms", "Thomas H. Cormen", "978-9")

	// Connect before starting so the hub has a subscriber for every frame.
	resp, err := http.Get(ts.URL + "/api/simulation/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected", strings.TrimSpace(line))

	startResp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/simulation/start", `{"scenario":"book_club"}`)
	require.Equal(t, http.StatusAccepted, startResp.StatusCode)

	var (
		dataFrames int
		terminal   string
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "data: {"):
				dataFrames++
			case line == "event: "+event.MarkerCompleted, line == "event: "+event.MarkerCancelled:
				terminal = strings.TrimPrefix(line, "event: ")
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("stream did not reach a terminal frame")
	}

	assert.Equal(t, event.MarkerCompleted, terminal)
	assert.Greater(t, dataFrames, 2, "scenario frames should have streamed")
}

func TestSimulationStreamHeartbeat(t *testing.T) {
	ts := setupServer(t)

	resp, err := http.Get(ts.URL + "/api/simulation/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)

	// With no simulation running the stream still stays alive: the
	// connected frame, then heartbeat comments.
	deadline := time.Now().Add(5 * time.Second)
	var sawHeartbeat bool
	for time.Now().Before(deadline) && !sawHeartbeat {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, ": heartbeat") {
			sawHeartbeat = true
		}
	}
	assert.True(t, sawHeartbeat)
}
