package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/smukkama/pipeline-monitor/internal/model"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Invalid message %s: %v", data, err)
	}
	return msg
}

func TestHub_InitialSnapshotAndBroadcast(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	hub := NewHub(func() *model.Snapshot {
		return &model.Snapshot{Version: 7}
	}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := dial(t, srv.URL)
	defer conn.Close()

	msg := readMessage(t, conn)
	if msg.Type != "snapshot" {
		t.Fatalf("Expected initial snapshot, got %s", msg.Type)
	}
	if v := msg.Payload.(map[string]interface{})["version"]; v != float64(7) {
		t.Errorf("Expected version 7, got %v", v)
	}

	hub.OnAlert(model.Alert{ID: "a-1", Type: model.AlertLeak, SegmentID: "segment-2"})
	msg = readMessage(t, conn)
	if msg.Type != "alert" {
		t.Fatalf("Expected alert, got %s", msg.Type)
	}
	if id := msg.Payload.(map[string]interface{})["id"]; id != "a-1" {
		t.Errorf("Expected alert a-1, got %v", id)
	}

	if n := hub.ClientCount(); n != 1 {
		t.Errorf("Expected 1 client, got %d", n)
	}
}

func TestHub_PublishDoesNotBlockWithoutRun(t *testing.T) {
	hub := NewHub(nil, nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer*2; i++ {
			hub.OnSnapshot(&model.Snapshot{})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnSnapshot blocked with a full queue")
	}
}
