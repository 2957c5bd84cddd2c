package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"clipforge/internal/logging"
)

type capture struct {
	events []Event
	err    error
}

func (c *capture) Publish(_ context.Context, e Event) error {
	c.events = append(c.events, e)
	return c.err
}

func TestFanoutDeliversToAllAndSwallowsErrors(t *testing.T) {
	failing := &capture{err: errors.New("down")}
	ok := &capture{}
	fanout := NewFanout(logging.NewNop(), failing, nil, ok)

	if err := fanout.Publish(context.Background(), Event{Type: TaskCompleted, TaskID: "t1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(failing.events) != 1 || len(ok.events) != 1 {
		t.Fatalf("expected both publishers called")
	}
	if ok.events[0].Time.IsZero() {
		t.Fatal("expected timestamp filled")
	}
}

type fakeJetStream struct {
	subjects []string
	payloads [][]byte
}

func (f *fakeJetStream) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return &nats.PubAck{Stream: "CLIPFORGE_TASKS", Sequence: uint64(len(f.subjects))}, nil
}

func TestNATSPublisherSubjects(t *testing.T) {
	js := &fakeJetStream{}
	pub := &NATSPublisher{js: js, prefix: "clipforge.tasks"}

	if err := pub.Publish(context.Background(), Event{Type: TaskFailed, TaskID: "t1", Error: "boom"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pub.Publish(context.Background(), Event{Type: TaskProgress, TaskID: "t1", Progress: 40}); err != nil {
		t.Fatalf("Publish progress: %v", err)
	}
	if len(js.subjects) != 1 || js.subjects[0] != "clipforge.tasks.task.failed" {
		t.Fatalf("unexpected subjects %v", js.subjects)
	}
	var decoded Event
	if err := json.Unmarshal(js.payloads[0], &decoded); err != nil || decoded.Error != "boom" {
		t.Fatalf("unexpected payload %s %v", js.payloads[0], err)
	}
}

func TestConnectNATSRequiresPrefix(t *testing.T) {
	if _, err := ConnectNATS("nats://127.0.0.1:1", "S", " . "); err == nil {
		t.Fatal("expected prefix error")
	}
}

func TestHubBroadcastsToClients(t *testing.T) {
	hub := NewHub(logging.NewNop())
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := hub.Publish(context.Background(), Event{Type: TaskClaimed, TaskID: "t9", WorkerID: "w1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != TaskClaimed || got.TaskID != "t9" || got.WorkerID != "w1" {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestHubDropsClientWhoseQueueIsFull(t *testing.T) {
	hub := NewHub(logging.NewNop())
	// No writer goroutine drains this client.
	stalled := &client{send: make(chan []byte, 1)}
	hub.mu.Lock()
	hub.clients[stalled] = struct{}{}
	hub.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			_ = hub.Publish(context.Background(), Event{Type: TaskProgress, TaskID: "t1", Progress: i})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a stalled client")
	}

	if got := hub.Clients(); got != 0 {
		t.Fatalf("expected stalled client to be dropped, %d remain", got)
	}
	<-stalled.send
	if _, open := <-stalled.send; open {
		t.Fatal("expected dropped client's queue to be closed")
	}
}

func TestHubPublishDoesNotWaitForUnreadClient(t *testing.T) {
	hub := NewHub(logging.NewNop())
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	start := time.Now()
	for i := 0; i < 10*clientBuffer; i++ {
		if err := hub.Publish(context.Background(), Event{Type: TaskProgress, TaskID: "t1", Progress: i % 100}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > writeWait {
		t.Fatalf("publishing to an unread client took %s", elapsed)
	}
}
