package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newTestClient(id, userID string, topics ...string) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		Topics: topics,
		Send:   make(chan []byte, 8),
	}
}

func TestHub_RegisterClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.Register(newTestClient("c1", "p1", UserTopic("p1")))

	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount("user/p1") != 1 {
		t.Fatalf("expected 1 client on user/p1, got %d", hub.TopicCount("user/p1"))
	}
}

func TestHub_UnregisterClosesChannel(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient("c1", "p1", UserTopic("p1"))
	hub.Register(client)
	hub.Unregister(client)

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
	if _, ok := <-client.Send; ok {
		t.Fatal("expected Send channel to be closed")
	}
	// second unregister is a no-op
	hub.Unregister(client)
}

func TestHub_BroadcastToTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	subscriber := newTestClient("sub", "p1", UserTopic("p1"))
	other := newTestClient("other", "p2", UserTopic("p2"))
	hub.Register(subscriber)
	hub.Register(other)

	event, err := NewEvent("appointment.notification", UserTopic("p1"), "appt-1", map[string]string{"message": "hi"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	hub.Broadcast(UserTopic("p1"), event)

	select {
	case msg := <-subscriber.Send:
		var got Event
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.ResourceID != "appt-1" || got.Type != "appointment.notification" {
			t.Errorf("unexpected event: %+v", got)
		}
	default:
		t.Fatal("subscriber did not receive event")
	}

	select {
	case <-other.Send:
		t.Fatal("non-subscriber received event")
	default:
	}
}

func TestHub_BroadcastDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := &Client{ID: "c", UserID: "u", Topics: []string{"t"}, Send: make(chan []byte, 1)}
	hub.Register(client)

	hub.Broadcast("t", Event{Type: "a"})
	hub.Broadcast("t", Event{Type: "b"})

	if len(client.Send) != 1 {
		t.Fatalf("expected buffered length 1, got %d", len(client.Send))
	}
}

func TestHub_SendTo(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient("c", "u")
	hub.Register(client)

	if !hub.SendTo(client, Event{Type: "x"}) {
		t.Fatal("expected delivery to registered client")
	}
	hub.Unregister(client)
	if hub.SendTo(client, Event{Type: "x"}) {
		t.Fatal("expected no delivery after unregister")
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newTestClient("c", "u", UserTopic("u"))
	hub.Register(client)

	hub.Subscribe(client, []string{"appointment/a1", "appointment/a1"})
	if hub.TopicCount("appointment/a1") != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.TopicCount("appointment/a1"))
	}
	if len(client.Topics) != 2 {
		t.Fatalf("expected 2 topics, got %v", client.Topics)
	}

	hub.Unsubscribe(client, []string{"appointment/a1", UserTopic("u")})
	if hub.TopicCount("appointment/a1") != 0 {
		t.Fatal("expected appointment topic to be removed")
	}
	if hub.TopicCount(UserTopic("u")) != 1 {
		t.Fatal("own user topic must survive unsubscribe")
	}
}

func TestHub_PublishImplementsEventPublisher(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var pub EventPublisher = hub
	client := newTestClient("c", "u", "appointment/a1")
	hub.Register(client)

	if err := pub.Publish(context.Background(), Event{Type: "appointment.updated", Topic: "appointment/a1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(client.Send) != 1 {
		t.Fatal("expected published event to reach subscriber")
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newTestClient("c", "u", "t")
			hub.Register(c)
			hub.Broadcast("t", Event{Type: "x"})
			hub.Unregister(c)
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHandler_ProcessMessageAuthorization(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	h := NewHandler(hub, func(_ context.Context, userID, topic string) bool {
		return topic == "appointment/mine"
	})
	client := newTestClient("c", "u", UserTopic("u"))
	hub.Register(client)

	h.processMessage(context.Background(), client, ClientMessage{
		Action: "subscribe",
		Topics: []string{"appointment/mine", "appointment/theirs", "user/someone-else"},
	})

	if hub.TopicCount("appointment/mine") != 1 {
		t.Error("expected authorized topic to be subscribed")
	}
	if hub.TopicCount("appointment/theirs") != 0 {
		t.Error("unauthorized topic must be rejected")
	}
	if hub.TopicCount("user/someone-else") != 0 {
		t.Error("foreign user topic must be rejected")
	}
}

func TestHandler_AttachEndToEnd(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	h := NewHandler(hub, nil)

	e := echo.New()
	e.GET("/ws", func(c echo.Context) error {
		_, _, err := h.Attach(c, "p1")
		return err
	})
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount(UserTopic("p1")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Broadcast(UserTopic("p1"), Event{Type: "appointment.reminder", Topic: UserTopic("p1")})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Event
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "appointment.reminder" {
		t.Errorf("expected reminder event, got %q", got.Type)
	}
}
