package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockStreamServer runs a WebSocket server that hands each upgraded
// connection to handler.
func mockStreamServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func streamURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// ackSubscribe reads the subscribe command and acknowledges it.
func ackSubscribe(t *testing.T, conn *websocket.Conn) (recipient string, ok bool) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Logf("read subscribe: %v", err)
		return "", false
	}

	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		t.Errorf("unmarshal subscribe command: %v", err)
		return "", false
	}
	if cmd.Cmd != "subscribe" {
		t.Errorf("Cmd = %q, want %q", cmd.Cmd, "subscribe")
	}

	params, _ := cmd.Params.(map[string]any)
	recipient, _ = params["recipient"].(string)

	ack := map[string]any{"id": cmd.ID, "type": "subscribed"}
	ackData, _ := json.Marshal(ack)
	if err := conn.WriteMessage(websocket.TextMessage, ackData); err != nil {
		t.Logf("write ack: %v", err)
		return "", false
	}

	return recipient, true
}

func testOpener(t *testing.T, server *httptest.Server) *WSOpener {
	t.Helper()
	return NewWSOpener(OpenerConfig{
		URL:              streamURL(server),
		SubscribeTimeout: 2 * time.Second,
		WriteTimeout:     time.Second,
		EventBufferSize:  16,
	}, nil)
}

func TestWSChannelSubscribe(t *testing.T) {
	recipientCh := make(chan string, 1)
	server := mockStreamServer(t, func(conn *websocket.Conn) {
		recipient, ok := ackSubscribe(t, conn)
		if !ok {
			return
		}
		recipientCh <- recipient

		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	ch, err := testOpener(t, server).Open("user-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	statusCh := make(chan ChannelStatus, 4)
	if err := ch.Subscribe(context.Background(), func(s ChannelStatus, err error) {
		statusCh <- s
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer ch.Unsubscribe()

	select {
	case got := <-recipientCh:
		if got != "user-1" {
			t.Errorf("recipient = %q, want %q", got, "user-1")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the subscribe command")
	}

	select {
	case s := <-statusCh:
		if s != ChannelSubscribed {
			t.Fatalf("status = %q, want %q", s, ChannelSubscribed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription status reported")
	}

	if !ch.Alive() {
		t.Error("Alive() = false after subscribe, want true")
	}
}

func TestWSChannelEvents(t *testing.T) {
	payloads := []string{
		`{"id":"n-1","kind":"session"}`,
		`{"id":"n-2","kind":"assignment"}`,
	}

	server := mockStreamServer(t, func(conn *websocket.Conn) {
		if _, ok := ackSubscribe(t, conn); !ok {
			return
		}

		for _, p := range payloads {
			frame := `{"type":"notification","msg":` + p + `}`
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		time.Sleep(time.Second)
	})
	defer server.Close()

	ch, err := testOpener(t, server).Open("user-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := ch.Subscribe(context.Background(), func(ChannelStatus, error) {}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer ch.Unsubscribe()

	timeout := time.After(2 * time.Second)
	for i, want := range payloads {
		select {
		case ev := <-ch.Events():
			if string(ev.Data) != want {
				t.Errorf("event %d: got %q, want %q", i, ev.Data, want)
			}
			if ev.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
		case <-timeout:
			t.Fatalf("timeout waiting for event %d", i)
		}
	}
}

func TestWSChannelSubscribeError(t *testing.T) {
	server := mockStreamServer(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd command
		json.Unmarshal(data, &cmd)

		frame := `{"id":` + jsonInt(cmd.ID) + `,"type":"error","msg":{"code":"forbidden","message":"unknown recipient"}}`
		conn.WriteMessage(websocket.TextMessage, []byte(frame))
		time.Sleep(time.Second)
	})
	defer server.Close()

	ch, err := testOpener(t, server).Open("user-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	errCh := make(chan error, 4)
	if err := ch.Subscribe(context.Background(), func(s ChannelStatus, err error) {
		if s == ChannelError {
			errCh <- err
		}
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer ch.Unsubscribe()

	select {
	case err := <-errCh:
		if err == nil || !strings.Contains(err.Error(), "forbidden") {
			t.Errorf("channel error = %v, want forbidden", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no channel error reported")
	}
}

func TestWSChannelRemoteClose(t *testing.T) {
	server := mockStreamServer(t, func(conn *websocket.Conn) {
		if _, ok := ackSubscribe(t, conn); !ok {
			return
		}
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
	})
	defer server.Close()

	ch, err := testOpener(t, server).Open("user-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	closed := make(chan struct{}, 1)
	if err := ch.Subscribe(context.Background(), func(s ChannelStatus, err error) {
		if s == ChannelClosed {
			closed <- struct{}{}
		}
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer ch.Unsubscribe()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("remote close not reported")
	}
}

func TestWSChannelDialFailure(t *testing.T) {
	opener := NewWSOpener(OpenerConfig{URL: "ws://127.0.0.1:1"}, nil)
	ch, err := opener.Open("user-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := ch.Subscribe(context.Background(), func(ChannelStatus, error) {}); err == nil {
		t.Fatal("Subscribe() should fail when the dial fails")
	}
}

func TestWSChannelSubscribeTimeout(t *testing.T) {
	server := mockStreamServer(t, func(conn *websocket.Conn) {
		// Swallow the subscribe command, never acknowledge.
		conn.ReadMessage()
		time.Sleep(5 * time.Second)
	})
	defer server.Close()

	opener := NewWSOpener(OpenerConfig{
		URL:              streamURL(server),
		SubscribeTimeout: 100 * time.Millisecond,
		WriteTimeout:     time.Second,
	}, nil)

	ch, err := opener.Open("user-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	errCh := make(chan error, 4)
	if err := ch.Subscribe(context.Background(), func(s ChannelStatus, err error) {
		if s == ChannelError {
			errCh <- err
		}
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer ch.Unsubscribe()

	select {
	case err := <-errCh:
		if err != ErrSubscribeTimeout {
			t.Errorf("error = %v, want ErrSubscribeTimeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe timeout not reported")
	}
}

func TestWSChannelUnsubscribeIdempotent(t *testing.T) {
	server := mockStreamServer(t, func(conn *websocket.Conn) {
		ackSubscribe(t, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	ch, err := testOpener(t, server).Open("user-1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := ch.Subscribe(context.Background(), func(ChannelStatus, error) {}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ch.Unsubscribe()
	ch.Unsubscribe()

	if ch.Alive() {
		t.Error("Alive() = true after unsubscribe, want false")
	}
}

func TestOpenMissingIdentity(t *testing.T) {
	opener := NewWSOpener(OpenerConfig{URL: "ws://unused"}, nil)
	if _, err := opener.Open(""); err != ErrMissingIdentity {
		t.Errorf("Open(\"\") error = %v, want ErrMissingIdentity", err)
	}
}

func jsonInt(v int64) string {
	data, _ := json.Marshal(v)
	return string(data)
}
