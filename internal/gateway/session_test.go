package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/stellarlinkco/cordkit/internal/bus"
)

// serveGateway runs script for every websocket connection and returns the
// ws:// URL of the server.
func serveGateway(t *testing.T, script func(t *testing.T, ctx context.Context, conn *websocket.Conn, n int)) string {
	t.Helper()
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("encoding"); got != "json" {
			t.Errorf("encoding = %q, want json", got)
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		script(t, r.Context(), conn, int(conns.Add(1)))
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, f Frame) {
	t.Helper()
	data, _ := json.Marshal(f)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Errorf("server write: %v", err)
	}
}

func recv(t *testing.T, ctx context.Context, conn *websocket.Conn) Frame {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Errorf("server read: %v", err)
		return Frame{}
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Errorf("server decode: %v", err)
	}
	return f
}

func seq(n int64) *int64 { return &n }

func helloFrame(intervalMs int64) Frame {
	d, _ := json.Marshal(hello{HeartbeatInterval: intervalMs})
	return Frame{Op: OpHello, D: d}
}

func newTestSession(t *testing.T, url string) (*Session, *bus.MessageBus) {
	t.Helper()
	b := bus.NewMessageBus(10)
	s, err := NewSession(Options{URL: url, Version: 10, Token: "tok", Intents: 513, Bus: b})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s, b
}

func runWithTimeout(t *testing.T, s *Session) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Run(ctx)
}

func TestNewSession_Validation(t *testing.T) {
	b := bus.NewMessageBus(1)
	tests := []struct {
		name string
		opts Options
	}{
		{"no url", Options{Token: "t", Bus: b}},
		{"no token", Options{URL: "ws://x", Bus: b}},
		{"no bus", Options{URL: "ws://x", Token: "t"}},
	}
	for _, tt := range tests {
		if _, err := NewSession(tt.opts); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}

	s, err := NewSession(Options{URL: "ws://x", Token: "t", Bus: b})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if s.opts.Channel != DefaultChannel {
		t.Errorf("channel = %q, want %q", s.opts.Channel, DefaultChannel)
	}
}

func TestSession_IdentifyAndDispatch(t *testing.T) {
	url := serveGateway(t, func(t *testing.T, ctx context.Context, conn *websocket.Conn, _ int) {
		send(t, ctx, conn, helloFrame(60000))

		f := recv(t, ctx, conn)
		if f.Op != OpIdentify {
			t.Errorf("op = %d, want identify", f.Op)
		}
		var id identify
		json.Unmarshal(f.D, &id)
		if id.Token != "tok" || id.Intents != 513 {
			t.Errorf("identify = %+v", id)
		}

		send(t, ctx, conn, Frame{Op: OpDispatch, S: seq(1), T: "READY",
			D: json.RawMessage(`{"session_id":"abc","user":{"id":"1","username":"bot"}}`)})
		send(t, ctx, conn, Frame{Op: OpDispatch, S: seq(2), T: "MESSAGE_CREATE",
			D: json.RawMessage(`{"id":"m1","channel_id":"c1","content":"hi","author":{"id":"u1","username":"ann"}}`)})
		send(t, ctx, conn, Frame{Op: OpReconnect})
		conn.Read(ctx)
	})

	s, b := newTestSession(t, url)
	err := runWithTimeout(t, s)
	if !errors.Is(err, ErrReconnect) {
		t.Fatalf("Run = %v, want ErrReconnect", err)
	}
	if s.SessionID() != "abc" {
		t.Errorf("session id = %q, want abc", s.SessionID())
	}
	if s.Sequence() != 2 {
		t.Errorf("seq = %d, want 2", s.Sequence())
	}

	readyMsg := <-b.Inbound
	if readyMsg.Event != "READY" || readyMsg.Channel != DefaultChannel {
		t.Errorf("first event = %+v", readyMsg)
	}
	msg := <-b.Inbound
	if msg.Event != "MESSAGE_CREATE" {
		t.Fatalf("second event = %q", msg.Event)
	}
	if msg.SenderID != "u1" || msg.ChatID != "c1" || msg.Content != "hi" {
		t.Errorf("message = %+v", msg)
	}
	if msg.Metadata["username"] != "ann" {
		t.Errorf("username = %v", msg.Metadata["username"])
	}
	if !strings.Contains(string(msg.Raw), `"m1"`) {
		t.Errorf("raw = %s", msg.Raw)
	}
}

func TestSession_ResumesAfterReconnect(t *testing.T) {
	url := serveGateway(t, func(t *testing.T, ctx context.Context, conn *websocket.Conn, n int) {
		send(t, ctx, conn, helloFrame(60000))
		f := recv(t, ctx, conn)
		if n == 1 {
			send(t, ctx, conn, Frame{Op: OpDispatch, S: seq(7), T: "READY", D: json.RawMessage(`{"session_id":"s1"}`)})
			send(t, ctx, conn, Frame{Op: OpReconnect})
			conn.Read(ctx)
			return
		}
		if f.Op != OpResume {
			t.Errorf("op = %d, want resume", f.Op)
		}
		var r resume
		json.Unmarshal(f.D, &r)
		if r.SessionID != "s1" || r.Seq != 7 || r.Token != "tok" {
			t.Errorf("resume = %+v", r)
		}
		send(t, ctx, conn, Frame{Op: OpInvalidSession, D: json.RawMessage(`false`)})
		conn.Read(ctx)
	})

	s, _ := newTestSession(t, url)
	if err := runWithTimeout(t, s); !errors.Is(err, ErrReconnect) {
		t.Fatalf("first Run = %v", err)
	}
	if err := runWithTimeout(t, s); !errors.Is(err, ErrReconnect) {
		t.Fatalf("second Run = %v", err)
	}
	if s.SessionID() != "" || s.Sequence() != 0 {
		t.Errorf("session not reset: id=%q seq=%d", s.SessionID(), s.Sequence())
	}
}

func TestSession_HeartbeatAcked(t *testing.T) {
	url := serveGateway(t, func(t *testing.T, ctx context.Context, conn *websocket.Conn, _ int) {
		send(t, ctx, conn, helloFrame(20))
		recv(t, ctx, conn) // identify
		send(t, ctx, conn, Frame{Op: OpDispatch, S: seq(3), T: "GUILD_CREATE", D: json.RawMessage(`{}`)})

		for i := 0; i < 3; i++ {
			f := recv(t, ctx, conn)
			if f.Op != OpHeartbeat {
				t.Errorf("op = %d, want heartbeat", f.Op)
				return
			}
			if i == 2 && string(f.D) != "3" {
				t.Errorf("heartbeat d = %s, want 3", f.D)
			}
			send(t, ctx, conn, Frame{Op: OpHeartbeatAck})
		}
		send(t, ctx, conn, Frame{Op: OpReconnect})
		conn.Read(ctx)
	})

	s, _ := newTestSession(t, url)
	if err := runWithTimeout(t, s); !errors.Is(err, ErrReconnect) {
		t.Errorf("Run = %v, want ErrReconnect", err)
	}
}

func TestSession_ServerRequestedHeartbeat(t *testing.T) {
	url := serveGateway(t, func(t *testing.T, ctx context.Context, conn *websocket.Conn, _ int) {
		send(t, ctx, conn, helloFrame(60000))
		recv(t, ctx, conn)
		send(t, ctx, conn, Frame{Op: OpHeartbeat})
		if f := recv(t, ctx, conn); f.Op != OpHeartbeat || string(f.D) != "null" {
			t.Errorf("frame = op %d d %s, want heartbeat null", f.Op, f.D)
		}
		send(t, ctx, conn, Frame{Op: OpReconnect})
		conn.Read(ctx)
	})

	s, _ := newTestSession(t, url)
	if err := runWithTimeout(t, s); !errors.Is(err, ErrReconnect) {
		t.Errorf("Run = %v, want ErrReconnect", err)
	}
}

func TestSession_Zombie(t *testing.T) {
	url := serveGateway(t, func(t *testing.T, ctx context.Context, conn *websocket.Conn, _ int) {
		send(t, ctx, conn, helloFrame(20))
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})

	s, _ := newTestSession(t, url)
	if err := runWithTimeout(t, s); !errors.Is(err, ErrZombie) {
		t.Errorf("Run = %v, want ErrZombie", err)
	}
}

func TestSession_ExpectsHello(t *testing.T) {
	url := serveGateway(t, func(t *testing.T, ctx context.Context, conn *websocket.Conn, _ int) {
		send(t, ctx, conn, Frame{Op: OpHeartbeatAck})
		conn.Read(ctx)
	})

	s, _ := newTestSession(t, url)
	err := runWithTimeout(t, s)
	if err == nil || !strings.Contains(err.Error(), "expected hello") {
		t.Errorf("Run = %v, want hello error", err)
	}
}

func TestSession_ContextCancel(t *testing.T) {
	url := serveGateway(t, func(t *testing.T, ctx context.Context, conn *websocket.Conn, _ int) {
		send(t, ctx, conn, helloFrame(60000))
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})

	s, _ := newTestSession(t, url)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if errors.Is(err, ErrReconnect) || errors.Is(err, ErrZombie) {
			t.Errorf("Run = %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDialURL(t *testing.T) {
	s, _ := newTestSession(t, "wss://gateway.example")
	got, err := s.dialURL()
	if err != nil {
		t.Fatal(err)
	}
	if got != "wss://gateway.example?encoding=json&v=10" {
		t.Errorf("dialURL = %q", got)
	}

	s.sessionID = "x"
	s.resumeURL = "wss://resume.example"
	got, _ = s.dialURL()
	if !strings.HasPrefix(got, "wss://resume.example?") {
		t.Errorf("resume dialURL = %q", got)
	}
}
