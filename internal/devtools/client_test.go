package devtools

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

// fakeBrowser serves a DevTools-shaped WebSocket endpoint whose
// responses are scripted per method.
type fakeBrowser struct {
	t        *testing.T
	upgrader websocket.Upgrader
	handlers map[string]func(msg wireMessage) wireMessage
	// pushEvents are sent after the first command arrives.
	pushEvents []wireMessage
}

func (f *fakeBrowser) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()

	pushed := false
	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		if !pushed {
			for _, ev := range f.pushEvents {
				conn.WriteJSON(ev)
			}
			pushed = true
		}

		h, ok := f.handlers[msg.Method]
		if !ok {
			conn.WriteJSON(wireMessage{ID: msg.ID, Error: &CommandError{Code: -32601, Message: "method not found"}})
			continue
		}
		reply := h(msg)
		reply.ID = msg.ID
		conn.WriteJSON(reply)
	}
}

func startFake(t *testing.T, f *fakeBrowser) *Client {
	t.Helper()
	f.t = t
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := NewClient(wsURL, 0, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_CallRoundTrip(t *testing.T) {
	c := startFake(t, &fakeBrowser{
		handlers: map[string]func(wireMessage) wireMessage{
			"Target.getTargets": func(wireMessage) wireMessage {
				return wireMessage{Result: json.RawMessage(
					`{"targetInfos":[{"targetId":"t1","type":"page","url":"https://lms.example/course"}]}`)}
			},
		},
	})

	targets, err := c.GetTargets(context.Background())
	if err != nil {
		t.Fatalf("GetTargets: %v", err)
	}
	if len(targets) != 1 || targets[0].TargetID != "t1" {
		t.Errorf("unexpected targets: %+v", targets)
	}
}

func TestClient_CommandError(t *testing.T) {
	c := startFake(t, &fakeBrowser{
		handlers: map[string]func(wireMessage) wireMessage{
			"Page.enable": func(wireMessage) wireMessage {
				return wireMessage{Error: &CommandError{Code: -32000, Message: "no session"}}
			},
		},
	})

	err := c.EnablePage(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error from browser-side failure")
	}
	if !strings.Contains(err.Error(), "no session") {
		t.Errorf("error %q does not carry browser message", err)
	}
}

func TestClient_EvaluateException(t *testing.T) {
	c := startFake(t, &fakeBrowser{
		handlers: map[string]func(wireMessage) wireMessage{
			"Runtime.evaluate": func(wireMessage) wireMessage {
				return wireMessage{Result: json.RawMessage(
					`{"result":{"type":"object"},"exceptionDetails":{"text":"Uncaught","exception":{"description":"ReferenceError: nope"}}}`)}
			},
		},
	})

	err := c.Evaluate(context.Background(), "s1", 0, "nope()", nil)
	if err == nil || !strings.Contains(err.Error(), "ReferenceError") {
		t.Errorf("expected exception error, got %v", err)
	}
}

func TestClient_EventDelivery(t *testing.T) {
	c := startFake(t, &fakeBrowser{
		handlers: map[string]func(wireMessage) wireMessage{
			"Page.enable": func(wireMessage) wireMessage {
				return wireMessage{Result: json.RawMessage(`{}`)}
			},
		},
		pushEvents: []wireMessage{
			{Method: "Page.frameNavigated", Params: json.RawMessage(`{"frame":{"id":"f1"}}`)},
		},
	})

	if err := c.EnablePage(context.Background(), ""); err != nil {
		t.Fatalf("EnablePage: %v", err)
	}

	select {
	case ev := <-c.Events():
		if ev.Method != "Page.frameNavigated" {
			t.Errorf("event method = %q", ev.Method)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestClient_CallContextCancelled(t *testing.T) {
	c := startFake(t, &fakeBrowser{
		handlers: map[string]func(wireMessage) wireMessage{},
	})
	// No handler for this method; the fake replies with an error, so
	// use a pre-cancelled context against a method it never answers by
	// cancelling before the reply can win the select.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Call(ctx, "", "Browser.close", nil, nil)
	if err == nil {
		t.Fatal("expected error with cancelled context")
	}
}

func TestClient_CallTimeoutConfigurable(t *testing.T) {
	// The fake's read loop is synchronous, so a slow handler stalls the
	// reply past the client's deadline.
	f := &fakeBrowser{
		t: t,
		handlers: map[string]func(wireMessage) wireMessage{
			"Page.enable": func(wireMessage) wireMessage {
				time.Sleep(200 * time.Millisecond)
				return wireMessage{Result: json.RawMessage(`{}`)}
			},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(srv.Close)

	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), 20*time.Millisecond, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	err := c.EnablePage(context.Background(), "")
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("err = %v, want call timeout", err)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	if got := NormalizeEndpoint("127.0.0.1:9222"); got != "http://127.0.0.1:9222" {
		t.Errorf("NormalizeEndpoint = %q", got)
	}
	if got := NormalizeEndpoint("http://localhost:9222"); got != "http://localhost:9222" {
		t.Errorf("NormalizeEndpoint mangled scheme: %q", got)
	}
}
