package uichannel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu       sync.Mutex
	commands []DeviceCommand
	events   []DeviceEvent
	notify   chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{notify: make(chan struct{}, 16)}
}

func (s *recordingSink) OnDeviceCommand(deviceID string, cmd DeviceCommand) {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
	s.notify <- struct{}{}
}

func (s *recordingSink) OnDeviceEvent(deviceID string, event DeviceEvent) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	s.notify <- struct{}{}
}

func (s *recordingSink) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.notify:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for sink delivery")
	}
}

// startPair wires a link and a client over an in-memory pipe.
func startPair(t *testing.T, linkCfg LinkConfig, clientCfg ClientConfig) (*Link, *Client) {
	t.Helper()

	serverConn, clientConn := NewPipe()

	link := NewLink("dev1", serverConn, linkCfg)
	link.Start()
	t.Cleanup(link.Close)

	client := NewClient(clientCfg)
	client.Attach(clientConn)
	t.Cleanup(client.Close)

	return link, client
}

func TestRequestResponse(t *testing.T) {
	link, _ := startPair(t,
		LinkConfig{HeartbeatInterval: -1},
		ClientConfig{
			OnServerRequest: func(req ServerRequest) (interface{}, error) {
				if req.RequestType != "echo_request" {
					return nil, errors.New("unexpected type")
				}
				return map[string]string{"echo": "ok"}, nil
			},
		})

	data, err := link.Request(context.Background(), "echo_request", map[string]int{"n": 1})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	var result map[string]string
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result["echo"] != "ok" {
		t.Errorf("unexpected response: %v", result)
	}
	if link.PendingCount() != 0 {
		t.Errorf("pending table not drained: %d", link.PendingCount())
	}
}

func TestRequestUIError(t *testing.T) {
	link, _ := startPair(t,
		LinkConfig{HeartbeatInterval: -1},
		ClientConfig{
			OnServerRequest: func(ServerRequest) (interface{}, error) {
				return nil, errors.New("user said no")
			},
		})

	_, err := link.Request(context.Background(), "anything", nil)
	var respErr *ResponseError
	if !errors.As(err, &respErr) {
		t.Fatalf("expected ResponseError, got %v", err)
	}
	if respErr.Message != "user said no" {
		t.Errorf("unexpected message: %q", respErr.Message)
	}
}

func TestRequestTimeout(t *testing.T) {
	serverConn, clientConn := NewPipe()
	defer clientConn.Close()

	link := NewLink("dev1", serverConn, LinkConfig{
		RequestTimeout:    30 * time.Millisecond,
		HeartbeatInterval: -1,
	})
	link.Start()
	defer link.Close()

	// Nobody reads the client end; the request must expire.
	_, err := link.Request(context.Background(), "ignored", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if link.PendingCount() != 0 {
		t.Errorf("expired entry still pending: %d", link.PendingCount())
	}
}

func TestRequestFailsOnClose(t *testing.T) {
	serverConn, _ := NewPipe()

	link := NewLink("dev1", serverConn, LinkConfig{HeartbeatInterval: -1})
	link.Start()

	errCh := make(chan error, 1)
	go func() {
		_, err := link.Request(context.Background(), "ignored", nil)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	link.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("request did not fail on close")
	}
}

func TestCommandAndEventRouting(t *testing.T) {
	sink := newRecordingSink()
	_, client := startPair(t, LinkConfig{HeartbeatInterval: -1, Sink: sink}, ClientConfig{})

	if err := client.SendCommand(CommandSetLocked, map[string]bool{"locked": true}); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	sink.wait(t)

	if err := client.SendEvent("kv_changed", nil); err != nil {
		t.Fatalf("SendEvent: %v", err)
	}
	sink.wait(t)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.commands) != 1 || sink.commands[0].Command != CommandSetLocked {
		t.Errorf("unexpected commands: %+v", sink.commands)
	}
	if len(sink.events) != 1 || sink.events[0].EventType != "kv_changed" {
		t.Errorf("unexpected events: %+v", sink.events)
	}
}

func TestBroadcastReachesClient(t *testing.T) {
	received := make(chan string, 8)
	link, _ := startPair(t, LinkConfig{HeartbeatInterval: -1}, ClientConfig{
		OnBroadcast: func(eventType string, data json.RawMessage) {
			received <- eventType
		},
	})

	link.Broadcast(EventPairingModeStarted, map[string]string{"pairingCode": "12345678"})
	link.Broadcast(EventPairingModeEnded, nil)

	for _, want := range []string{EventPairingModeStarted, EventPairingModeEnded} {
		select {
		case got := <-received:
			if got != want {
				t.Fatalf("broadcast order broken: got %s want %s", got, want)
			}
		case <-time.After(time.Second):
			t.Fatal("broadcast not delivered")
		}
	}
}

func TestHeartbeatRoundTrip(t *testing.T) {
	serverConn, clientConn := NewPipe()

	link := NewLink("dev1", serverConn, LinkConfig{HeartbeatInterval: 10 * time.Millisecond})
	link.Start()
	defer link.Close()

	// Raw peer: expect a heartbeat, answer it by hand.
	deadline := time.After(time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("no heartbeat received")
		default:
		}

		data, err := clientConn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env.Type == TypeHeartbeat {
			break
		}
	}

	// A client auto-answers heartbeats.
	client := NewClient(ClientConfig{})
	client.Attach(clientConn)
	defer client.Close()
}

func TestDuplicateRequestSuppressed(t *testing.T) {
	var calls int
	var mu sync.Mutex

	serverConn, clientConn := NewPipe()
	defer serverConn.Close()

	client := NewClient(ClientConfig{
		OnServerRequest: func(ServerRequest) (interface{}, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			return "ok", nil
		},
	})
	client.Attach(clientConn)
	defer client.Close()

	// Send the same request twice, as a reconnecting server would.
	var ck clock
	req := ServerRequest{RequestID: "req-1", RequestType: "echo_request"}
	for i := 0; i < 2; i++ {
		env, err := newEnvelope(&ck, TypeServerRequest, req)
		if err != nil {
			t.Fatalf("newEnvelope: %v", err)
		}
		raw, _ := json.Marshal(env)
		if err := serverConn.WriteMessage(raw); err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
	}

	// Exactly one response comes back.
	if _, err := serverConn.ReadMessage(); err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
}

func TestRetryQueueDrainsInOrder(t *testing.T) {
	client := NewClient(ClientConfig{
		OnServerRequest: func(req ServerRequest) (interface{}, error) {
			return req.RequestType, nil
		},
	})
	defer client.Close()

	// Detached: responses park in the retry queue.
	for i := 0; i < 3; i++ {
		req := ServerRequest{
			RequestID:   fmt.Sprintf("req-%d", i),
			RequestType: fmt.Sprintf("type-%d", i),
		}
		raw, _ := json.Marshal(req)
		client.handleEnvelope(Envelope{Type: TypeServerRequest, Data: raw})
	}

	if client.RetryQueueLen() != 3 {
		t.Fatalf("expected 3 queued responses, got %d", client.RetryQueueLen())
	}

	serverConn, clientConn := NewPipe()
	defer serverConn.Close()
	client.Attach(clientConn)

	for i := 0; i < 3; i++ {
		data, err := serverConn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		var resp ClientResponse
		if err := json.Unmarshal(env.Data, &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		want := fmt.Sprintf("req-%d", i)
		if resp.RequestID != want {
			t.Fatalf("drain order broken: got %s want %s", resp.RequestID, want)
		}
	}

	if client.RetryQueueLen() != 0 {
		t.Errorf("queue not drained: %d", client.RetryQueueLen())
	}
}

func TestRetryQueueBound(t *testing.T) {
	client := NewClient(ClientConfig{
		OnServerRequest: func(req ServerRequest) (interface{}, error) {
			return nil, nil
		},
	})
	defer client.Close()

	for i := 0; i < MaxRetryQueue+5; i++ {
		req := ServerRequest{RequestID: fmt.Sprintf("req-%d", i)}
		raw, _ := json.Marshal(req)
		client.handleEnvelope(Envelope{Type: TypeServerRequest, Data: raw})
	}

	if client.RetryQueueLen() != MaxRetryQueue {
		t.Fatalf("queue length %d, want %d", client.RetryQueueLen(), MaxRetryQueue)
	}

	// The oldest entries gave way.
	client.mu.Lock()
	var first ClientResponse
	if err := json.Unmarshal(mustData(t, client.retry[0]), &first); err != nil {
		client.mu.Unlock()
		t.Fatalf("unmarshal: %v", err)
	}
	client.mu.Unlock()

	if first.RequestID != "req-5" {
		t.Errorf("expected oldest surviving entry req-5, got %s", first.RequestID)
	}
}

func mustData(t *testing.T, env Envelope) json.RawMessage {
	t.Helper()
	if env.Data == nil {
		t.Fatal("envelope has no data")
	}
	return env.Data
}

func TestTimestampsStrictlyIncrease(t *testing.T) {
	var ck clock
	last := int64(0)
	for i := 0; i < 100; i++ {
		ts := ck.next()
		if ts <= last {
			t.Fatalf("timestamp did not increase: %d then %d", last, ts)
		}
		last = ts
	}
}

func TestHubReplacesLinkOnReconnect(t *testing.T) {
	hub := NewHub(HubConfig{HeartbeatInterval: -1})
	defer hub.Stop()

	connA, _ := NewPipe()
	linkA, err := hub.Attach("dev1", connA)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	connB, _ := NewPipe()
	linkB, err := hub.Attach("dev1", connB)
	if err != nil {
		t.Fatalf("second Attach: %v", err)
	}

	select {
	case <-linkA.Done():
	case <-time.After(time.Second):
		t.Fatal("old link not closed on reconnect")
	}

	got, ok := hub.Link("dev1")
	if !ok || got != linkB {
		t.Error("hub does not hold the new link")
	}
}
