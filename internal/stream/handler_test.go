package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lexiqai/voice-transcribe/internal/capture"
	"github.com/lexiqai/voice-transcribe/internal/transcribe"
)

type fakeTranscriber struct {
	mu       sync.Mutex
	text     string
	err      error
	payloads []*capture.Payload
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, payload *capture.Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return f.text, f.err
}

func (f *fakeTranscriber) received() []*capture.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*capture.Payload(nil), f.payloads...)
}

func dial(t *testing.T, transcriber transcribe.Transcriber) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(HandleCapture(transcriber))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("Failed to dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func sendEvent(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("Failed to send %s: %v", msg.Event, err)
	}
}

func expect(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ServerMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read server message: %v", err)
	}
	return msg
}

func expectStatus(t *testing.T, conn *websocket.Conn, status string) {
	t.Helper()
	msg := expect(t, conn)
	if msg.Event != EventStatus || msg.Status != status {
		t.Fatalf("Expected status %s, got %+v", status, msg)
	}
}

func TestCapture_FullCycle(t *testing.T) {
	transcriber := &fakeTranscriber{text: "hello world"}
	conn, cleanup := dial(t, transcriber)
	defer cleanup()

	sendEvent(t, conn, ClientMessage{Event: EventStart, MediaType: "audio/ogg"})
	expectStatus(t, conn, "recording")

	conn.WriteMessage(websocket.BinaryMessage, []byte("abc"))
	conn.WriteMessage(websocket.BinaryMessage, []byte("def"))
	sendEvent(t, conn, ClientMessage{Event: EventStop})

	expectStatus(t, conn, "transcribing")
	expectStatus(t, conn, "idle")

	msg := expect(t, conn)
	if msg.Event != EventTranscript || msg.Text == nil || *msg.Text != "hello world" {
		t.Fatalf("Expected transcript 'hello world', got %+v", msg)
	}

	payloads := transcriber.received()
	if len(payloads) != 1 {
		t.Fatalf("Expected one upload, got %d", len(payloads))
	}
	if string(payloads[0].Data) != "abcdef" {
		t.Errorf("Expected payload 'abcdef', got '%s'", payloads[0].Data)
	}
	if payloads[0].MediaType != "audio/ogg" {
		t.Errorf("Expected media type audio/ogg, got %s", payloads[0].MediaType)
	}
}

func TestCapture_DefaultMediaType(t *testing.T) {
	transcriber := &fakeTranscriber{text: "ok"}
	conn, cleanup := dial(t, transcriber)
	defer cleanup()

	sendEvent(t, conn, ClientMessage{Event: EventStart})
	expectStatus(t, conn, "recording")
	conn.WriteMessage(websocket.BinaryMessage, []byte("abc"))
	sendEvent(t, conn, ClientMessage{Event: EventStop})

	expectStatus(t, conn, "transcribing")
	expectStatus(t, conn, "idle")
	expect(t, conn)

	if payloads := transcriber.received(); len(payloads) != 1 || payloads[0].MediaType != capture.DefaultMediaType {
		t.Errorf("Expected one %s payload, got %v", capture.DefaultMediaType, payloads)
	}
}

func TestCapture_NoAudio(t *testing.T) {
	transcriber := &fakeTranscriber{}
	conn, cleanup := dial(t, transcriber)
	defer cleanup()

	sendEvent(t, conn, ClientMessage{Event: EventStart})
	expectStatus(t, conn, "recording")
	sendEvent(t, conn, ClientMessage{Event: EventStop})
	expectStatus(t, conn, "idle")

	msg := expect(t, conn)
	if msg.Event != EventError || msg.Kind != "no_audio" {
		t.Fatalf("Expected no_audio error, got %+v", msg)
	}
	if len(transcriber.received()) != 0 {
		t.Error("Expected no upload")
	}
}

func TestCapture_Cancel(t *testing.T) {
	transcriber := &fakeTranscriber{}
	conn, cleanup := dial(t, transcriber)
	defer cleanup()

	sendEvent(t, conn, ClientMessage{Event: EventStart})
	expectStatus(t, conn, "recording")
	conn.WriteMessage(websocket.BinaryMessage, []byte("abc"))
	sendEvent(t, conn, ClientMessage{Event: EventCancel})
	expectStatus(t, conn, "idle")

	// Nothing left to stop
	sendEvent(t, conn, ClientMessage{Event: EventStop})
	msg := expect(t, conn)
	if msg.Event != EventError || msg.Kind != "not_recording" {
		t.Fatalf("Expected not_recording error, got %+v", msg)
	}
	if len(transcriber.received()) != 0 {
		t.Error("Expected no upload after cancel")
	}
}

func TestCapture_DisconnectDiscardsRecording(t *testing.T) {
	transcriber := &fakeTranscriber{text: "unused"}
	accepted := make(chan *connection, 1)
	done := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		defer ws.Close()

		c := newConnection(ws, transcriber)
		accepted <- c
		c.serve()
		close(done)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	c := <-accepted

	sendEvent(t, conn, ClientMessage{Event: EventStart})
	expectStatus(t, conn, "recording")
	conn.WriteMessage(websocket.BinaryMessage, []byte("abc"))
	conn.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Connection was not torn down after the peer went away")
	}

	if c.coordinator.Status() != transcribe.StatusIdle {
		t.Errorf("Expected status idle, got %s", c.coordinator.Status())
	}
	c.device.mu.Lock()
	held := c.device.recorder != nil
	c.device.mu.Unlock()
	if held {
		t.Error("Expected the peer stream to be released")
	}
	if c.device.deliver([]byte("late")) {
		t.Error("Expected frames after disconnect to be dropped")
	}
	if len(transcriber.received()) != 0 {
		t.Error("Expected no upload after disconnect")
	}
}

func TestCapture_ServiceError(t *testing.T) {
	transcriber := &fakeTranscriber{err: errors.New("backend down")}
	conn, cleanup := dial(t, transcriber)
	defer cleanup()

	sendEvent(t, conn, ClientMessage{Event: EventStart})
	expectStatus(t, conn, "recording")
	conn.WriteMessage(websocket.BinaryMessage, []byte("abc"))
	sendEvent(t, conn, ClientMessage{Event: EventStop})
	expectStatus(t, conn, "transcribing")
	expectStatus(t, conn, "idle")

	msg := expect(t, conn)
	if msg.Event != EventError || msg.Kind != "service" {
		t.Fatalf("Expected service error, got %+v", msg)
	}
}

func TestCapture_StartWhileRecording(t *testing.T) {
	conn, cleanup := dial(t, &fakeTranscriber{})
	defer cleanup()

	sendEvent(t, conn, ClientMessage{Event: EventStart})
	expectStatus(t, conn, "recording")
	sendEvent(t, conn, ClientMessage{Event: EventStart})

	msg := expect(t, conn)
	if msg.Event != EventError || msg.Kind != "busy" {
		t.Fatalf("Expected busy error, got %+v", msg)
	}
}

func TestCapture_FramesOutsideRecordingAreDropped(t *testing.T) {
	transcriber := &fakeTranscriber{text: "ok"}
	conn, cleanup := dial(t, transcriber)
	defer cleanup()

	conn.WriteMessage(websocket.BinaryMessage, []byte("early"))
	sendEvent(t, conn, ClientMessage{Event: EventStart})
	expectStatus(t, conn, "recording")
	conn.WriteMessage(websocket.BinaryMessage, []byte("abc"))
	sendEvent(t, conn, ClientMessage{Event: EventStop})
	conn.WriteMessage(websocket.BinaryMessage, []byte("late"))

	expectStatus(t, conn, "transcribing")
	expectStatus(t, conn, "idle")
	expect(t, conn)

	if payloads := transcriber.received(); len(payloads) != 1 || string(payloads[0].Data) != "abc" {
		t.Errorf("Expected only 'abc' to be uploaded, got %v", payloads)
	}
}

func TestCapture_UnknownEvent(t *testing.T) {
	conn, cleanup := dial(t, &fakeTranscriber{})
	defer cleanup()

	sendEvent(t, conn, ClientMessage{Event: "pause"})
	msg := expect(t, conn)
	if msg.Event != EventError || msg.Kind != "protocol" {
		t.Fatalf("Expected protocol error, got %+v", msg)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{capture.ErrPermissionDenied, "permission_denied"},
		{capture.ErrDeviceUnavailable, "device_unavailable"},
		{capture.ErrNoAudioCaptured, "no_audio"},
		{capture.ErrNotRecording, "not_recording"},
		{transcribe.ErrBusy, "busy"},
		{&transcribe.ServiceError{StatusCode: 500, Detail: "boom"}, "service"},
		{errors.New("other"), "internal"},
	}
	for _, tt := range tests {
		if got := errorKind(tt.err); got != tt.want {
			t.Errorf("errorKind(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
