// Package stream accepts remote capture over WebSocket. Each connection acts
// as the microphone for its own transcription coordinator.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-transcribe/internal/observability"
	"github.com/lexiqai/voice-transcribe/internal/transcribe"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Browser peers are served from other origins
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// HandleCapture is the entry point for /streams/capture connections
func HandleCapture(transcriber transcribe.Transcriber) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied to the client
			logger := observability.WithComponent("stream")
			logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}
		defer conn.Close()

		c := newConnection(conn, transcriber)
		c.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Capture connection established")
		c.serve()
		c.logger.Info().Msg("Capture connection closed")
	}
}

// connection holds the state of one peer
type connection struct {
	conn        *websocket.Conn
	device      *peerDevice
	coordinator *transcribe.Coordinator
	logger      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

func newConnection(conn *websocket.Conn, transcriber transcribe.Transcriber) *connection {
	correlationID := observability.NewCorrelationID()
	ctx, cancel := context.WithCancel(context.Background())

	c := &connection{
		conn:   conn,
		device: &peerDevice{},
		logger: observability.WithCorrelationID(correlationID).With().Str("component", "stream").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
	c.coordinator = transcribe.NewCoordinator(c.device, transcriber, transcribe.Options{
		Metrics:  observability.NewMetrics("stream"),
		Observer: c,
	})
	return c
}

// serve reads peer frames until the connection closes
func (c *connection) serve() {
	defer func() {
		c.device.close()
		transcribing := c.coordinator.IsTranscribing()
		if err := c.coordinator.CancelRecording(); err == nil {
			c.logger.Info().Bool("transcribing", transcribing).Msg("Recording discarded on disconnect")
		}
		c.cancel()
		c.wg.Wait()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if !c.device.deliver(data) {
				c.logger.Debug().Int("bytes", len(data)).Msg("Dropping audio frame outside a recording")
			}

		case websocket.TextMessage:
			var msg ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to parse peer message")
				c.send(ServerMessage{Event: EventError, Error: "malformed message", Kind: "protocol"})
				continue
			}
			c.handleEvent(msg)
		}
	}
}

func (c *connection) handleEvent(msg ClientMessage) {
	switch msg.Event {
	case EventStart:
		c.device.setMediaType(msg.MediaType)
		if err := c.coordinator.StartRecording(c.ctx); err != nil {
			c.sendError(err)
		}

	case EventStop:
		// Frames after the stop event belong to no recording
		c.device.halt()
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if _, err := c.coordinator.StopAndTranscribe(c.ctx); err != nil {
				c.sendError(err)
			}
		}()

	case EventCancel:
		if err := c.coordinator.CancelRecording(); err != nil {
			c.sendError(err)
		}

	default:
		c.logger.Warn().Str("event", msg.Event).Msg("Unknown peer event")
		c.send(ServerMessage{Event: EventError, Error: "unknown event " + msg.Event, Kind: "protocol"})
	}
}

// StatusChanged implements transcribe.Observer
func (c *connection) StatusChanged(status transcribe.Status) {
	c.send(ServerMessage{Event: EventStatus, Status: status.String()})
}

// Transcribed implements transcribe.Observer
func (c *connection) Transcribed(text string) {
	c.send(ServerMessage{Event: EventTranscript, Text: &text})
}

func (c *connection) sendError(err error) {
	if errors.Is(err, transcribe.ErrCancelled) {
		return
	}
	c.send(ServerMessage{Event: EventError, Error: err.Error(), Kind: errorKind(err)})
}

func (c *connection) send(msg ServerMessage) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug().Err(err).Str("event", msg.Event).Msg("Failed to send message")
	}
}
