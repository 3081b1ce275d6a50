// Package gateway serves the browser extension's WebSocket: audio frames in,
// transcript, segment and suggestion events out.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vrcneta/topic-gateway/internal/apperr"
	"github.com/vrcneta/topic-gateway/internal/audio"
	"github.com/vrcneta/topic-gateway/internal/capture"
	"github.com/vrcneta/topic-gateway/internal/observability"
	"github.com/vrcneta/topic-gateway/internal/origin"
	"github.com/vrcneta/topic-gateway/internal/segment"
	"github.com/vrcneta/topic-gateway/internal/session"
	"github.com/vrcneta/topic-gateway/internal/suggestion"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
	closeTimeout = 30 * time.Second
)

// StreamHandler upgrades connections and runs one session controller per
// connection. The transcription provider, generator and stores are shared.
type StreamHandler struct {
	options  session.Options
	deps     session.Dependencies
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*clientConn]*session.Controller
	closing  bool
	active   sync.WaitGroup
}

// NewStreamHandler creates a handler. deps.Capture is ignored; each
// connection captures from the frames its client pushes. A nil origins
// admits extension pages only.
func NewStreamHandler(options session.Options, deps session.Dependencies, origins *origin.Policy, logger zerolog.Logger) *StreamHandler {
	if origins == nil {
		origins = origin.NewPolicy(nil)
	}

	return &StreamHandler{
		options:  options,
		deps:     deps,
		logger:   observability.WithComponent(logger, "gateway"),
		sessions: make(map[*clientConn]*session.Controller),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return origins.Allowed(r.Header.Get("Origin"))
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP implements http.Handler
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closing := h.closing
	h.mu.Unlock()
	if closing {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()

	logger := observability.WithConnectionID(h.logger, "")
	client := newClientConn(conn, logger)
	provider := capture.NewPushProvider()

	deps := h.deps
	deps.Capture = provider
	controller := session.NewController(h.options, deps, client, logger)

	if !h.track(client, controller) {
		logger.Warn().Msg("Rejecting connection during shutdown")
		client.close()
		return
	}
	defer h.untrack(client)

	logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Extension connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go client.pingLoop(ctx)

	client.readLoop(ctx, controller, provider)

	// Let the final suggestion request land before the socket goes away
	closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
	defer closeCancel()
	if err := controller.Close(closeCtx); err != nil {
		logger.Warn().Err(err).Msg("Session did not close cleanly")
	}
	provider.Close()
	client.close()

	logger.Info().Msg("Extension disconnected")
}

func (h *StreamHandler) track(client *clientConn, controller *session.Controller) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closing {
		return false
	}
	h.sessions[client] = controller
	h.active.Add(1)
	return true
}

func (h *StreamHandler) untrack(client *clientConn) {
	h.mu.Lock()
	delete(h.sessions, client)
	h.mu.Unlock()
	h.active.Done()
}

// Shutdown refuses new connections, ends every live session so its final
// segment, suggestion request and conversation record are written, then
// closes the connections and waits for their handlers to return.
func (h *StreamHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	sessions := make(map[*clientConn]*session.Controller, len(h.sessions))
	for client, controller := range h.sessions {
		sessions[client] = controller
	}
	h.mu.Unlock()

	h.logger.Info().Int("connections", len(sessions)).Msg("Closing extension sessions")

	var wg sync.WaitGroup
	for client, controller := range sessions {
		wg.Add(1)
		go func(client *clientConn, controller *session.Controller) {
			defer wg.Done()
			if err := controller.Close(ctx); err != nil {
				client.logger.Warn().Err(err).Msg("Session did not close cleanly")
			}
			client.shutdown()
		}(client, controller)
	}
	wg.Wait()

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// clientConn is one extension connection. It is the session observer:
// every callback becomes a ServerMessage, and writes after close are dropped.
type clientConn struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex
	closed  bool
}

func newClientConn(conn *websocket.Conn, logger zerolog.Logger) *clientConn {
	return &clientConn{conn: conn, logger: logger}
}

func (c *clientConn) readLoop(ctx context.Context, controller *session.Controller, provider *capture.PushProvider) {
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to parse client message")
			c.sendError("", apperr.Wrap(err, apperr.InvalidArgument, "malformed message"))
			continue
		}

		switch msg.Event {
		case EventStart:
			c.handleStart(ctx, controller, provider, msg.Start)

		case EventMedia:
			c.handleMedia(provider, msg.Media)

		case EventStop:
			if err := controller.Stop(ctx); err != nil {
				c.logger.Error().Err(err).Msg("Failed to stop session")
			}

		default:
			c.logger.Warn().Str("event", msg.Event).Msg("Unknown client event")
			c.sendError("", apperr.Newf(apperr.InvalidArgument, "unknown event %q", msg.Event))
		}
	}
}

func (c *clientConn) handleStart(ctx context.Context, controller *session.Controller, provider *capture.PushProvider, start *StartPayload) {
	// A start for a live session must not leave its failure or format
	// behind for the next one
	if start != nil && controller.State() == session.StateIdle {
		if start.Error != "" {
			provider.Fail(capture.ErrorFromDOMException(start.Error))
		} else {
			provider.SetFormat(start.SampleRate, capture.Encoding(start.Encoding))
		}
	}

	// Start publishes its own failures through the observer
	if _, err := controller.Start(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("Session start failed")
	}
}

func (c *clientConn) handleMedia(provider *capture.PushProvider, media *MediaPayload) {
	if media == nil {
		return
	}

	chunk := media.Payload
	if chunk == "" {
		chunk = media.Chunk
	}
	if chunk == "" {
		c.logger.Debug().Msg("Media event missing payload")
		return
	}

	data, err := base64.StdEncoding.DecodeString(chunk)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to decode base64 audio")
		return
	}

	if err := provider.Push(data); err != nil {
		if errors.Is(err, capture.ErrNoStream) || errors.Is(err, audio.ErrStreamClosed) {
			return
		}
		c.logger.Warn().Err(err).Msg("Dropped malformed audio frame")
	}
}

func (c *clientConn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			if c.closed {
				c.writeMu.Unlock()
				return
			}
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *clientConn) send(msg ServerMessage) {
	msg.Timestamp = time.Now().UnixMilli()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug().Err(err).Str("event", msg.Event).Msg("Failed to write message")
	}
}

func (c *clientConn) sendError(sessionID string, err *apperr.Error) {
	c.send(ServerMessage{
		Event:     EventError,
		SessionID: sessionID,
		Error:     errorPayload(err),
	})
}

// shutdown sends a going-away close frame and drops the connection so a
// blocked read returns
func (c *clientConn) shutdown() {
	c.writeMu.Lock()
	if !c.closed {
		c.closed = true
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(time.Second))
	}
	c.writeMu.Unlock()

	c.conn.Close()
}

func (c *clientConn) close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

// OnTranscriptUpdate implements session.Observer
func (c *clientConn) OnTranscriptUpdate(update session.TranscriptUpdate) {
	c.send(ServerMessage{
		Event:     EventTranscript,
		SessionID: update.SessionID,
		Transcript: &TranscriptPayload{
			Text:    update.Text,
			IsFinal: update.IsFinal,
			Live:    update.Live,
		},
	})
}

// OnSegmentCreated implements session.Observer
func (c *clientConn) OnSegmentCreated(seg segment.Segment) {
	c.send(ServerMessage{
		Event:     EventSegment,
		SessionID: seg.SessionID,
		Segment:   &seg,
	})
}

// OnSuggestions implements session.Observer
func (c *clientConn) OnSuggestions(set *suggestion.Set) {
	c.send(ServerMessage{
		Event:       EventSuggestions,
		SessionID:   set.SessionID,
		Suggestions: set,
	})
}

// OnRecordingStateChanged implements session.Observer
func (c *clientConn) OnRecordingStateChanged(change session.StateChange) {
	c.send(ServerMessage{
		Event:     EventState,
		SessionID: change.SessionID,
		State: &StatePayload{
			State:     string(change.State),
			StartedAt: change.StartedAt,
			ElapsedMs: change.Elapsed.Milliseconds(),
		},
	})
}

// OnError implements session.Observer
func (c *clientConn) OnError(sessionID string, err *apperr.Error) {
	c.sendError(sessionID, err)
}
