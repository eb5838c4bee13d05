package server

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ngenohkevin/procdeck/internal/events"
	"github.com/ngenohkevin/procdeck/internal/logbuf"
)

const (
	streamBuffer      = 256
	heartbeatInterval = 15 * time.Second
	wsWriteTimeout    = 10 * time.Second
)

// Terminal frame types sent by clients
const (
	frameInput     = "input"
	frameHookInput = "hook-input"
	frameError     = "error"
)

// TerminalFrame is a message on the terminal websocket. Clients send input
// frames; the server sends supervisor events and error frames.
type TerminalFrame struct {
	Type    string `json:"type"`
	Data    string `json:"data,omitempty"`
	HookKey string `json:"hookKey,omitempty"`
}

// StreamEvents handles GET /api/events (SSE). The current process list is
// sent first, followed by every supervisor event.
func (h *Handlers) StreamEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	sub := h.manager.Bus().Subscribe(streamBuffer)
	defer h.manager.Bus().Unsubscribe(sub)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()

	c.SSEvent(string(events.TypeListChanged), events.Event{
		Type: events.TypeListChanged,
		Data: h.manager.List(),
		Time: time.Now(),
	})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case e, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(string(e.Type), e)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"time": time.Now().UTC()})
			return true
		case <-h.closing:
			return false
		case <-ctx.Done():
			return false
		}
	})
}

func (h *Handlers) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 32 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(h.cfg.AllowedOrigins, origin)
		},
	}
}

// Terminal handles GET /api/processes/:id/terminal. The buffered log is
// replayed, then output and lifecycle events of the process are forwarded
// live while input frames are written to the process or its hooks.
func (h *Handlers) Terminal(c *gin.Context) {
	id := c.Param("id")

	// subscribe before reading the backlog so no output falls in between
	sub := h.manager.Bus().Subscribe(streamBuffer)
	defer h.manager.Bus().Unsubscribe(sub)

	backlog, err := h.manager.Logs(id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	ws, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[terminal] failed to upgrade %s: %v", id, err)
		return
	}
	defer ws.Close()

	send := func(v interface{}) error {
		_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return ws.WriteJSON(v)
	}

	var lastSeq uint64
	for _, entry := range backlog {
		if err := send(events.Event{Type: events.TypeLog, ProcessID: id, Data: entry, Time: entry.Timestamp}); err != nil {
			return
		}
		lastSeq = entry.Seq
	}

	inputErrs := make(chan string, 8)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		h.readTerminalInput(ws, id, inputErrs)
	}()

	for {
		select {
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if e.ProcessID != id {
				continue
			}
			if replayed(e, lastSeq) {
				continue
			}
			if err := send(e); err != nil {
				return
			}
		case msg := <-inputErrs:
			if err := send(TerminalFrame{Type: frameError, Data: msg}); err != nil {
				return
			}
		case <-readDone:
			return
		case <-h.closing:
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}

// replayed reports whether e is a log entry already sent from the backlog.
// Entries are compared by sequence since timestamps may tie.
func replayed(e events.Event, lastSeq uint64) bool {
	entry, isLog := e.Data.(logbuf.Entry)
	return isLog && entry.Seq <= lastSeq
}

// readTerminalInput forwards client frames until the connection closes
func (h *Handlers) readTerminalInput(ws *websocket.Conn, id string, errs chan<- string) {
	for {
		var frame TerminalFrame
		if err := ws.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[terminal] %s disconnected: %v", id, err)
			}
			return
		}

		var err error
		switch frame.Type {
		case frameInput:
			err = h.manager.WriteInput(id, []byte(frame.Data))
		case frameHookInput:
			err = h.manager.WriteHookInput(frame.HookKey, []byte(frame.Data))
		default:
			err = fmt.Errorf("unknown frame type %q", frame.Type)
		}
		if err != nil {
			select {
			case errs <- err.Error():
			default:
			}
		}
	}
}
