package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/snarg/scribe-engine/internal/assemblyai"
)

const (
	watchWriteTimeout = 10 * time.Second
	watchPongWait     = 60 * time.Second
	watchPingPeriod   = watchPongWait * 9 / 10
)

type watcherCount struct{ n atomic.Int64 }

// WatchFrame is one status message pushed over /api/aai/watch.
type WatchFrame struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text,omitempty"`
	Error  string `json:"error,omitempty"`
}

func frameFor(id string, tr *assemblyai.Transcript) WatchFrame {
	return WatchFrame{ID: id, Status: tr.Status, Text: tr.Text, Error: tr.Error}
}

// Watch handles GET /api/aai/watch?id=<job> as a WebSocket.
// A frame is pushed on every status change until the job is terminal; the
// socket is then closed normally. Closing the socket from the client side
// stops the server-side polling.
func (h *AAIHandler) Watch(w http.ResponseWriter, r *http.Request) {
	id, ok := QueryStringAliased(r, "id")
	if !ok {
		WriteError(w, http.StatusBadRequest, "id is required")
		return
	}
	if !h.configured(w) {
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(h.origins, r.Header.Get("Origin"))
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	h.watchers.n.Add(1)
	defer h.watchers.n.Add(-1)

	// Request contexts are not cancelled once the connection is hijacked, so
	// a reader goroutine watches for the client going away.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(watchPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(watchPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(watchPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(watchWriteTimeout)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	send := func(f WatchFrame) error {
		conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
		return conn.WriteJSON(f)
	}

	var writeErr error
	_, _, err = h.poller.Wait(ctx, id, func(tr *assemblyai.Transcript) {
		if writeErr != nil {
			return
		}
		if writeErr = send(frameFor(id, tr)); writeErr != nil {
			cancel()
		}
	})

	switch {
	case writeErr != nil || errors.Is(err, context.Canceled):
		h.log.Debug().Str("transcript_id", id).Msg("watch client went away")
		return
	case errors.Is(err, assemblyai.ErrPollExhausted):
		send(WatchFrame{ID: id, Status: "timeout", Error: "transcript not finished, reconnect to keep watching"})
	case err != nil:
		h.log.Warn().Err(err).Str("transcript_id", id).Msg("watch polling failed")
		send(WatchFrame{ID: id, Status: assemblyai.StatusError, Error: err.Error()})
	}

	conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
