// WebSocket status stream.
//
// GET /status/ws pushes the health snapshot on connect and then on a fixed
// interval, so operator dashboards can watch breaker and cost state without
// polling. Loopback only, same as the other operational endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
)

// statusStreamInterval is how often the snapshot is pushed to connected
// status stream clients.
const statusStreamInterval = 2 * time.Second

// wsWriteTimeout bounds a single snapshot write so a stalled client cannot
// hold the handler goroutine.
const wsWriteTimeout = 5 * time.Second

func (g *Gateway) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("status stream accept failed")
		return
	}
	defer conn.CloseNow()

	// CloseRead cancels the context when the client goes away; the stream is
	// push-only so inbound frames are discarded.
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(statusStreamInterval)
	defer ticker.Stop()

	if err := g.writeStatusFrame(ctx, conn); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := g.writeStatusFrame(ctx, conn); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) writeStatusFrame(ctx context.Context, conn *websocket.Conn) error {
	data, err := json.Marshal(g.GetStatus())
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
