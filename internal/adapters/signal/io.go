package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, ws *websocket.Conn, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			_ = ws.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait))
			_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := ws.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping failed")
				return
			}
		}
	}
}

// readPump owns the disconnect: whatever ends the loop (clean close,
// abnormal closure, missed pongs, a kick), the consumer leaves its group.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, c *WsSignalConn, cons consumer) {
	id := string(cons.ID())
	defer func() {
		log.Info().Str("module", "signal").Str("conn", id).Msg("readPump closing")
		cancel()
		disconnect(ctx, cons)
		c.Close()
	}()

	ws.SetReadLimit(ctl.opts.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", id).Msg("readPump read error")
			} else {
				log.Debug().Err(err).Str("module", "signal").Str("conn", id).Msg("readPump closed")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
		cons.Receive(ctx, data)
	}
}
