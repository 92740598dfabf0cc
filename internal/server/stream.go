// internal/server/stream.go
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/keepbreathing/internal/logstore"
)

const writeTimeout = 5 * time.Second

// handleSubscribe upgrades to a WebSocket and streams the game's entries
// from ?from= onward, one JSON entry per message. The stream ends with a
// normal closure when the client goes away and StatusGoingAway when the
// store shuts down.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	gameID, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	from, err := parseFrom(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     s.AllowOrigins,
		InsecureSkipVerify: len(s.AllowOrigins) == 0,
	})
	if err != nil {
		s.log.WithError(err).Warn("WebSocket accept failed")
		return
	}
	defer c.CloseNow()

	log := s.log.WithFields(logrus.Fields{"game": gameID, "from": from, "remote": r.RemoteAddr})
	// Clients never send; CloseRead handles control frames and cancels ctx
	// when the peer hangs up.
	ctx := c.CloseRead(r.Context())

	sub, err := s.store.Subscribe(ctx, gameID, from)
	if errors.Is(err, logstore.ErrClosed) {
		c.Close(websocket.StatusGoingAway, "store closed")
		return
	}
	if err != nil {
		log.WithError(err).Error("Subscribe failed")
		c.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer sub.Close()
	log.Debug("Stream opened")

	ping := time.NewTicker(s.PingInterval)
	defer ping.Stop()
	for {
		select {
		case e, ok := <-sub.Entries():
			if !ok {
				err := sub.Err()
				switch {
				case ctx.Err() != nil:
					log.Debug("Stream closed by client")
				case errors.Is(err, logstore.ErrClosed):
					c.Close(websocket.StatusGoingAway, "store closed")
				default:
					log.WithError(err).Error("Subscription failed")
					c.Close(websocket.StatusInternalError, "subscription failed")
				}
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c, e)
			cancel()
			if err != nil {
				log.WithError(err).Debug("Stream write failed")
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(pctx)
			cancel()
			if err != nil {
				log.WithError(err).Debug("Ping failed")
				return
			}
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}
