package publisher

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketHandler serves an optional /sessions/ws companion transport:
// the same Record stream as StreamHandler, framed as individual text
// messages over a gorilla/websocket connection, for browser clients that
// prefer a socket over chunked HTTP (SPEC_FULL.md State Publisher section).
// The newline-delimited HTTP endpoint remains the canonical contract.
func (p *Publisher) WebSocketHandler(log *logrus.Entry) gin.HandlerFunc {
	if log == nil {
		log = p.log
	}
	return func(c *gin.Context) {
		from := int64(0)
		if v := c.Query("from"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				from = n
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.WithError(err).Warn("publisher: websocket upgrade failed")
			return
		}
		defer conn.Close()

		sub := p.Subscribe()
		defer sub.Unsubscribe()

		writeRec := func(rec Record) error {
			return conn.WriteJSON(rec)
		}

		if err := sub.Replay(from, writeRec); err != nil {
			return
		}

		head := sub.HeadAtSubscribe()
		for rec := range sub.Live() {
			if rec.Seq <= head {
				continue
			}
			if err := writeRec(rec); err != nil {
				return
			}
		}
	}
}
