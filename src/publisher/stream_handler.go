package publisher

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// StreamHandler serves GET /sessions: newline-delimited change records,
// resumable with ?from=<seq> (spec.md §6), using the teacher's chunked
// http.Flusher streaming pattern from HandleWatchDirectory.
func (p *Publisher) StreamHandler(log *logrus.Entry) gin.HandlerFunc {
	if log == nil {
		log = p.log
	}
	return func(c *gin.Context) {
		from := int64(0)
		if v := c.Query("from"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from parameter"})
				return
			}
			from = n
		}

		c.Writer.Header().Set("Content-Type", "application/json")
		c.Writer.Header().Set("Transfer-Encoding", "chunked")
		c.Writer.Header().Set("X-Accel-Buffering", "no")
		c.Writer.WriteHeader(http.StatusOK)

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			return
		}

		sub := p.Subscribe()
		defer sub.Unsubscribe()

		writeLine := func(rec Record) error {
			line, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if _, err := c.Writer.Write(append(line, '\n')); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		}

		if err := sub.Replay(from, writeLine); err != nil {
			log.WithError(err).Warn("publisher: replay aborted")
			return
		}

		ctx := c.Request.Context()
		head := sub.HeadAtSubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case rec, ok := <-sub.Live():
				if !ok {
					return
				}
				if rec.Seq <= head {
					continue
				}
				if err := writeLine(rec); err != nil {
					return
				}
			}
		}
	}
}
