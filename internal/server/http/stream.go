package httpserver

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/and161185/thermolink/internal/convert"
)

const (
	eventHistorical = "historical"
	eventUpdate     = "update"
)

// streamReports serves the replay window followed by live reports as SSE.
func (s *Server) streamReports(c *gin.Context) {
	id, err := pathID(c, "device_id")
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	ctx := c.Request.Context()
	st, err := s.reports.OpenStream(ctx, mustUser(c), id)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	defer st.Close()

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	hist := st.History()
	seen := make(map[string]struct{}, len(hist))
	for _, r := range hist {
		data, err := json.Marshal(convert.ToAPIReport(r))
		if err != nil {
			s.log.Error("encode historical report", zap.Error(err))
			return
		}
		c.SSEvent(eventHistorical, string(data))
		seen[r.ID.String()] = struct{}{}
	}
	c.Writer.Flush()

	ticker := time.NewTicker(s.opts.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-st.Updates():
			if !ok {
				return
			}
			// Published between subscribe and the history read.
			if _, dup := seen[m.ID]; dup {
				delete(seen, m.ID)
				continue
			}
			if !st.Owned(m) {
				s.log.Info("device owner changed, ending stream",
					zap.String("device_id", st.DeviceID().String()))
				return
			}
			c.SSEvent(eventUpdate, string(m.Data))
			c.Writer.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(c.Writer, ": keep-alive\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
