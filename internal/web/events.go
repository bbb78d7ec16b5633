package web

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// isEventsRequest tells whether the wait page asks for build progress. Once the
// stack is up the path belongs to the stack and is proxied like any other.
func isEventsRequest(r *http.Request) bool {
	return r.Method == http.MethodGet && r.URL.Path == EventsPath
}

// streamEvents follows the build of host until it finishes.
func (s *Server) streamEvents(c *gin.Context, host string) {
	sub := s.hub.Subscribe(host)
	defer s.hub.Unsubscribe(sub)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(event.Kind, event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
