package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/njarm23/ClaudeMemories/internal/server/chat"
)

// streamSession relays session events as server-sent events until the
// session ends or the client goes away. A departed client detaches so the
// relay still finishes and stores the reply.
func (s *Server) streamSession(w http.ResponseWriter, r *http.Request, sess *chat.Session) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_ = rc.Flush()

	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				s.logger.Debug(r.Context(), "client write failed, detaching", "error", err)
				sess.Detach()
				return
			}
			if err := rc.Flush(); err != nil {
				sess.Detach()
				return
			}
		case <-r.Context().Done():
			s.logger.Debug(r.Context(), "client disconnected mid-stream")
			sess.Detach()
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, ev chat.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
	return err
}
