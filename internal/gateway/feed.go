package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"ghostchat/pkg/chat"
	"ghostchat/pkg/logger"
	"ghostchat/pkg/utils"
)

// feed streams the session's decrypted view as server-sent events: one
// `view` event immediately, then one per change signal. The stream ends
// when the client disconnects or the gateway shuts down.
func (g *Gateway) feed(w http.ResponseWriter, r *http.Request) {
	sid := mux.Vars(r)["sid"]
	s, ok := g.session(sid)
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown session")
		return
	}
	fl, ok := w.(http.Flusher)
	if !ok {
		utils.JSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	changed, unsubscribe := s.ViewChanged()
	defer unsubscribe()
	logger.Debug("feed_opened", "session", sid)

	if err := writeViewEvent(w, s); err != nil {
		return
	}
	fl.Flush()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug("feed_closed", "session", sid)
			return
		case <-changed:
			if err := writeViewEvent(w, s); err != nil {
				return
			}
			fl.Flush()
		}
	}
}

func writeViewEvent(w http.ResponseWriter, s *chat.Session) error {
	payload, err := json.Marshal(struct {
		Room     string         `json:"room"`
		State    string         `json:"state"`
		Messages []chat.Message `json:"messages"`
	}{Room: s.Room(), State: string(s.State()), Messages: s.Messages()})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: view\ndata: %s\n\n", payload)
	return err
}
