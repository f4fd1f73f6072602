package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"ghostchat/pkg/chat"
	"ghostchat/pkg/logger"
	"ghostchat/pkg/utils"
)

func (g *Gateway) createSession(w http.ResponseWriter, _ *http.Request) {
	s := chat.NewSession(g.st, g.env, g.cfg.Chat)
	g.mu.Lock()
	g.sessions[s.ID()] = s
	g.mu.Unlock()
	_ = utils.JSONWrite(w, http.StatusCreated, map[string]string{"session": s.ID()})
}

func (g *Gateway) closeSession(w http.ResponseWriter, r *http.Request) {
	sid := mux.Vars(r)["sid"]
	g.mu.Lock()
	s, ok := g.sessions[sid]
	delete(g.sessions, sid)
	g.mu.Unlock()
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown session")
		return
	}
	s.Close()
	g.limiter.drop(sid)
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) joinRoom(w http.ResponseWriter, r *http.Request) {
	s, ok := g.session(mux.Vars(r)["sid"])
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown session")
		return
	}
	var req struct {
		Room string `json:"room"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.Join(req.Room); err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"room": req.Room, "state": string(s.State())})
}

func (g *Gateway) leaveRoom(w http.ResponseWriter, r *http.Request) {
	s, ok := g.session(mux.Vars(r)["sid"])
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown session")
		return
	}
	s.Leave()
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) listMessages(w http.ResponseWriter, r *http.Request) {
	s, ok := g.session(mux.Vars(r)["sid"])
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown session")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Room     string         `json:"room"`
		State    string         `json:"state"`
		Messages []chat.Message `json:"messages"`
	}{Room: s.Room(), State: string(s.State()), Messages: s.Messages()})
}

func (g *Gateway) sendMessage(w http.ResponseWriter, r *http.Request) {
	sid := mux.Vars(r)["sid"]
	s, ok := g.session(sid)
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown session")
		return
	}
	if !g.limiter.Allow(sid) {
		utils.JSONError(w, http.StatusTooManyRequests, "rate limited")
		return
	}
	var req struct {
		Text             string `json:"text"`
		DisappearSeconds int    `json:"disappear_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	id, err := s.Send(req.Text, req.DisappearSeconds)
	if err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	logger.Debug("gateway_send", "session", sid, "id", id)
	_ = utils.JSONWrite(w, http.StatusCreated, map[string]string{"id": id})
}

func (g *Gateway) sendVoice(w http.ResponseWriter, r *http.Request) {
	sid := mux.Vars(r)["sid"]
	s, ok := g.session(sid)
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown session")
		return
	}
	if !g.limiter.Allow(sid) {
		utils.JSONError(w, http.StatusTooManyRequests, "rate limited")
		return
	}
	var req struct {
		Blob             []byte `json:"blob"`
		Seconds          int    `json:"seconds"`
		Caption          string `json:"caption"`
		DisappearSeconds int    `json:"disappear_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	id, err := s.SendVoice(req.Blob, req.Seconds, req.Caption, req.DisappearSeconds)
	if err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, map[string]string{"id": id})
}

func (g *Gateway) addReaction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s, ok := g.session(vars["sid"])
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown session")
		return
	}
	var req struct {
		Emoji string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.AddReaction(vars["id"], req.Emoji); err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) markViewed(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s, ok := g.session(vars["sid"])
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown session")
		return
	}
	if err := s.MarkViewed(vars["id"]); err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) markPlayed(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s, ok := g.session(vars["sid"])
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown session")
		return
	}
	if err := s.MarkPlayed(vars["id"]); err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) deleteForMe(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s, ok := g.session(vars["sid"])
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown session")
		return
	}
	if err := s.DeleteForMe(vars["id"]); err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) deleteManyForMe(w http.ResponseWriter, r *http.Request) {
	s, ok := g.session(mux.Vars(r)["sid"])
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown session")
		return
	}
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.DeleteManyForMe(req.IDs); err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]int{"deleted": len(req.IDs)})
}

func (g *Gateway) deleteForEveryone(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s, ok := g.session(vars["sid"])
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown session")
		return
	}
	if err := s.DeleteForEveryone(vars["id"]); err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) panicWipe(w http.ResponseWriter, r *http.Request) {
	s, ok := g.session(mux.Vars(r)["sid"])
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown session")
		return
	}
	var req struct {
		Room string `json:"room"`
	}
	// Body is optional; an empty body wipes the joined room.
	_ = json.NewDecoder(r.Body).Decode(&req)
	if err := s.PanicWipe(req.Room); err != nil {
		utils.JSONError(w, statusFor(err), err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusAccepted, map[string]string{"status": "wiping"})
}

func (g *Gateway) sessionStats(w http.ResponseWriter, r *http.Request) {
	s, ok := g.session(mux.Vars(r)["sid"])
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown session")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Room       chat.RoomStats  `json:"room"`
		Connection chat.ConnStatus `json:"connection"`
		State      string          `json:"state"`
	}{Room: s.Stats(), Connection: s.Connection(), State: string(s.State())})
}

// statusFor maps session errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrBadRoomID),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrVoiceTooLarge),
		errors.Is(err, chat.ErrNotVoice):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrNoRoom):
		return http.StatusConflict
	case errors.Is(err, chat.ErrClosed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
