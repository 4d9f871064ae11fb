package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hiberry/internal/model"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 20 * time.Second
	wsWriteWait  = 5 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// EventsWSHandler streams the events of one delivery date over a WebSocket
// (GET /v1/events/ws?date=YYYY-MM-DD). The stream is server to client; any
// client message other than control frames is ignored.
func (s *Server) EventsWSHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, anyRole, ""); !ok {
		return
	}
	date, err := model.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid request", "date: "+err.Error(), r.URL.Path)
		return
	}
	if s.Broker == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Events unavailable", "", r.URL.Path)
		return
	}
	// subscribe before the handshake completes so nothing published after
	// the client connected is missed
	ch := s.Broker.Subscribe(date.String())
	defer s.Broker.Unsubscribe(date.String(), ch)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	log := s.Logger.With(zap.String("date", date.String()))
	log.Debug("event stream opened")

	// reader: keeps pong deadlines moving and notices the client leaving
	closed := make(chan struct{})
	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsPongWait)) })
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			log.Debug("event stream closed by client")
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
