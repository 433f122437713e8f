package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scholarfin/be-fund-requests/internal/channel"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const wsReadDeadline = 60 * time.Second

// Subscribe upgrades the connection and attaches it to the requested
// channels. Every channel is authorized against the roles the directory
// reports at subscription time; one unauthorized channel rejects the whole
// attach, before the upgrade.
func (h *HTTPHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("channels")
	if raw == "" {
		http.Error(w, "channels query parameter is required", http.StatusBadRequest)
		return
	}
	channels := strings.Split(raw, ",")

	actor, err := resolveActor(r, h.directory)
	if err != nil {
		http.Error(w, "failed to resolve roles", http.StatusInternalServerError)
		return
	}
	sub := channel.Subscriber{ID: actor.ID, Roles: actor.Roles}

	for _, name := range channels {
		if !channel.Authorize(sub, name) {
			http.Error(w, "not authorized for channel "+name, http.StatusForbidden)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	session := h.hub.Attach(sub, channels, conn)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	conn.SetPongHandler(func(string) error {
		session.Touch()
		return conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	})

	// Reader loop only services control frames; subscribers never send data.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.hub.Remove(session)
}
