package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ytfqj/ermrest/internal/catalogwatch"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWatch upgrades GET /ermrest/catalog/{cid}/watch to a websocket that
// pushes one catalogwatch.Event every time the catalog's model changes,
// replacing the teacher's live-query subscribe/unsubscribe protocol (which
// rewrote arbitrary SELECTs to inject primary keys for row-level diffing)
// with ERMrest's coarser "the model changed, refetch /schema" signal —
// ERMrest has no live row-query language of its own to reactively diff.
func (s *Server) HandleWatch(w http.ResponseWriter, r *http.Request) {
	catalogID := chi.URLParam(r, "cid")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Warn("watch upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	client := &catalogwatch.Client{
		CatalogID: catalogID,
		Send:      func(ev catalogwatch.Event) error { return conn.WriteJSON(ev) },
	}
	s.Watch.Subscribe(client)
	defer s.Watch.Unsubscribe(client)

	// Block on reads purely to detect client disconnect; ERMrest's watch
	// protocol is server-push only, so any inbound message is ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
