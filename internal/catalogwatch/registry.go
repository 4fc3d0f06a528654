// Package catalogwatch implements spec.md section 5's "Model-change
// fan-out": a watcher that reintrospects a catalog on a poll ticker and on
// pg NOTIFY, and a registry of websocket subscribers it broadcasts a
// reintrospection signal to whenever the checksum of the catalog's
// schemas, tables and columns changes, so long-lived clients learn a
// catalog's structure changed without polling GET /schema. Annotation and
// ACL changes do not alter that checksum and are not broadcast. Grounded in the teacher's
// internal/reactive.Registry subscriber bookkeeping and internal/api/ws.go's
// connection lifecycle, generalized from row-level diff broadcast to a
// single coarse "the model changed, refetch" event (ERMrest has no
// row-level reactive query language of its own).
package catalogwatch

import (
	"sync"

	"go.uber.org/zap"
)

// Client is anything that can be pushed a model-change notification; the
// websocket handler in internal/api/ws.go wires this to conn.WriteJSON the same
// way the teacher's reactive.Client.Send closure wires a websocket write.
type Client struct {
	CatalogID string
	Send      func(event Event) error
}

// Event is the payload pushed to subscribers on a model change.
type Event struct {
	CatalogID string `json:"catalog_id"`
	Amended   string `json:"amended"` // RFC3339 timestamp of the new Model.Amended
	Checksum  string `json:"checksum"`
}

// Registry tracks every live subscriber, grouped by catalog id, the same
// shape as the teacher's reactive.Registry groups LiveQuery subscribers by
// query id.
type Registry struct {
	mu   sync.Mutex
	subs map[string]map[*Client]struct{}
	log  *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{subs: make(map[string]map[*Client]struct{}), log: log}
}

func (r *Registry) Subscribe(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[c.CatalogID]
	if !ok {
		set = make(map[*Client]struct{})
		r.subs[c.CatalogID] = set
	}
	set[c] = struct{}{}
}

func (r *Registry) Unsubscribe(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[c.CatalogID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.subs, c.CatalogID)
	}
}

// Broadcast pushes ev to every subscriber of ev.CatalogID, dropping (and
// unsubscribing) any client whose Send returns an error, mirroring the
// teacher's refresh.go behavior of pruning dead connections discovered
// mid-broadcast rather than letting one slow client wedge the fan-out.
func (r *Registry) Broadcast(ev Event) {
	r.mu.Lock()
	set := r.subs[ev.CatalogID]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	r.mu.Unlock()

	for _, c := range clients {
		if err := c.Send(ev); err != nil {
			r.log.Info("dropping catalogwatch subscriber after send error",
				zap.String("catalog_id", ev.CatalogID), zap.Error(err))
			r.Unsubscribe(c)
		}
	}
}

func (r *Registry) SubscriberCount(catalogID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[catalogID])
}
