package catalogwatch

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ytfqj/ermrest/internal/introspect"
	"github.com/ytfqj/ermrest/internal/model"
)

// Watcher pairs a poll-interval fallback with a dedicated LISTEN connection
// on the "ermrest_model_changed" channel to detect catalog mutations. That
// channel is notified by the "_ermrest.model_change_event()" function from
// the bootstrap migration; no trigger calls it and the metastore's writes
// do not call it, so changes made through the metastore are seen on the
// next poll tick. This is the same two-strategy shape as
// the teacher's richcatalog.AutoRefresh (poll ticker + notify loop), but
// using pgx's native LISTEN/NOTIFY support instead of the teacher's
// "no low-level notify available" workaround.
type Watcher struct {
	Pool     *pgxpool.Pool
	In       *introspect.Introspector
	Reg      *Registry
	Log      *zap.Logger
	Interval time.Duration

	lastChecksum string
}

func NewWatcher(pool *pgxpool.Pool, in *introspect.Introspector, reg *Registry, log *zap.Logger, interval time.Duration) *Watcher {
	return &Watcher{Pool: pool, In: in, Reg: reg, Log: log, Interval: interval}
}

// Run blocks until ctx is canceled, refreshing catalogID's Model on a
// timer and whenever a notification arrives on ermrest_model_changed,
// broadcasting a change Event to every catalogwatch subscriber only when
// the new introspection's checksum actually differs from the last one
// observed (spec.md: "readers must not be told to refetch when nothing
// changed").
func (w *Watcher) Run(ctx context.Context, catalogID string) error {
	conn, err := w.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN ermrest_model_changed"); err != nil {
		return err
	}

	notifications := make(chan struct{}, 1)
	go func() {
		defer close(notifications)
		for {
			if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
				return
			}
			select {
			case notifications <- struct{}{}:
			default:
			}
		}
	}()

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.refresh(ctx, catalogID)
		case _, ok := <-notifications:
			if !ok {
				return nil
			}
			w.refresh(ctx, catalogID)
		}
	}
}

func (w *Watcher) refresh(ctx context.Context, catalogID string) {
	m, err := w.In.Introspect(ctx, catalogID)
	if err != nil {
		w.Log.Warn("catalogwatch reintrospection failed", zap.String("catalog_id", catalogID), zap.Error(err))
		return
	}
	sum, err := introspect.Checksum(m)
	if err != nil {
		w.Log.Warn("catalogwatch checksum failed", zap.String("catalog_id", catalogID), zap.Error(err))
		return
	}
	if sum == w.lastChecksum {
		return
	}
	w.lastChecksum = sum
	w.Reg.Broadcast(Event{
		CatalogID: catalogID,
		Amended:   nowStamp(m),
		Checksum:  sum,
	})
}

func nowStamp(m *model.Model) string {
	if m.Amended.IsZero() {
		return ""
	}
	return m.Amended.Format(time.RFC3339)
}
