package changefeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hubp2p/exchange-service/internal/models"
	"github.com/lib/pq"
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	pingInterval         = 90 * time.Second
)

// Listener bridges the Postgres NOTIFY channel into the in-process Bus.
// Repositories emit events inside the same database transaction as the row
// write, so everything arriving here describes a committed change.
type Listener struct {
	listener *pq.Listener
	bus      *Bus
}

func NewListener(dsn, channel string, bus *Bus) (*Listener, error) {
	l := pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Error("changefeed listener event", "event", ev, "error", err)
		}
	})
	if err := l.Listen(channel); err != nil {
		l.Close()
		return nil, err
	}
	slog.Info("changefeed listener started", "channel", channel)
	return &Listener{listener: l, bus: bus}, nil
}

func (l *Listener) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-l.listener.Notify:
			if n == nil {
				// Connection was re-established; notifications may have been
				// missed, subscribers recover on their next fetch.
				continue
			}
			var event models.TransactionEvent
			if err := json.Unmarshal([]byte(n.Extra), &event); err != nil {
				slog.Error("failed to unmarshal changefeed payload", "payload", n.Extra, "error", err)
				continue
			}
			l.bus.Publish(event)
		case <-time.After(pingInterval):
			if err := l.listener.Ping(); err != nil {
				slog.Error("changefeed ping failed", "error", err)
			}
		}
	}
}

func (l *Listener) Close() error {
	return l.listener.Close()
}
