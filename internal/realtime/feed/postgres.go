package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	"mealio_backend/internal/logger"
)

// NotifyChannel is the Postgres NOTIFY channel all change events travel on.
const NotifyChannel = "mealio_changes"

// Publisher is the write side of the change stream. Repositories call
// Notify inside the transaction that performs the mutation, so the event
// is only published when the write commits (at-least-once overall: a
// dropped listener connection can still miss events, subscribers must
// tolerate gaps).
type Publisher interface {
	Notify(tx *gorm.DB, table string, op Op, record any) error
}

// PostgresFeed is a Feed backed by Postgres LISTEN/NOTIFY via pgx,
// and a Publisher backed by pg_notify.
type PostgresFeed struct {
	pool *pgxpool.Pool
	*dispatcher
}

func NewPostgresFeed(pool *pgxpool.Pool) *PostgresFeed {
	return &PostgresFeed{pool: pool, dispatcher: newDispatcher()}
}

func (f *PostgresFeed) Subscribe(table string, op Op, filter Filter, fn ChangeFunc) func() {
	return f.subscribe(table, op, filter, fn)
}

// Notify publishes an event through pg_notify within the caller's transaction.
func (f *PostgresFeed) Notify(tx *gorm.DB, table string, op Op, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal change record: %w", err)
	}

	payload, err := json.Marshal(Event{
		Table:      table,
		Op:         op,
		Record:     raw,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	return tx.Exec("SELECT pg_notify(?, ?)", NotifyChannel, string(payload)).Error
}

// Start listens for notifications until ctx is cancelled. The listener
// reconnects on connection loss; events raised while disconnected are lost,
// which subscribers already tolerate (manual refresh re-fetches history).
func (f *PostgresFeed) Start(ctx context.Context) {
	go f.listen(ctx)
}

func (f *PostgresFeed) listen(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := f.listenOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Error("change feed listener disconnected", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func (f *PostgresFeed) listenOnce(ctx context.Context) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("LISTEN failed: %w", err)
	}
	logger.Info("change feed listening", "channel", NotifyChannel)

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		var ev Event
		if err := json.Unmarshal([]byte(notification.Payload), &ev); err != nil {
			logger.Error("failed to parse change event", "error", err)
			continue
		}
		f.dispatch(ev)
	}
}
