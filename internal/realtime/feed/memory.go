package feed

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"mealio_backend/internal/logger"
)

// MemoryFeed is an in-process Feed and Publisher. It backs development
// setups without a LISTEN/NOTIFY connection and the test suite.
type MemoryFeed struct {
	*dispatcher
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{dispatcher: newDispatcher()}
}

func (f *MemoryFeed) Subscribe(table string, op Op, filter Filter, fn ChangeFunc) func() {
	return f.subscribe(table, op, filter, fn)
}

// Notify dispatches synchronously. The tx argument is accepted for
// Publisher compatibility and ignored.
func (f *MemoryFeed) Notify(_ *gorm.DB, table string, op Op, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		logger.Error("failed to marshal change record", "table", table, "error", err)
		return err
	}

	f.dispatch(Event{
		Table:      table,
		Op:         op,
		Record:     raw,
		OccurredAt: time.Now().UTC(),
	})
	return nil
}

// Emit injects a raw event, bypassing marshalling. Used by tests to
// simulate feed traffic from other nodes.
func (f *MemoryFeed) Emit(ev Event) {
	f.dispatch(ev)
}
