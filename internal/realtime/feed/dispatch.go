package feed

import (
	"sync"

	"mealio_backend/internal/logger"
)

// dispatcher implements the subscription bookkeeping shared by the
// postgres-backed and in-memory feeds.
type dispatcher struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscription
}

type subscription struct {
	table  string
	op     Op
	filter Filter
	fn     ChangeFunc
}

func newDispatcher() *dispatcher {
	return &dispatcher{subs: make(map[int]subscription)}
}

func (d *dispatcher) subscribe(table string, op Op, filter Filter, fn ChangeFunc) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.subs[id] = subscription{table: table, op: op, filter: filter, fn: fn}
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
		})
	}
}

// dispatch fans an event out to all matching subscribers. Handler panics
// are contained so one bad subscriber cannot take down the feed loop.
func (d *dispatcher) dispatch(ev Event) {
	d.mu.RLock()
	matched := make([]ChangeFunc, 0, len(d.subs))
	for _, sub := range d.subs {
		if sub.table != ev.Table {
			continue
		}
		if sub.op != OpAll && sub.op != ev.Op {
			continue
		}
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		matched = append(matched, sub.fn)
	}
	d.mu.RUnlock()

	for _, fn := range matched {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("change feed handler panicked", "table", ev.Table, "op", ev.Op, "panic", r)
				}
			}()
			fn(ev)
		}()
	}
}
