package dataframe

import (
	"fmt"
	"sync"
)

// EventKind identifies a frame event
type EventKind int

const (
	// RowCountChanged fires when NumRows or RowCountFinal changes
	RowCountChanged EventKind = iota + 1
	// CellsResolved fires after a row run settles
	CellsResolved
	// RowsReordered fires when a sorted frame changes its permutation
	RowsReordered
)

func (k EventKind) String() string {
	switch k {
	case RowCountChanged:
		return "row_count_changed"
	case CellsResolved:
		return "cells_resolved"
	case RowsReordered:
		return "rows_reordered"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event describes a change in a frame. Rows is set for CellsResolved,
// NumRows for RowCountChanged.
type Event struct {
	Kind    EventKind
	Rows    RowRange
	Columns []string
	NumRows int
}

// Listener receives frame events. Listeners run synchronously on the
// goroutine that settled the change and must not block.
type Listener func(Event)

type emitter struct {
	mu        sync.RWMutex
	listeners map[int]Listener
	next      int
}

func (e *emitter) subscribe(l Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listeners == nil {
		e.listeners = make(map[int]Listener)
	}
	id := e.next
	e.next++
	e.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

func (e *emitter) emit(ev Event) {
	e.mu.RLock()
	ls := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		ls = append(ls, l)
	}
	e.mu.RUnlock()

	for _, l := range ls {
		l(ev)
	}
}
