package broadcast

import (
	"context"
	"time"
)

// WriteMetrics receives per-write outcomes.
type WriteMetrics interface {
	WriteInc(keyspace string)
	WriteErrInc(keyspace string)
	WriteObserve(d time.Duration)
}

type instrumented struct {
	Store
	m WriteMetrics
}

// Instrument wraps s so every Write is counted and timed. A nil m returns s.
func Instrument(s Store, m WriteMetrics) Store {
	if m == nil {
		return s
	}
	return &instrumented{Store: s, m: m}
}

func (i *instrumented) Write(ctx context.Context, keyspace, id string, record any) error {
	start := time.Now()
	err := i.Store.Write(ctx, keyspace, id, record)
	i.m.WriteObserve(time.Since(start))
	if err != nil {
		i.m.WriteErrInc(keyspace)
	} else {
		i.m.WriteInc(keyspace)
	}
	return err
}
