package query

// Ledger is the ordered list of queries sent on one connection.
type Ledger struct {
	queries []*Query
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Enqueue appends q in send order.
func (l *Ledger) Enqueue(q *Query) {
	l.queries = append(l.queries, q)
}

// PeekOldestPending returns the first query still waiting for its
// terminator, or nil.
func (l *Ledger) PeekOldestPending() *Query {
	for _, q := range l.queries {
		if !q.completed {
			return q
		}
	}

	return nil
}

// CompleteOldestPending marks the first pending query completed and returns
// it, or nil when nothing is pending.
func (l *Ledger) CompleteOldestPending() *Query {
	q := l.PeekOldestPending()
	if q != nil {
		q.completed = true
	}

	return q
}

// Sweep drops completed queries and returns how many were removed.
func (l *Ledger) Sweep() int {
	kept := l.queries[:0]

	for _, q := range l.queries {
		if !q.completed {
			kept = append(kept, q)
		}
	}

	removed := len(l.queries) - len(kept)

	for i := len(kept); i < len(l.queries); i++ {
		l.queries[i] = nil
	}

	l.queries = kept

	return removed
}

// Reset discards every query, pending or not.
func (l *Ledger) Reset() {
	l.queries = nil
}

// Pending returns the number of queries waiting for a terminator.
func (l *Ledger) Pending() int {
	n := 0

	for _, q := range l.queries {
		if !q.completed {
			n++
		}
	}

	return n
}

// Len returns the number of queries held, completed ones included.
func (l *Ledger) Len() int {
	return len(l.queries)
}
