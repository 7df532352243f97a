// Package rawtable implements the wide, timestamp-keyed table that accumulates
// every ingested sample. It is kept column-major: a shared ascending
// timestamp vector plus one value vector per tag, so ingest touches
// per-column slices rather than rewriting whole rows.
package rawtable

import (
	"math"
	"sort"
	"sync"

	"dataexplorer/internal/model"
)

// Signature is the (rowCount, sortedColumnSet, lastTimestampMs) tuple used to
// gate WORKING rebuilds.
type Signature struct {
	RowCount      int
	SortedColumns string // columns joined with "\x00", sorted
	LastTimestamp int64
}

// Table is the RAW table. All mutation happens under a caller-held lock
// (the engine's global exclusive lock); Table also guards its own state with
// an internal RWMutex, taken for writing by mutators and for reading by
// accessors.
type Table struct {
	mu      sync.RWMutex
	ts      []int64            // ascending, unique
	columns map[string][]float64
	valid   map[string][]bool
	order   []string // tag insertion order, for canonical serialization
}

// New returns an empty RAW table.
func New() *Table {
	return &Table{
		columns: make(map[string][]float64),
		valid:   make(map[string][]bool),
	}
}

// RowCount returns the number of timestamp rows.
func (t *Table) RowCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ts)
}

// Columns returns the tag columns in insertion order.
func (t *Table) Columns() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Signature computes the current change signature.
func (t *Table) Signature() Signature {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.signatureLocked()
}

func (t *Table) signatureLocked() Signature {
	cols := make([]string, len(t.order))
	copy(cols, t.order)
	sort.Strings(cols)
	joined := ""
	for i, c := range cols {
		if i > 0 {
			joined += "\x00"
		}
		joined += c
	}
	last := int64(0)
	if len(t.ts) > 0 {
		last = t.ts[len(t.ts)-1]
	}
	return Signature{RowCount: len(t.ts), SortedColumns: joined, LastTimestamp: last}
}

// MiniTable is the two-column (timestampMs, tag) result of one upstream
// fetch, ready to be merged into RAW.
type MiniTable struct {
	Tag     string
	Samples []model.Sample
}

// Ingest outer-merges a mini-table into RAW on timestampMs. New timestamps
// create new rows with absent in every other column. An incoming tag cell
// overwrites the existing one only when the new value is present; an
// incoming absent never clobbers a present value. Non-finite incoming values
// (±Inf, NaN) are coerced to absent before the merge rule is applied.
func (t *Table) Ingest(mini MiniTable) {
	if len(mini.Samples) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.columns[mini.Tag]; !ok {
		t.columns[mini.Tag] = make([]float64, len(t.ts))
		t.valid[mini.Tag] = make([]bool, len(t.ts))
		t.order = append(t.order, mini.Tag)
	}

	for _, s := range mini.Samples {
		v, ok := sanitize(s)
		row := t.rowForTimestampLocked(s.TimestampMs)
		if ok {
			t.columns[mini.Tag][row] = v
			t.valid[mini.Tag][row] = true
		}
	}
}

func sanitize(s model.Sample) (float64, bool) {
	if !s.Valid {
		return 0, false
	}
	v := s.Value
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// rowForTimestampLocked returns the row index for ts, inserting a new row in
// sorted position (extending every existing column with an absent cell) if
// ts is not already present. Caller holds t.mu.
func (t *Table) rowForTimestampLocked(ts int64) int {
	pos := sort.Search(len(t.ts), func(i int) bool { return t.ts[i] >= ts })
	if pos < len(t.ts) && t.ts[pos] == ts {
		return pos
	}
	t.ts = append(t.ts, 0)
	copy(t.ts[pos+1:], t.ts[pos:])
	t.ts[pos] = ts

	for tag, col := range t.columns {
		col = append(col, 0)
		copy(col[pos+1:], col[pos:])
		col[pos] = 0
		t.columns[tag] = col

		vv := t.valid[tag]
		vv = append(vv, false)
		copy(vv[pos+1:], vv[pos:])
		vv[pos] = false
		t.valid[tag] = vv
	}
	return pos
}

// DropColumn removes tag's column without touching any other column or the
// row set.
func (t *Table) DropColumn(tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.columns[tag]; !ok {
		return
	}
	delete(t.columns, tag)
	delete(t.valid, tag)
	for i, o := range t.order {
		if o == tag {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Row is one materialized RAW/WORKING record.
type Row struct {
	TimestampMs   int64
	TimestampText string
	Values        map[string]*float64 // nil entry means absent
}

// Snapshot materializes the table as rows in timestamp order, for
// serialization or for the WORKING builder to copy from.
func (t *Table) Snapshot() []Row {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rows := make([]Row, len(t.ts))
	for i, ts := range t.ts {
		vals := make(map[string]*float64, len(t.order))
		for _, tag := range t.order {
			if t.valid[tag][i] {
				v := t.columns[tag][i]
				vals[tag] = &v
			} else {
				vals[tag] = nil
			}
		}
		rows[i] = Row{
			TimestampMs:   ts,
			TimestampText: model.FormatTimestamp(ts),
			Values:        vals,
		}
	}
	return rows
}

// LoadRows replaces the table contents wholesale from previously persisted
// rows, used when restoring from disk. Column order is taken from the order
// slice, which must list every tag key present in rows.
func (t *Table) LoadRows(rows []Row, order []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ts = make([]int64, len(rows))
	t.order = append([]string(nil), order...)
	t.columns = make(map[string][]float64, len(order))
	t.valid = make(map[string][]bool, len(order))
	for _, tag := range order {
		t.columns[tag] = make([]float64, len(rows))
		t.valid[tag] = make([]bool, len(rows))
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].TimestampMs < rows[j].TimestampMs })
	for i, r := range rows {
		t.ts[i] = r.TimestampMs
		for _, tag := range order {
			if v, ok := r.Values[tag]; ok && v != nil {
				t.columns[tag][i] = *v
				t.valid[tag][i] = true
			}
		}
	}
}

// Clear empties the table.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ts = nil
	t.order = nil
	t.columns = make(map[string][]float64)
	t.valid = make(map[string][]bool)
}
