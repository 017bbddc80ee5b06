package processlist

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/dreamsxin/ramnotify/types"
)

// Table is the sorted process snapshot shown to the user.
// It is safe for concurrent use; every mutation holds the write lock.
type Table struct {
	mu           sync.RWMutex
	rows         []types.ProcessRow
	key          types.SortKey
	descending   bool
	physicalUsed uint64
	swapUsed     uint64
	selected     int32
	hasSelection bool
}

// NewTable creates an empty table sorted by resident memory, biggest first
func NewTable() *Table {
	return &Table{
		key:        types.SortByResident,
		descending: types.SortByResident.DefaultDescending(),
	}
}

// Ingest replaces the table with records. Gauges are relative to the
// current aggregate usage, not to device capacity.
func (t *Table) Ingest(records map[int32]types.ProcessRecord, physicalUsed, swapUsed uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.physicalUsed = physicalUsed
	t.swapUsed = swapUsed
	t.rows = make([]types.ProcessRow, 0, len(records))
	for _, rec := range records {
		t.rows = append(t.rows, t.row(rec))
	}
	// map order is random; start from pid order so ties are deterministic
	slices.SortFunc(t.rows, func(a, b types.ProcessRow) int { return cmp.Compare(a.PID, b.PID) })
	t.hasSelection = false
	t.sort()
}

func (t *Table) row(rec types.ProcessRecord) types.ProcessRow {
	return types.ProcessRow{
		ProcessRecord:   rec,
		ResidentPercent: ratio(rec.ResidentBytes, t.physicalUsed),
		VirtualPercent:  ratio(rec.VirtualBytes, t.swapUsed),
	}
}

func ratio(v, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(v) / float64(total) * 100
}

// SortOrder returns the active column and direction
func (t *Table) SortOrder() (types.SortKey, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.key, t.descending
}

// Sort orders the rows by key. The sort is stable.
func (t *Table) Sort(key types.SortKey, descending bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.key = key
	t.descending = descending
	t.sort()
}

// ClickColumn flips the direction of the active column, or switches to key
// with its default direction
func (t *Table) ClickColumn(key types.SortKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if key == t.key {
		t.descending = !t.descending
	} else {
		t.key = key
		t.descending = key.DefaultDescending()
	}
	t.sort()
}

func (t *Table) sort() {
	compare := compareBy(t.key)
	if t.descending {
		slices.SortStableFunc(t.rows, func(a, b types.ProcessRow) int { return compare(b, a) })
		return
	}
	slices.SortStableFunc(t.rows, compare)
}

func compareBy(key types.SortKey) func(a, b types.ProcessRow) int {
	switch key {
	case types.SortByName:
		return func(a, b types.ProcessRow) int {
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		}
	case types.SortByResident:
		return func(a, b types.ProcessRow) int { return cmp.Compare(a.ResidentBytes, b.ResidentBytes) }
	case types.SortByVirtual:
		return func(a, b types.ProcessRow) int { return cmp.Compare(a.VirtualBytes, b.VirtualBytes) }
	default:
		return func(a, b types.ProcessRow) int { return cmp.Compare(a.PID, b.PID) }
	}
}

// FindNext returns the index of the next row after from whose name starts
// with prefix, wrapping around. It returns -1 when nothing matches.
func (t *Table) FindNext(prefix rune, from int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := len(t.rows)
	if n == 0 {
		return -1
	}
	if from < -1 || from >= n {
		from = -1
	}
	want := string(unicode.ToLower(prefix))
	for i := 1; i <= n; i++ {
		idx := (from + i) % n
		if strings.HasPrefix(strings.ToLower(t.rows[idx].Name), want) {
			return idx
		}
	}
	return -1
}

// Rows returns a copy of the rows in display order
func (t *Table) Rows() []types.ProcessRow {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.rows)
}

// Len returns the number of rows
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Lookup returns the row of pid
func (t *Table) Lookup(pid int32) (types.ProcessRow, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i := t.indexOf(pid); i >= 0 {
		return t.rows[i], true
	}
	return types.ProcessRow{}, false
}

// IndexOf returns the display index of pid, or -1
func (t *Table) IndexOf(pid int32) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.indexOf(pid)
}

func (t *Table) indexOf(pid int32) int {
	return slices.IndexFunc(t.rows, func(r types.ProcessRow) bool { return r.PID == pid })
}

// Remove drops the row of pid and clears the selection if it pointed there
func (t *Table) Remove(pid int32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexOf(pid)
	if i < 0 {
		return false
	}
	t.rows = slices.Delete(t.rows, i, i+1)
	if t.hasSelection && t.selected == pid {
		t.hasSelection = false
	}
	return true
}

// Append adds rec keeping the sort order, selects it and returns its index
func (t *Table) Append(rec types.ProcessRecord) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i := t.indexOf(rec.PID); i >= 0 {
		t.rows = slices.Delete(t.rows, i, i+1)
	}
	t.rows = append(t.rows, t.row(rec))
	t.sort()
	t.selected = rec.PID
	t.hasSelection = true
	return t.indexOf(rec.PID)
}

// Select marks the row at index as selected
func (t *Table) Select(index int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.rows) {
		t.hasSelection = false
		return false
	}
	t.selected = t.rows[index].PID
	t.hasSelection = true
	return true
}

// Selected returns the selected row and its index
func (t *Table) Selected() (types.ProcessRow, int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.hasSelection {
		return types.ProcessRow{}, -1, false
	}
	i := t.indexOf(t.selected)
	if i < 0 {
		return types.ProcessRow{}, -1, false
	}
	return t.rows[i], i, true
}

// ClearSelection deselects any row
func (t *Table) ClearSelection() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hasSelection = false
}
