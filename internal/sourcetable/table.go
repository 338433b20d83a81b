// Package sourcetable stages presynaptic identifiers for connections
// whose target side is already stored but whose source-side routing has
// not been resolved yet. Entries are lcid-aligned with connection
// storage and are drained by the multi-round resolution protocol through
// an explicitly checkpointable cursor.
package sourcetable

import (
	"fmt"

	"synaptor/internal/model"
)

// Source is one staged presynaptic entry.
type Source struct {
	GID model.GlobalID
	// Primary mirrors the synapse model's delivery path.
	Primary bool
	// processed marks entries already shipped to the source rank.
	processed bool
}

// Position is the resumable cursor state: which synapse type and which
// entry within it the drain reached. Save/Restore/Reset are pure state
// transitions on it.
type Position struct {
	Syn   model.SynIndex
	Index int
}

// Owner resolves a staged gid to its owning location during the drain.
type Owner func(gid model.GlobalID) (model.Rank, model.ThreadID, model.LocalID, bool)

// Table is the per-thread staging structure. Each thread partition is
// owned exclusively by its worker; no locking.
type Table struct {
	rank    model.Rank
	numSyn  int
	threads []threadTable
}

type threadTable struct {
	sources [][]Source // [syn][lcid]
	current Position
	saved   Position
	// last is the position of the most recent production, for RejectLast.
	last     Position
	hasLast  bool
	cleared  bool
}

func New(rank model.Rank, threads, numSyn int) (*Table, error) {
	if threads <= 0 {
		return nil, fmt.Errorf("thread count must be > 0, got %d", threads)
	}
	if numSyn <= 0 {
		return nil, fmt.Errorf("synapse type count must be > 0, got %d", numSyn)
	}
	tbl := &Table{rank: rank, numSyn: numSyn, threads: make([]threadTable, threads)}
	for t := range tbl.threads {
		tbl.threads[t].sources = make([][]Source, numSyn)
	}
	return tbl, nil
}

func (t *Table) checkThread(tid model.ThreadID) error {
	if int(tid) < 0 || int(tid) >= len(t.threads) {
		return fmt.Errorf("thread %d out of range", tid)
	}
	return nil
}

// Append stages one presynaptic entry; its index is the lcid of the
// matching connection record.
func (t *Table) Append(tid model.ThreadID, syn model.SynIndex, gid model.GlobalID, primary bool) error {
	if err := t.checkThread(tid); err != nil {
		return err
	}
	if syn < 0 || int(syn) >= t.numSyn {
		return fmt.Errorf("synapse index %d out of range", syn)
	}
	tt := &t.threads[tid]
	if tt.cleared {
		return fmt.Errorf("source table on thread %d was cleared", tid)
	}
	tt.sources[syn] = append(tt.sources[syn], Source{GID: gid, Primary: primary})
	return nil
}

// SourceGID resolves (syn, lcid) back to the staged presynaptic gid.
func (t *Table) SourceGID(tid model.ThreadID, syn model.SynIndex, lcid model.LCID) (model.GlobalID, bool) {
	if t.checkThread(tid) != nil || syn < 0 || int(syn) >= t.numSyn {
		return model.InvalidGlobalID, false
	}
	col := t.threads[tid].sources[syn]
	if int(lcid) >= len(col) {
		return model.InvalidGlobalID, false
	}
	return col[lcid].GID, true
}

// Column exposes one (thread, type) source column, lcid-aligned with
// connection storage, for lockstep sorting.
func (t *Table) Column(tid model.ThreadID, syn model.SynIndex) []model.GlobalID {
	if t.checkThread(tid) != nil || syn < 0 || int(syn) >= t.numSyn {
		return nil
	}
	col := t.threads[tid].sources[syn]
	gids := make([]model.GlobalID, len(col))
	for i, s := range col {
		gids[i] = s.GID
	}
	return gids
}

// SetColumn writes back a permuted source column after a lockstep sort
// and resets the processed flags: a sort invalidates any partial drain.
func (t *Table) SetColumn(tid model.ThreadID, syn model.SynIndex, gids []model.GlobalID) error {
	if err := t.checkThread(tid); err != nil {
		return err
	}
	col := t.threads[tid].sources[syn]
	if len(gids) != len(col) {
		return fmt.Errorf("column length %d does not match %d staged sources", len(gids), len(col))
	}
	for i := range col {
		col[i].GID = gids[i]
		col[i].processed = false
	}
	return nil
}

// RemoveSwap deletes one staged entry by moving the last entry of the
// column into its slot, mirroring the swap-with-last removal done on the
// matching connection-storage array.
func (t *Table) RemoveSwap(tid model.ThreadID, syn model.SynIndex, lcid model.LCID) error {
	if err := t.checkThread(tid); err != nil {
		return err
	}
	if syn < 0 || int(syn) >= t.numSyn {
		return fmt.Errorf("synapse index %d out of range", syn)
	}
	col := t.threads[tid].sources[syn]
	n := len(col)
	if int(lcid) >= n {
		return fmt.Errorf("staged source %d of %d out of range", lcid, n)
	}
	col[lcid] = col[n-1]
	t.threads[tid].sources[syn] = col[:n-1]
	return nil
}

// SaveEntryPoint checkpoints the cursor so the next round can resume
// exactly where this one stopped.
func (t *Table) SaveEntryPoint(tid model.ThreadID) {
	if t.checkThread(tid) != nil {
		return
	}
	tt := &t.threads[tid]
	tt.saved = tt.current
}

// RestoreEntryPoint rewinds the cursor to the last checkpoint.
func (t *Table) RestoreEntryPoint(tid model.ThreadID) {
	if t.checkThread(tid) != nil {
		return
	}
	tt := &t.threads[tid]
	tt.current = tt.saved
	tt.hasLast = false
}

// ResetEntryPoint moves checkpoint and cursor back to the beginning.
func (t *Table) ResetEntryPoint(tid model.ThreadID) {
	if t.checkThread(tid) != nil {
		return
	}
	tt := &t.threads[tid]
	tt.current = Position{}
	tt.saved = Position{}
	tt.hasLast = false
	for syn := range tt.sources {
		for i := range tt.sources[syn] {
			tt.sources[syn][i].processed = false
		}
	}
}

// EntryPoint exposes the live cursor, mainly for tests and diagnostics.
func (t *Table) EntryPoint(tid model.ThreadID) Position {
	if t.checkThread(tid) != nil {
		return Position{}
	}
	return t.threads[tid].current
}

// NextTargetData produces the next pending routing record whose source
// rank falls in [rankStart, rankEnd). It marks the entry processed and
// advances the cursor; ok is false when the scan reached the end of the
// table. Entries owned by ranks outside the window stay pending.
func (t *Table) NextTargetData(tid model.ThreadID, rankStart, rankEnd model.Rank, owner Owner) (model.TargetData, model.Rank, bool, error) {
	if err := t.checkThread(tid); err != nil {
		return model.TargetData{}, 0, false, err
	}
	tt := &t.threads[tid]
	for int(tt.current.Syn) < t.numSyn {
		col := tt.sources[tt.current.Syn]
		if tt.current.Index >= len(col) {
			tt.current.Syn++
			tt.current.Index = 0
			continue
		}
		entry := &col[tt.current.Index]
		if entry.processed {
			tt.current.Index++
			continue
		}
		rank, thread, lid, ok := owner(entry.GID)
		if !ok {
			return model.TargetData{}, 0, false, fmt.Errorf("staged source %d has no owner", entry.GID)
		}
		if rank < rankStart || rank >= rankEnd {
			tt.current.Index++
			continue
		}
		entry.processed = true
		tt.last = tt.current
		tt.hasLast = true
		td := model.TargetData{
			SourceThread: thread,
			SourceLID:    lid,
			Target: model.Target{
				Rank:   t.rank,
				Thread: tid,
				Syn:    tt.current.Syn,
				LCID:   model.LCID(tt.current.Index),
			},
			Primary: entry.Primary,
		}
		tt.current.Index++
		return td, rank, true, nil
	}
	return model.TargetData{}, 0, false, nil
}

// RejectLast retracts the most recent production whole: the record did
// not fit the round's remaining buffer budget and is deferred to the
// next round. Records are never split.
func (t *Table) RejectLast(tid model.ThreadID) {
	if t.checkThread(tid) != nil {
		return
	}
	tt := &t.threads[tid]
	if !tt.hasLast {
		return
	}
	tt.sources[tt.last.Syn][tt.last.Index].processed = false
	tt.current = tt.last
	tt.hasLast = false
}

// FullyProcessed reports whether every staged entry of a thread has been
// shipped.
func (t *Table) FullyProcessed(tid model.ThreadID) bool {
	if t.checkThread(tid) != nil {
		return false
	}
	for _, col := range t.threads[tid].sources {
		for i := range col {
			if !col[i].processed {
				return false
			}
		}
	}
	return true
}

// Clear discards a drained thread partition to reclaim memory. After a
// clear, source-side queries on this thread no longer resolve.
func (t *Table) Clear(tid model.ThreadID) {
	if t.checkThread(tid) != nil {
		return
	}
	tt := &t.threads[tid]
	tt.sources = make([][]Source, t.numSyn)
	tt.current = Position{}
	tt.saved = Position{}
	tt.hasLast = false
	tt.cleared = true
}

// IsCleared reports whether a thread partition was discarded.
func (t *Table) IsCleared(tid model.ThreadID) bool {
	if t.checkThread(tid) != nil {
		return false
	}
	return t.threads[tid].cleared
}
