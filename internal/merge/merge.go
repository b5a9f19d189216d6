// Package merge reconciles incoming entity lists (import, restore, or
// cross-device sync) with the local collection using last-write-wins on
// lastUpdatedAt. Conflicts are not errors: a losing incoming record is
// counted as skipped and the local copy stays untouched.
package merge

import "github.com/centerionware/smartbillsplitter-sub001/internal/model"

// Counts reports what a merge did, for logging and tests.
type Counts struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// lastWriteWins folds incoming into local. An incoming record replaces the
// local one only when strictly newer; adopt decides which locally-owned
// fields survive the replacement.
func lastWriteWins[T any](
	local, incoming []T,
	id func(T) string,
	updatedAt func(T) int64,
	adopt func(old, in T) T,
) ([]T, Counts) {
	out := make([]T, len(local))
	copy(out, local)
	index := make(map[string]int, len(local))
	for i, rec := range local {
		index[id(rec)] = i
	}

	var c Counts
	for _, in := range incoming {
		i, ok := index[id(in)]
		if !ok {
			index[id(in)] = len(out)
			out = append(out, in)
			c.Added++
			continue
		}
		if updatedAt(in) > updatedAt(out[i]) {
			out[i] = adopt(out[i], in)
			c.Updated++
		} else {
			c.Skipped++
		}
	}
	return out, c
}

// Bills merges owned bills. The local status field always wins: archiving is
// a local decision, so even a newer incoming copy never flips it.
func Bills(local, incoming []model.Bill) ([]model.Bill, Counts) {
	return lastWriteWins(local, incoming,
		func(b model.Bill) string { return b.ID },
		func(b model.Bill) int64 { return b.LastUpdatedAt },
		func(old, in model.Bill) model.Bill {
			in.Status = old.Status
			return in
		})
}

// ImportedBills merges imported bills, pinning the local overlay and archive
// state.
func ImportedBills(local, incoming []model.ImportedBill) ([]model.ImportedBill, Counts) {
	return lastWriteWins(local, incoming,
		func(b model.ImportedBill) string { return b.ID },
		func(b model.ImportedBill) int64 { return b.LastUpdatedAt },
		func(old, in model.ImportedBill) model.ImportedBill {
			in.Status = old.Status
			in.LocalStatus = old.LocalStatus
			return in
		})
}

// RecurringBills merges recurring templates.
func RecurringBills(local, incoming []model.RecurringBill) ([]model.RecurringBill, Counts) {
	return lastWriteWins(local, incoming,
		func(b model.RecurringBill) string { return b.ID },
		func(b model.RecurringBill) int64 { return b.LastUpdatedAt },
		func(_, in model.RecurringBill) model.RecurringBill { return in })
}

// Groups merges saved participant groups.
func Groups(local, incoming []model.Group) ([]model.Group, Counts) {
	return lastWriteWins(local, incoming,
		func(g model.Group) string { return g.ID },
		func(g model.Group) int64 { return g.LastUpdatedAt },
		func(_, in model.Group) model.Group { return in })
}

// Categories merges bill categories.
func Categories(local, incoming []model.Category) ([]model.Category, Counts) {
	return lastWriteWins(local, incoming,
		func(c model.Category) string { return c.ID },
		func(c model.Category) int64 { return c.LastUpdatedAt },
		func(_, in model.Category) model.Category { return in })
}

// Add accumulates other counts into c.
func (c *Counts) Add(o Counts) {
	c.Added += o.Added
	c.Updated += o.Updated
	c.Skipped += o.Skipped
}
