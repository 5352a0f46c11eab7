package store

import (
	"time"

	"github.com/google/btree"
)

// pendingEntry keys a pending order in FIFO position.
type pendingEntry struct {
	CreatedAt time.Time
	OrderID   string
}

// pendingLess orders by created_at ascending, then order_id ascending, so
// Ascend yields the oldest order first.
func pendingLess(a, b pendingEntry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.OrderID < b.OrderID
}

// pendingIndex keeps pending order IDs sorted oldest first using a B-tree
// with a secondary index for removal by order ID. Not safe for concurrent
// use; MemoryStore guards it with its own lock.
type pendingIndex struct {
	tree  *btree.BTreeG[pendingEntry]
	index map[string]pendingEntry
}

func newPendingIndex() *pendingIndex {
	const degree = 32
	return &pendingIndex{
		tree:  btree.NewG[pendingEntry](degree, pendingLess),
		index: make(map[string]pendingEntry),
	}
}

func (p *pendingIndex) Insert(orderID string, createdAt time.Time) {
	e := pendingEntry{CreatedAt: createdAt, OrderID: orderID}
	p.tree.ReplaceOrInsert(e)
	p.index[orderID] = e
}

func (p *pendingIndex) Remove(orderID string) {
	e, ok := p.index[orderID]
	if !ok {
		return
	}
	delete(p.index, orderID)
	p.tree.Delete(e)
}

// Walk visits pending order IDs oldest first until fn returns false.
func (p *pendingIndex) Walk(fn func(orderID string) bool) {
	p.tree.Ascend(func(e pendingEntry) bool {
		return fn(e.OrderID)
	})
}

func (p *pendingIndex) Len() int {
	return p.tree.Len()
}
