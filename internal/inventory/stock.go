package inventory

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/greengold/nexus/internal/ledger"
)

// StockWriter is the transactional surface ApplySale needs.
type StockWriter interface {
	// LockItems loads and row-locks the given items in id order.
	LockItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Item, error)
	// DecrementStock subtracts qty only while stock >= qty and reports
	// whether the row changed.
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error)
}

// SaleLines extracts the catalog lines of an invoice. Free-text lines with no
// inventory reference do not touch stock.
func SaleLines(items []ledger.Item) []Line {
	lines := make([]Line, 0, len(items))
	for _, it := range items {
		if it.InventoryID == nil {
			continue
		}
		lines = append(lines, Line{ItemID: *it.InventoryID, Qty: it.Qty})
	}
	return lines
}

// ApplySale is the Stock Adjuster. It must run inside the caller's
// transaction: any shortfall returns ErrInsufficientStock and the caller's
// rollback undoes earlier decrements.
func ApplySale(ctx context.Context, w StockWriter, lines []Line) ([]Movement, error) {
	totals := make(map[uuid.UUID]int, len(lines))
	for _, l := range lines {
		if l.Qty <= 0 {
			return nil, ErrInvalidQuantity
		}
		totals[l.ItemID] += l.Qty
	}
	if len(totals) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })

	items, err := w.LockItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	movements := make([]Movement, 0, len(ids))
	for _, id := range ids {
		item, ok := items[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
		qty := totals[id]
		if item.Stock < qty {
			return nil, fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientStock, item.Name, item.Stock, qty)
		}
		changed, err := w.DecrementStock(ctx, id, qty)
		if err != nil {
			return nil, err
		}
		if !changed {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientStock, item.Name)
		}
		movements = append(movements, Movement{ItemID: id, Name: item.Name, Qty: qty, Remaining: item.Stock - qty})
	}
	return movements, nil
}
