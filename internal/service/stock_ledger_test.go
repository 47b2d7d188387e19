package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dujiao-next/bookshop/internal/config"
	"github.com/dujiao-next/bookshop/internal/constants"
)

func TestStockLedgerSubtractClampsAtZero(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	book := createBook(t, env.db, "clamp-book", "199.00", 3)

	change, err := env.ledger.Adjust(context.Background(), AdjustStockInput{
		ProductID:  book.ID,
		Delta:      -5,
		ChangeType: constants.StockChangeSubtract,
		Reason:     "manual_count",
	})
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if change.PreviousStock != 3 || change.NewStock != 0 || !change.Clamped {
		t.Fatalf("expected 3 -> 0 clamped, got %d -> %d clamped=%v", change.PreviousStock, change.NewStock, change.Clamped)
	}
	if change.QuantityChange != -5 {
		t.Fatalf("history should record requested change, got %d", change.QuantityChange)
	}
	if got := reloadProduct(t, env.db, book.ID).Stock; got != 0 {
		t.Fatalf("expected stored stock 0, got %d", got)
	}
	rows := env.stockHistory(t, book.ID)
	if len(rows) != 1 {
		t.Fatalf("expected exactly one history row, got %d", len(rows))
	}
	row := rows[0]
	if row.PreviousStock != 3 || row.NewStock != 0 || row.QuantityChange != -5 || row.ChangeType != constants.StockChangeSubtract {
		t.Fatalf("unexpected history row %+v", row)
	}
}

func TestStockLedgerRejectPolicyLeavesStockUntouched(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyReject)
	book := createBook(t, env.db, "reject-book", "199.00", 2)

	_, err := env.ledger.Adjust(context.Background(), AdjustStockInput{
		ProductID:  book.ID,
		Delta:      3,
		ChangeType: constants.StockChangeSubtract,
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := reloadProduct(t, env.db, book.ID).Stock; got != 2 {
		t.Fatalf("stock should stay 2, got %d", got)
	}
	if rows := env.stockHistory(t, book.ID); len(rows) != 0 {
		t.Fatalf("rejected adjustment must not write history, got %d rows", len(rows))
	}
}

func TestStockLedgerSetAndAddRecordHistory(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	book := createBook(t, env.db, "history-book", "99.00", 4)
	ctx := context.Background()

	if _, err := env.ledger.Adjust(ctx, AdjustStockInput{ProductID: book.ID, Delta: 10, ChangeType: constants.StockChangeSet, Reason: "recount"}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	change, err := env.ledger.Adjust(ctx, AdjustStockInput{ProductID: book.ID, Delta: 3, ChangeType: constants.StockChangeAdd, Reason: "restock", Reference: "po:42"})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if change.PreviousStock != 10 || change.NewStock != 13 {
		t.Fatalf("unexpected add change: %+v", change)
	}

	rows := env.stockHistory(t, book.ID)
	if len(rows) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(rows))
	}
	// 最新在前
	if rows[0].ChangeType != constants.StockChangeAdd || rows[0].Reference != "po:42" {
		t.Fatalf("unexpected latest row: %+v", rows[0])
	}
	if rows[1].ChangeType != constants.StockChangeSet || rows[1].QuantityChange != 6 || rows[1].PreviousStock != 4 {
		t.Fatalf("unexpected set row: %+v", rows[1])
	}
}

func TestStockLedgerRejectsInvalidAdjustments(t *testing.T) {
	env := newTestEnv(t, config.OversellPolicyClamp)
	book := createBook(t, env.db, "invalid-book", "99.00", 4)
	ctx := context.Background()

	cases := []AdjustStockInput{
		{ProductID: 0, Delta: 1, ChangeType: constants.StockChangeAdd},
		{ProductID: book.ID, Delta: 0, ChangeType: constants.StockChangeSubtract},
		{ProductID: book.ID, Delta: -2, ChangeType: constants.StockChangeAdd},
		{ProductID: book.ID, Delta: -1, ChangeType: constants.StockChangeSet},
		{ProductID: book.ID, Delta: 1, ChangeType: "teleport"},
	}
	for _, input := range cases {
		if _, err := env.ledger.Adjust(ctx, input); !errors.Is(err, ErrInvalidStockAdjustment) {
			t.Fatalf("input %+v: expected ErrInvalidStockAdjustment, got %v", input, err)
		}
	}
	if _, err := env.ledger.Adjust(ctx, AdjustStockInput{ProductID: 9999, Delta: 1, ChangeType: constants.StockChangeAdd}); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestStockChangeCrossedLowStock(t *testing.T) {
	cases := []struct {
		change StockChange
		want   bool
	}{
		{StockChange{PreviousStock: 5, NewStock: 2, Threshold: 2}, true},
		{StockChange{PreviousStock: 2, NewStock: 1, Threshold: 2}, false},
		{StockChange{PreviousStock: 5, NewStock: 3, Threshold: 2}, false},
		{StockChange{PreviousStock: 5, NewStock: 0, Threshold: 0}, false},
	}
	for _, tc := range cases {
		if got := tc.change.CrossedLowStock(); got != tc.want {
			t.Fatalf("change %+v: expected %v, got %v", tc.change, tc.want, got)
		}
	}
}
