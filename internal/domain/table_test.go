package domain

import (
	"errors"
	"testing"
)

func TestNewTableValidation(t *testing.T) {
	if _, err := NewTable("branch-1", 0, 4); err == nil {
		t.Error("expected error for table number 0")
	}
	if _, err := NewTable("branch-1", 5, 0); err == nil {
		t.Error("expected error for capacity 0")
	}

	tbl, err := NewTable("branch-1", 5, 4)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	if tbl.Status != TableAvailable {
		t.Errorf("status = %s, want available", tbl.Status)
	}
	if tbl.Version != 1 {
		t.Errorf("version = %d, want 1", tbl.Version)
	}

	var ve *ValidationError
	_, err = NewTable("branch-1", -1, 4)
	if !errors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestCanTransitionTable(t *testing.T) {
	allowed := []struct{ from, to TableStatus }{
		{TableAvailable, TableReserved},
		{TableReserved, TableOccupied},
		{TableAvailable, TableOccupied}, // walk-in
		{TableBilling, TableOccupied},   // payment cancelled
		{TableOccupied, TableBilling},
		{TableBilling, TableCleaning},
		{TableOccupied, TableCleaning},
		{TableCleaning, TableAvailable},
		{TableReserved, TableAvailable},
		{TableOccupied, TableAvailable}, // order cancelled
	}
	for _, tr := range allowed {
		if !CanTransitionTable(tr.from, tr.to) {
			t.Errorf("%s -> %s should be allowed", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to TableStatus }{
		{TableReserved, TableBilling},
		{TableCleaning, TableOccupied},
		{TableAvailable, TableBilling},
		{TableAvailable, TableCleaning},
		{TableBilling, TableReserved},
		{TableOccupied, TableReserved},
	}
	for _, tr := range denied {
		if CanTransitionTable(tr.from, tr.to) {
			t.Errorf("%s -> %s should be denied", tr.from, tr.to)
		}
	}
}

func TestExpectedPrior(t *testing.T) {
	priors := ExpectedPrior(TableOccupied)
	want := map[TableStatus]bool{TableReserved: true, TableAvailable: true, TableBilling: true}
	if len(priors) != len(want) {
		t.Fatalf("priors = %v", priors)
	}
	for _, s := range priors {
		if !want[s] {
			t.Errorf("unexpected prior %s", s)
		}
	}
}
