package domain

import "time"

// Table is the authoritative record for one physical table. At most one
// active order may reference a table; occupancy is serialized through
// compare-and-swap transitions on Status.
type Table struct {
	ID       string      `json:"id"`
	BranchID string      `json:"branch_id"`
	Number   int         `json:"number"`
	Capacity int         `json:"capacity"`
	Status   TableStatus `json:"status"`
	// LockedBy holds the actor owning a temporary reservation, empty
	// otherwise.
	LockedBy   string     `json:"locked_by,omitempty"`
	ReservedAt *time.Time `json:"reserved_at,omitempty"`
	Version    int64      `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func NewTable(branchID string, number, capacity int) (*Table, error) {
	if number < 1 {
		return nil, Invalidf("number", "must be at least 1")
	}
	if capacity < 1 {
		return nil, Invalidf("capacity", "must be at least 1")
	}
	now := time.Now().UTC()
	return &Table{
		BranchID:  branchID,
		Number:    number,
		Capacity:  capacity,
		Status:    TableAvailable,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// tableTransitions lists the expected prior statuses for each target status.
// Repositories enforce the same sets as conditional updates; force-reset
// bypasses the chain entirely.
var tableTransitions = map[TableStatus][]TableStatus{
	TableReserved:  {TableAvailable},
	TableOccupied:  {TableReserved, TableAvailable, TableBilling}, // walk-ins skip reserve; billing falls back on payment cancel
	TableBilling:   {TableOccupied},
	TableCleaning:  {TableBilling, TableOccupied},
	TableAvailable: {TableReserved, TableCleaning, TableOccupied},
}

// CanTransitionTable reports whether from is an accepted prior status for to.
func CanTransitionTable(from, to TableStatus) bool {
	for _, s := range tableTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// ExpectedPrior returns the accepted prior statuses for a target status.
func ExpectedPrior(to TableStatus) []TableStatus {
	return tableTransitions[to]
}
