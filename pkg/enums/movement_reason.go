package enums

// MovementReason classifies a stock ledger entry.
type MovementReason string

const (
	MovementReasonImport       MovementReason = "IMPORT"
	MovementReasonExport       MovementReason = "EXPORT"
	MovementReasonOrderReserve MovementReason = "ORDER_RESERVE"
	MovementReasonOrderRestore MovementReason = "ORDER_RESTORE"
)

var validMovementReasons = []MovementReason{
	MovementReasonImport,
	MovementReasonExport,
	MovementReasonOrderReserve,
	MovementReasonOrderRestore,
}

// String implements fmt.Stringer.
func (r MovementReason) String() string {
	return string(r)
}

// IsValid reports whether the value is a known MovementReason.
func (r MovementReason) IsValid() bool {
	for _, candidate := range validMovementReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsDecrement reports whether the reason removes units from stock.
func (r MovementReason) IsDecrement() bool {
	return r == MovementReasonExport || r == MovementReasonOrderReserve
}
