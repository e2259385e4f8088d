package enums

// LedgerEntryKind classifies an immutable credit ledger entry.
type LedgerEntryKind string

const (
	LedgerEntryGrant     LedgerEntryKind = "grant"
	LedgerEntryDeduction LedgerEntryKind = "deduction"
	LedgerEntryRefund    LedgerEntryKind = "refund"
)

func (k LedgerEntryKind) IsValid() bool {
	switch k {
	case LedgerEntryGrant, LedgerEntryDeduction, LedgerEntryRefund:
		return true
	}
	return false
}
