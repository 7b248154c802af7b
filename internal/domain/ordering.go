package domain

import "github.com/google/uuid"

// OldestUnpaid returns the invoice the organization must settle next:
// the receivable with the earliest issued_at, ties broken by id ascending
// so the answer is stable. Returns nil when nothing is owed.
func OldestUnpaid(orgInvoices []*Invoice) *Invoice {
	var oldest *Invoice
	for _, inv := range orgInvoices {
		if !inv.IsReceivable() {
			continue
		}
		if oldest == nil || issuedBefore(inv, oldest) {
			oldest = inv
		}
	}
	return oldest
}

// CanAcceptPayment reports whether the invoice may take a new payment under
// the oldest-first rule: no other receivable for the organization may have
// a strictly earlier position. When denied, the id of the invoice that must
// be settled first is returned. Advisory at read time; the reconciliation
// service enforces it on every submission.
func CanAcceptPayment(inv *Invoice, orgInvoices []*Invoice) (bool, uuid.UUID) {
	oldest := OldestUnpaid(orgInvoices)
	if oldest != nil && oldest.ID != inv.ID && issuedBefore(oldest, inv) {
		return false, oldest.ID
	}
	return true, uuid.Nil
}

func issuedBefore(a, b *Invoice) bool {
	if a.IssuedAt.Equal(b.IssuedAt) {
		return a.ID.String() < b.ID.String()
	}
	return a.IssuedAt.Before(b.IssuedAt)
}
