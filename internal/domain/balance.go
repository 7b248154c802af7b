package domain

import "github.com/courseflow/reconciliation-engine/pkg/money"

// PaymentPreview is the effect a hypothetical payment amount would have on
// an invoice. All comparisons are exact in minor units.
type PaymentPreview struct {
	CurrentBalance   money.Money `json:"current_balance"`
	ResultingBalance money.Money `json:"resulting_balance"`
	IsOverpayment    bool        `json:"is_overpayment"`
	IsFullPayment    bool        `json:"is_full_payment"`
	IsValidAmount    bool        `json:"is_valid_amount"`
}

// PreviewPayment derives the effect of paying amount against the invoice.
// Pure read; overpayment is strict (paying the exact balance is a full
// payment, not an overpayment). Overpayments are rejected outright, there
// is no partial-then-credit mechanism.
func PreviewPayment(inv *Invoice, amount money.Money) PaymentPreview {
	current := inv.BalanceDue()
	resulting := current.Sub(amount)
	over := amount.GreaterThan(current)

	return PaymentPreview{
		CurrentBalance:   current,
		ResultingBalance: resulting,
		IsOverpayment:    over,
		IsFullPayment:    amount.Equal(current),
		IsValidAmount:    amount.IsPositive() && !over,
	}
}
