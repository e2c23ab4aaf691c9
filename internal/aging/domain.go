package aging

import "errors"

// ItemKind tags the variant carried by a FinancialItem.
type ItemKind string

const (
	KindInvoice     ItemKind = "invoice"
	KindCreditNote  ItemKind = "credit_note"
	KindOverpayment ItemKind = "overpayment"
)

// Label returns the human-readable kind used in audit comments.
func (k ItemKind) Label() string {
	switch k {
	case KindInvoice:
		return "Invoice"
	case KindCreditNote:
		return "Credit Note"
	case KindOverpayment:
		return "Overpayment"
	default:
		return string(k)
	}
}

// PaymentEvent records one payment applied to an item.
type PaymentEvent struct {
	Date   Date    `json:"date"`
	Amount float64 `json:"amount"`
}

// AllocationEvent records a credit allocation against an item.
type AllocationEvent struct {
	Date   Date    `json:"date"`
	Amount float64 `json:"amount"`
}

// FinancialItem is the tagged variant over invoices, credit notes and
// overpayments returned by the external source. Total always holds the
// original face amount; signed bucket contributions are computed by the
// classifier and never written back.
type FinancialItem struct {
	ID        string   `json:"id"`
	Reference string   `json:"reference"`
	Kind      ItemKind `json:"kind"`
	Contact   string   `json:"contact,omitempty"`
	Currency  string   `json:"currency,omitempty"`

	IssueDate Date `json:"issue_date"`
	// DueDate is set for invoices and, when the source provides one, for
	// credit notes. Zero otherwise.
	DueDate Date `json:"due_date,omitzero"`

	Total      float64 `json:"total"`
	AmountDue  float64 `json:"amount_due"`
	AmountPaid float64 `json:"amount_paid"`
	// RemainingCredit is the unapplied balance of a credit note or
	// overpayment.
	RemainingCredit float64 `json:"remaining_credit,omitempty"`

	// Payments and Allocations are chronologically ordered.
	Payments    []PaymentEvent    `json:"payments,omitempty"`
	Allocations []AllocationEvent `json:"allocations,omitempty"`

	// FullyPaidOn carries the source's raw settlement timestamp, either an
	// ISO date or the wrapped epoch-millisecond encoding. Decoded on use.
	FullyPaidOn string `json:"fully_paid_on,omitempty"`
	UpdatedAt   Date   `json:"updated_at,omitzero"`

	// FutureApplyDate is the known application date of an overpayment, if
	// the source exposes one.
	FutureApplyDate Date `json:"future_apply_date,omitzero"`
}

// Contribution is one signed amount a classified item adds to a bucket.
// Contributions targeting the same bucket are summed, never overwritten.
type Contribution struct {
	Bucket    string   `json:"bucket"`
	Amount    float64  `json:"amount"`
	Reference string   `json:"reference"`
	ItemID    string   `json:"item_id"`
	Kind      ItemKind `json:"kind"`
}

// ErrNoScenario reports an item that matched no row of the decision
// table. Callers log it as a defect; it is never defaulted away.
var ErrNoScenario = errors.New("aging: item matches no classification scenario")
