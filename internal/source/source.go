package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgerline/ledgerline/internal/aging"
)

// Kind selects one of the server-side query shapes the external source
// understands.
type Kind string

const (
	KindUnpaidInvoices    Kind = "unpaid-invoices"
	KindPaidInvoices      Kind = "paid-invoices"
	KindEarlyPaidInvoices Kind = "early-paid-invoices"
	KindCreditNotes       Kind = "credit-notes"
	KindOverpayments      Kind = "overpayments"
)

// Kinds returns every record kind in the order a tenant report fetches
// them. The order is observable through the audit trail.
func Kinds() []Kind {
	return []Kind{
		KindUnpaidInvoices,
		KindPaidInvoices,
		KindEarlyPaidInvoices,
		KindCreditNotes,
		KindOverpayments,
	}
}

// Tenant is one external accounting entity. The connection reference is
// opaque to this package; the collaborator resolves it.
type Tenant struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Connection string `json:"connection,omitempty"`
	Currency   string `json:"currency,omitempty"`
}

// Filter carries the server-side query for one List call.
type Filter struct {
	Where    string
	Order    string
	Statuses []string
	PageSize int
}

// Page is one page of records plus the cursor for the next one; an
// empty cursor ends the listing.
type Page struct {
	Items      []aging.FinancialItem
	NextCursor string
}

// Client is the external financial-data source collaborator. Rate
// limiting, pagination and retries are the Fetcher's concern, not the
// implementation's.
type Client interface {
	List(ctx context.Context, tenant Tenant, kind Kind, filter Filter, cursor string) (Page, error)
}

// ErrTransient marks failures worth retrying: timeouts, rate limits and
// 5xx-equivalent responses. Client implementations wrap such errors so
// the Fetcher can tell them from permanent ones.
var ErrTransient = errors.New("source: transient failure")

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, context.DeadlineExceeded)
}

// BuildFilter renders the server-side filter for kind as of reportDate.
// For report dates in the future only currently outstanding invoices
// qualify; for past or present dates every invoice issued by the report
// date is pulled so the classifier can re-derive its historical status.
func BuildFilter(kind Kind, reportDate aging.Date, futureDated bool, pageSize int) Filter {
	cutoff := fmt.Sprintf("DateTime(%d,%d,%d)", reportDate.Year(), int(reportDate.Month()), reportDate.Day())
	f := Filter{Order: "Date DESC", PageSize: pageSize}
	switch kind {
	case KindUnpaidInvoices:
		if futureDated {
			f.Where = fmt.Sprintf(`Type == "ACCREC" && Status == "AUTHORISED" && AmountDue > 0 && Date <= %s`, cutoff)
			f.Statuses = []string{"AUTHORISED"}
		} else {
			f.Where = fmt.Sprintf(`Type == "ACCREC" && Date <= %s`, cutoff)
			f.Statuses = []string{"AUTHORISED", "PAID"}
		}
	case KindPaidInvoices:
		f.Where = fmt.Sprintf(`Type == "ACCREC" && Status == "PAID" && DueDate > %s`, cutoff)
		f.Statuses = []string{"PAID"}
	case KindEarlyPaidInvoices:
		f.Where = fmt.Sprintf(`Type == "ACCREC" && Date > %s`, cutoff)
		f.Statuses = []string{"PAID", "AUTHORISED"}
	case KindCreditNotes:
		f.Where = fmt.Sprintf(`Type == "ACCRECCREDIT" && Date <= %s && (Status == "PAID" OR Status == "AUTHORISED")`, cutoff)
	case KindOverpayments:
		f.Where = fmt.Sprintf(`Type == "RECEIVE-OVERPAYMENT" && Date <= %s && Status == "AUTHORISED"`, cutoff)
	}
	return f
}
