package aging

import "fmt"

// Classify turns one financial item plus a report date into its signed
// bucket contributions. It is pure: no I/O, no clock, and identical
// inputs always yield identical output.
//
// Invoices run through an ordered decision table of ten scenarios over
// issue date I, due date D and the derived payment date P relative to
// the report date R; the first matching row wins. An invoice matching no
// row is a defect surfaced as ErrNoScenario, never silently defaulted.
// Credit notes and overpayments contribute negative amounts under their
// own inclusion rules.
func Classify(item FinancialItem, reportDate Date, buckets BucketSet) ([]Contribution, error) {
	switch item.Kind {
	case KindInvoice:
		return classifyInvoice(item, reportDate, buckets)
	case KindCreditNote:
		return classifyCreditNote(item, reportDate, buckets), nil
	case KindOverpayment:
		return classifyOverpayment(item, reportDate, buckets), nil
	default:
		return nil, fmt.Errorf("aging: unknown item kind %q: %w", item.Kind, ErrNoScenario)
	}
}

func classifyInvoice(inv FinancialItem, r Date, buckets BucketSet) ([]Contribution, error) {
	issue := inv.IssueDate
	due := inv.DueDate
	pay, paid := inv.PaymentDate()

	issuedByReport := !issue.IsZero() && !issue.After(r)
	paidByReport := paid && !pay.After(r)
	paidOnTime := paid && !due.IsZero() && !pay.After(due)
	// Money received before the invoice existed (or before a report date
	// the invoice post-dates) is an advance payment, not a settlement.
	paidThroughReport := paidByReport || sumPaymentsThrough(inv, r) > 0
	advance := (issue.After(r) && paidThroughReport) ||
		(paidByReport && !issue.IsZero() && pay.Before(issue))

	switch {
	// 1. Issued and settled on time by R with nothing left owing.
	case issuedByReport && paidByReport && paidOnTime && !advance && inv.AmountDue == 0:
		return nil, nil

	// 2. Settled on time by R but a balance remains: only the remainder ages.
	case issuedByReport && paidByReport && paidOnTime && !advance && inv.AmountDue > 0:
		return []Contribution{contribution(inv, buckets.For(r, due), inv.AmountDue)}, nil

	// 3. Issued but not yet paid as of R, not yet due.
	case issuedByReport && !paidByReport && due.After(r):
		amount := inv.AmountDue
		if amount <= 0 {
			amount = inv.Total
		}
		return []Contribution{contribution(inv, buckets.For(r, due), amount)}, nil

	// 4. Paid before it was issued, or issued after R yet already paid:
	// an advance payment, negative in Current.
	case advance:
		amount := sumPaymentsThrough(inv, r)
		if amount <= 0 {
			amount = inv.Total
		}
		return []Contribution{contribution(inv, BucketCurrent, -amount)}, nil

	// 5. Fully settled by R (late or otherwise).
	case issuedByReport && paidByReport && inv.AmountDue == 0:
		return nil, nil

	// 6. Paid only after R: it was outstanding at R, positive in Current.
	case issuedByReport && paid && pay.After(r):
		amount := sumPaymentsAfter(inv, r) + inv.AmountDue
		if amount <= 0 {
			if inv.AmountDue > 0 {
				amount = inv.AmountDue
			} else {
				amount = inv.Total
			}
		}
		return []Contribution{contribution(inv, BucketCurrent, amount)}, nil

	// 7. Overdue at R and partially paid: the gross amount ages alongside
	// a negative partial-payment offset. The two legs stay separate so the
	// audit trail shows both.
	case issuedByReport && !due.IsZero() && !due.After(r) && inv.AmountPaid > 0 && inv.AmountDue > 0:
		bucket := buckets.For(r, due)
		return []Contribution{
			contribution(inv, bucket, inv.Total),
			contribution(inv, bucket, -inv.AmountPaid),
		}, nil

	// 8. Still outstanding as of R with no payment on record.
	case issuedByReport && !paidByReport:
		amount := inv.AmountDue
		if amount <= 0 {
			amount = inv.Total
		}
		return []Contribution{contribution(inv, buckets.For(r, due), amount)}, nil

	// 9. Paid exactly on R.
	case issuedByReport && paid && pay.Equal(r):
		return nil, nil

	// 10. Paid on or before R.
	case issuedByReport && paidByReport:
		return nil, nil
	}

	return nil, fmt.Errorf("aging: invoice %s (issue=%s due=%s): %w", inv.ID, issue, due, ErrNoScenario)
}

// classifyCreditNote includes a note only when allocation activity is
// dated after the report date; the post-report portion offsets the
// bucket of the note's own due/issue reference. Notes with no recorded
// allocations but credit still outstanding offset in full.
func classifyCreditNote(cn FinancialItem, r Date, buckets BucketSet) []Contribution {
	ref := cn.DueDate
	if ref.IsZero() {
		ref = cn.IssueDate
	}
	if len(cn.Allocations) == 0 {
		if cn.RemainingCredit > 0 {
			return []Contribution{contribution(cn, buckets.For(r, ref), -cn.RemainingCredit)}
		}
		return nil
	}
	var after float64
	for _, a := range cn.Allocations {
		if a.Date.After(r) {
			after += a.Amount
		}
	}
	if after <= 0 {
		return nil
	}
	return []Contribution{contribution(cn, buckets.For(r, ref), -after)}
}

// classifyOverpayment offsets unapplied credit in Current, or in the
// bucket of a known future application date.
func classifyOverpayment(op FinancialItem, r Date, buckets BucketSet) []Contribution {
	if op.RemainingCredit <= 0 {
		return nil
	}
	bucket := BucketCurrent
	if !op.FutureApplyDate.IsZero() {
		bucket = buckets.For(r, op.FutureApplyDate)
	}
	return []Contribution{contribution(op, bucket, -op.RemainingCredit)}
}

func contribution(item FinancialItem, bucket string, amount float64) Contribution {
	return Contribution{
		Bucket:    bucket,
		Amount:    amount,
		Reference: item.Reference,
		ItemID:    item.ID,
		Kind:      item.Kind,
	}
}

func sumPaymentsThrough(item FinancialItem, r Date) float64 {
	var total float64
	for _, p := range item.Payments {
		if !p.Date.IsZero() && !p.Date.After(r) {
			total += p.Amount
		}
	}
	return total
}

func sumPaymentsAfter(item FinancialItem, r Date) float64 {
	var total float64
	for _, p := range item.Payments {
		if p.Date.After(r) {
			total += p.Amount
		}
	}
	return total
}
