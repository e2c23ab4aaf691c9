package aging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func monthBuckets(t *testing.T, periods int) BucketSet {
	t.Helper()
	b, err := NewBucketSet(periods, PeriodMonth)
	require.NoError(t, err)
	return b
}

func TestClassifySettledOnTimeExcluded(t *testing.T) {
	buckets := monthBuckets(t, 4)
	inv := FinancialItem{
		ID:          "inv-1",
		Reference:   "INV-0001",
		Kind:        KindInvoice,
		IssueDate:   NewDate(2024, time.June, 5),
		DueDate:     NewDate(2024, time.July, 5),
		Total:       500,
		AmountDue:   0,
		AmountPaid:  500,
		FullyPaidOn: "2024-06-20",
	}
	contribs, err := Classify(inv, NewDate(2024, time.July, 31), buckets)
	require.NoError(t, err)
	require.Empty(t, contribs)
}

func TestClassifySettledOnTimeWithRemainder(t *testing.T) {
	buckets := monthBuckets(t, 4)
	inv := FinancialItem{
		ID:         "inv-2",
		Reference:  "INV-0002",
		Kind:       KindInvoice,
		IssueDate:  NewDate(2024, time.May, 1),
		DueDate:    NewDate(2024, time.June, 1),
		Total:      800,
		AmountDue:  300,
		AmountPaid: 500,
		Payments:   []PaymentEvent{{Date: NewDate(2024, time.May, 20), Amount: 500}},
	}
	contribs, err := Classify(inv, NewDate(2024, time.July, 31), buckets)
	require.NoError(t, err)
	require.Len(t, contribs, 1)
	require.Equal(t, "1 Month", contribs[0].Bucket)
	require.Equal(t, 300.0, contribs[0].Amount)
}

func TestClassifyNotYetDueIsCurrent(t *testing.T) {
	buckets := monthBuckets(t, 4)
	inv := FinancialItem{
		ID:        "inv-3",
		Reference: "INV-0003",
		Kind:      KindInvoice,
		IssueDate: NewDate(2024, time.July, 10),
		DueDate:   NewDate(2024, time.August, 10),
		Total:     250,
		AmountDue: 250,
	}
	contribs, err := Classify(inv, NewDate(2024, time.July, 31), buckets)
	require.NoError(t, err)
	require.Len(t, contribs, 1)
	require.Equal(t, BucketCurrent, contribs[0].Bucket)
	require.Equal(t, 250.0, contribs[0].Amount)
}

func TestClassifyAdvancePaymentNegativeCurrent(t *testing.T) {
	buckets := monthBuckets(t, 4)
	inv := FinancialItem{
		ID:          "inv-4",
		Reference:   "INV-0004",
		Kind:        KindInvoice,
		IssueDate:   NewDate(2024, time.July, 10),
		DueDate:     NewDate(2024, time.July, 25),
		Total:       400,
		AmountDue:   0,
		AmountPaid:  400,
		FullyPaidOn: "2024-06-15",
	}
	contribs, err := Classify(inv, NewDate(2024, time.July, 20), buckets)
	require.NoError(t, err)
	require.Len(t, contribs, 1)
	require.Equal(t, BucketCurrent, contribs[0].Bucket)
	require.Negative(t, contribs[0].Amount)
	require.Equal(t, -400.0, contribs[0].Amount)
}

func TestClassifyInvoicePostdatingReportAlreadyPaid(t *testing.T) {
	buckets := monthBuckets(t, 4)
	inv := FinancialItem{
		ID:         "inv-5",
		Reference:  "INV-0005",
		Kind:       KindInvoice,
		IssueDate:  NewDate(2024, time.August, 3),
		DueDate:    NewDate(2024, time.August, 20),
		Total:      900,
		AmountPaid: 600,
		Payments: []PaymentEvent{
			{Date: NewDate(2024, time.July, 2), Amount: 600},
			{Date: NewDate(2024, time.August, 5), Amount: 300},
		},
	}
	contribs, err := Classify(inv, NewDate(2024, time.July, 31), buckets)
	require.NoError(t, err)
	require.Len(t, contribs, 1)
	require.Equal(t, BucketCurrent, contribs[0].Bucket)
	// Only the portion paid on or before the report date reverses.
	require.Equal(t, -600.0, contribs[0].Amount)
}

func TestClassifyPaidAfterReportWasOutstanding(t *testing.T) {
	buckets := monthBuckets(t, 4)
	inv := FinancialItem{
		ID:         "inv-6",
		Reference:  "INV-0006",
		Kind:       KindInvoice,
		IssueDate:  NewDate(2024, time.June, 1),
		DueDate:    NewDate(2024, time.June, 20),
		Total:      700,
		AmountDue:  0,
		AmountPaid: 700,
		Payments:   []PaymentEvent{{Date: NewDate(2024, time.August, 9), Amount: 700}},
	}
	contribs, err := Classify(inv, NewDate(2024, time.July, 31), buckets)
	require.NoError(t, err)
	require.Len(t, contribs, 1)
	require.Equal(t, BucketCurrent, contribs[0].Bucket)
	require.Equal(t, 700.0, contribs[0].Amount)
}

func TestClassifyOverduePartialPaymentKeepsBothLegs(t *testing.T) {
	buckets := monthBuckets(t, 4)
	inv := FinancialItem{
		ID:         "inv-7",
		Reference:  "INV-0007",
		Kind:       KindInvoice,
		IssueDate:  NewDate(2024, time.April, 1),
		DueDate:    NewDate(2024, time.May, 1),
		Total:      1000,
		AmountDue:  400,
		AmountPaid: 600,
		Payments:   []PaymentEvent{{Date: NewDate(2024, time.June, 15), Amount: 600}},
	}
	contribs, err := Classify(inv, NewDate(2024, time.July, 31), buckets)
	require.NoError(t, err)
	require.Len(t, contribs, 2)
	require.Equal(t, contribs[0].Bucket, contribs[1].Bucket)
	require.Equal(t, "2 Months", contribs[0].Bucket)
	require.Equal(t, 1000.0, contribs[0].Amount)
	require.Equal(t, -600.0, contribs[1].Amount)
	require.Equal(t, 400.0, contribs[0].Amount+contribs[1].Amount)
}

func TestClassifyLongOverdueFallsInOverflow(t *testing.T) {
	buckets := monthBuckets(t, 4)
	inv := FinancialItem{
		ID:        "inv-8",
		Reference: "INV-0008",
		Kind:      KindInvoice,
		IssueDate: NewDate(2023, time.November, 1),
		DueDate:   NewDate(2023, time.December, 1),
		Total:     1200,
		AmountDue: 1200,
	}
	contribs, err := Classify(inv, NewDate(2024, time.July, 31), buckets)
	require.NoError(t, err)
	require.Len(t, contribs, 1)
	require.Equal(t, "> 4 Months", contribs[0].Bucket)
	require.Equal(t, 1200.0, contribs[0].Amount)
}

func TestClassifyPaidExactlyOnReportDateExcluded(t *testing.T) {
	buckets := monthBuckets(t, 4)
	inv := FinancialItem{
		ID:          "inv-9",
		Reference:   "INV-0009",
		Kind:        KindInvoice,
		IssueDate:   NewDate(2024, time.June, 1),
		DueDate:     NewDate(2024, time.June, 25),
		Total:       150,
		AmountDue:   0,
		AmountPaid:  150,
		FullyPaidOn: "2024-07-31",
	}
	contribs, err := Classify(inv, NewDate(2024, time.July, 31), buckets)
	require.NoError(t, err)
	require.Empty(t, contribs)
}

func TestClassifyIsDeterministic(t *testing.T) {
	buckets := monthBuckets(t, 4)
	inv := FinancialItem{
		ID:         "inv-7",
		Reference:  "INV-0007",
		Kind:       KindInvoice,
		IssueDate:  NewDate(2024, time.April, 1),
		DueDate:    NewDate(2024, time.May, 1),
		Total:      1000,
		AmountDue:  400,
		AmountPaid: 600,
		Payments:   []PaymentEvent{{Date: NewDate(2024, time.June, 15), Amount: 600}},
	}
	r := NewDate(2024, time.July, 31)
	first, err := Classify(inv, r, buckets)
	require.NoError(t, err)
	second, err := Classify(inv, r, buckets)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestClassifyCreditNoteAllocatedAfterReport(t *testing.T) {
	buckets := monthBuckets(t, 4)
	cn := FinancialItem{
		ID:        "cn-1",
		Reference: "CN-0001",
		Kind:      KindCreditNote,
		IssueDate: NewDate(2024, time.June, 10),
		Total:     300,
		Allocations: []AllocationEvent{
			{Date: NewDate(2024, time.July, 5), Amount: 100},
			{Date: NewDate(2024, time.August, 12), Amount: 200},
		},
	}
	contribs, err := Classify(cn, NewDate(2024, time.July, 31), buckets)
	require.NoError(t, err)
	require.Len(t, contribs, 1)
	// Only the allocation dated after the report date counts.
	require.Equal(t, -200.0, contribs[0].Amount)
	require.Equal(t, "1 Month", contribs[0].Bucket)
}

func TestClassifyCreditNoteFullyAllocatedBeforeReportExcluded(t *testing.T) {
	buckets := monthBuckets(t, 4)
	cn := FinancialItem{
		ID:          "cn-2",
		Reference:   "CN-0002",
		Kind:        KindCreditNote,
		IssueDate:   NewDate(2024, time.May, 2),
		Total:       90,
		Allocations: []AllocationEvent{{Date: NewDate(2024, time.May, 20), Amount: 90}},
	}
	contribs, err := Classify(cn, NewDate(2024, time.July, 31), buckets)
	require.NoError(t, err)
	require.Empty(t, contribs)
}

func TestClassifyCreditNoteUnallocatedRemainingCredit(t *testing.T) {
	buckets := monthBuckets(t, 4)
	cn := FinancialItem{
		ID:              "cn-3",
		Reference:       "CN-0003",
		Kind:            KindCreditNote,
		IssueDate:       NewDate(2024, time.July, 20),
		Total:           50,
		RemainingCredit: 50,
	}
	contribs, err := Classify(cn, NewDate(2024, time.July, 31), buckets)
	require.NoError(t, err)
	require.Len(t, contribs, 1)
	require.Equal(t, -50.0, contribs[0].Amount)
}

func TestClassifyOverpayment(t *testing.T) {
	buckets := monthBuckets(t, 4)
	op := FinancialItem{
		ID:              "op-1",
		Reference:       "OP-0001",
		Kind:            KindOverpayment,
		IssueDate:       NewDate(2024, time.June, 1),
		Total:           120,
		RemainingCredit: 120,
	}
	contribs, err := Classify(op, NewDate(2024, time.July, 31), buckets)
	require.NoError(t, err)
	require.Len(t, contribs, 1)
	require.Equal(t, BucketCurrent, contribs[0].Bucket)
	require.Equal(t, -120.0, contribs[0].Amount)

	op.FutureApplyDate = NewDate(2024, time.June, 15)
	contribs, err = Classify(op, NewDate(2024, time.July, 31), buckets)
	require.NoError(t, err)
	require.Equal(t, "1 Month", contribs[0].Bucket)

	op.RemainingCredit = 0
	contribs, err = Classify(op, NewDate(2024, time.July, 31), buckets)
	require.NoError(t, err)
	require.Empty(t, contribs)
}

func TestClassifyUnknownKindIsDefect(t *testing.T) {
	buckets := monthBuckets(t, 4)
	_, err := Classify(FinancialItem{ID: "x", Kind: ItemKind("voucher")}, NewDate(2024, time.July, 31), buckets)
	require.ErrorIs(t, err, ErrNoScenario)
}

func TestClassifyUnmatchedInvoiceIsDefect(t *testing.T) {
	buckets := monthBuckets(t, 4)
	// Issued after the report date with no payment on record: no row applies.
	inv := FinancialItem{
		ID:        "inv-x",
		Kind:      KindInvoice,
		IssueDate: NewDate(2024, time.September, 1),
		DueDate:   NewDate(2024, time.September, 20),
		Total:     10,
		AmountDue: 10,
	}
	_, err := Classify(inv, NewDate(2024, time.July, 31), buckets)
	require.ErrorIs(t, err, ErrNoScenario)
}
