package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ledgerline/ledgerline/internal/aging"
)

// HTTPClient talks to the external accounting API. Authentication is a
// pre-issued bearer token; token acquisition and refresh live outside
// this service.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient constructs a client for the given API root.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func endpoint(kind Kind) string {
	switch kind {
	case KindCreditNotes:
		return "CreditNotes"
	case KindOverpayments:
		return "Overpayments"
	default:
		return "Invoices"
	}
}

// List fetches one page of records. The cursor is the page number;
// empty means the first page.
func (c *HTTPClient) List(ctx context.Context, tenant Tenant, kind Kind, filter Filter, cursor string) (Page, error) {
	page := 1
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return Page{}, fmt.Errorf("bad cursor %q: %w", cursor, err)
		}
		page = n
	}

	q := url.Values{}
	if filter.Where != "" {
		q.Set("where", filter.Where)
	}
	if filter.Order != "" {
		q.Set("order", filter.Order)
	}
	q.Set("page", strconv.Itoa(page))
	if filter.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(filter.PageSize))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint(kind), q.Encode()), nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	connection := tenant.Connection
	if connection == "" {
		connection = tenant.ID
	}
	req.Header.Set("Xero-Tenant-Id", connection)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Page{}, Transient(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode >= 500:
		return Page{}, Transient(fmt.Errorf("source returned status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return Page{}, fmt.Errorf("source returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Invoices     []wireRecord `json:"Invoices"`
		CreditNotes  []wireRecord `json:"CreditNotes"`
		Overpayments []wireRecord `json:"Overpayments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return Page{}, fmt.Errorf("decode %s page %d: %w", endpoint(kind), page, err)
	}

	var records []wireRecord
	switch kind {
	case KindCreditNotes:
		records = envelope.CreditNotes
	case KindOverpayments:
		records = envelope.Overpayments
	default:
		records = envelope.Invoices
	}

	items := make([]aging.FinancialItem, 0, len(records))
	for _, rec := range records {
		items = append(items, rec.toItem(kind))
	}
	out := Page{Items: items}
	if filter.PageSize > 0 && len(records) >= filter.PageSize {
		out.NextCursor = strconv.Itoa(page + 1)
	}
	return out, nil
}

type wireEvent struct {
	Date   string  `json:"Date"`
	Amount float64 `json:"Amount"`
}

type wireAllocation struct {
	Date   string  `json:"Date"`
	Amount float64 `json:"AppliedAmount"`
}

// wireRecord is the union of the invoice, credit note and overpayment
// shapes the source returns. Dates arrive in the wrapped
// epoch-millisecond encoding and are decoded here once.
type wireContact struct {
	Name string `json:"Name"`
}

type wireRecord struct {
	InvoiceID           string           `json:"InvoiceID"`
	CreditNoteID        string           `json:"CreditNoteID"`
	OverpaymentID       string           `json:"OverpaymentID"`
	InvoiceNumber       string           `json:"InvoiceNumber"`
	CreditNoteNumber    string           `json:"CreditNoteNumber"`
	Reference           string           `json:"Reference"`
	Contact             wireContact      `json:"Contact"`
	CurrencyCode        string           `json:"CurrencyCode"`
	Date                string           `json:"Date"`
	DueDate             string           `json:"DueDate"`
	Total               float64          `json:"Total"`
	AmountDue           float64          `json:"AmountDue"`
	AmountPaid          float64          `json:"AmountPaid"`
	RemainingCredit     float64          `json:"RemainingCredit"`
	Payments            []wireEvent      `json:"Payments"`
	Allocations         []wireAllocation `json:"Allocations"`
	FullyPaidOnDate     string           `json:"FullyPaidOnDate"`
	UpdatedDateUTC      string           `json:"UpdatedDateUTC"`
	ExpectedPaymentDate string           `json:"ExpectedPaymentDate"`
}

func (r wireRecord) toItem(kind Kind) aging.FinancialItem {
	item := aging.FinancialItem{
		Contact:         r.Contact.Name,
		Currency:        r.CurrencyCode,
		IssueDate:       decodeDate(r.Date),
		DueDate:         decodeDate(r.DueDate),
		Total:           r.Total,
		AmountDue:       r.AmountDue,
		AmountPaid:      r.AmountPaid,
		RemainingCredit: r.RemainingCredit,
		FullyPaidOn:     r.FullyPaidOnDate,
		UpdatedAt:       decodeDate(r.UpdatedDateUTC),
	}
	switch kind {
	case KindCreditNotes:
		item.Kind = aging.KindCreditNote
		item.ID = r.CreditNoteID
		item.Reference = firstNonEmpty(r.Reference, r.CreditNoteNumber, r.CreditNoteID)
	case KindOverpayments:
		item.Kind = aging.KindOverpayment
		item.ID = r.OverpaymentID
		item.Reference = firstNonEmpty(r.Reference, r.OverpaymentID)
		item.FutureApplyDate = decodeDate(r.ExpectedPaymentDate)
	default:
		item.Kind = aging.KindInvoice
		item.ID = r.InvoiceID
		item.Reference = firstNonEmpty(r.InvoiceNumber, r.Reference, r.InvoiceID)
	}
	for _, p := range r.Payments {
		item.Payments = append(item.Payments, aging.PaymentEvent{Date: decodeDate(p.Date), Amount: p.Amount})
	}
	for _, a := range r.Allocations {
		item.Allocations = append(item.Allocations, aging.AllocationEvent{Date: decodeDate(a.Date), Amount: a.Amount})
	}
	return item
}

func decodeDate(raw string) aging.Date {
	d, ok := aging.DecodeWireDate(raw)
	if !ok {
		return aging.Date{}
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
