package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	// InvoiceDraft invoices have not been sent.
	InvoiceDraft InvoiceStatus = "draft"
	// InvoiceSent invoices await payment.
	InvoiceSent InvoiceStatus = "sent"
	// InvoicePaid invoices count as income.
	InvoicePaid InvoiceStatus = "paid"
)

// Valid reports whether s is a known status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceDraft, InvoiceSent, InvoicePaid:
		return true
	}
	return false
}

// EntryStatus is the status linked time entries carry while the invoice is in
// status s.
func (s InvoiceStatus) EntryStatus() TimeEntryStatus {
	if s == InvoicePaid {
		return TimeEntryPaid
	}
	return TimeEntryBilled
}

// PaymentDetails tells the client how to pay. It is passed through to the
// document export unchanged.
type PaymentDetails struct {
	Payee     string `json:"payee,omitempty"`
	BankName  string `json:"bank_name,omitempty"`
	Account   string `json:"account,omitempty"`
	Reference string `json:"reference,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// Invoice is a numbered bill made of snapshot line items.
type Invoice struct {
	IssueDate       time.Time
	DueDate         time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PaymentDetails  *PaymentDetails
	ID              string
	Number          string
	ClientReference string
	Status          InvoiceStatus
	LineItems       []InvoiceLineItem
	Total           decimal.Decimal
	Sequence        int64
}

// InvoiceLineItem is a snapshot: its values never follow later edits of the
// time entry it was derived from.
type InvoiceLineItem struct {
	SourceTimeEntryID *string
	Description       string
	Quantity          decimal.Decimal
	UnitPrice         decimal.Decimal
	Amount            decimal.Decimal
	Position          int
}

// NewLineItem builds a line item with its amount computed from quantity and
// unit price.
func NewLineItem(description string, quantity, unitPrice decimal.Decimal) InvoiceLineItem {
	return InvoiceLineItem{
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Amount:      quantity.Mul(unitPrice),
	}
}

// Recompute resets every line amount and the total from quantities and unit
// prices, discarding whatever values were there.
func (i *Invoice) Recompute() {
	total := decimal.Zero
	for idx := range i.LineItems {
		line := &i.LineItems[idx]
		line.Position = idx + 1
		line.Amount = line.Quantity.Mul(line.UnitPrice)
		total = total.Add(line.Amount)
	}
	i.Total = total
}

// TimeEntryIDs returns the entries this invoice was built from, in line order.
func (i *Invoice) TimeEntryIDs() []string {
	var ids []string
	for _, line := range i.LineItems {
		if line.SourceTimeEntryID != nil {
			ids = append(ids, *line.SourceTimeEntryID)
		}
	}
	return ids
}

// InvoiceDocument is the finalized, immutable view handed to a document
// exporter.
type InvoiceDocument struct {
	Invoice        Invoice
	PaymentDetails PaymentDetails
	BusinessName   string
}
