package model

import "github.com/shopspring/decimal"

// Settings is the single business settings record. NextInvoiceSeq is derived
// from the sequence counter of InvoicePrefix and only the sequencer changes it.
type Settings struct {
	InvoicePrefix     string
	BusinessName      string
	DefaultHourlyRate decimal.Decimal
	NextInvoiceSeq    int64
	PaymentTermsDays  int
}

// SequenceCounter is a monotonic per-prefix counter.
type SequenceCounter struct {
	Prefix    string
	NextValue int64
}
