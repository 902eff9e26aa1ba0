package billing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// AssemblerStore is the persistence an Assembler needs. Invoice creation
// runs inside a transaction from BeginTx; reads happen outside it.
type AssemblerStore interface {
	service.TxBeginner
	service.InvoiceStore
	GetTimeEntries(ctx context.Context, ids []string) ([]model.TimeEntry, error)
}

// DocumentExporter turns a finalized invoice into a printable artifact.
type DocumentExporter interface {
	ExportInvoice(ctx context.Context, doc model.InvoiceDocument) error
}

// ManualItem is a caller-supplied invoice line.
type ManualItem struct {
	Description string `validate:"required"`
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// CreateInvoiceRequest describes a new invoice. Totals are never taken from
// the caller.
type CreateInvoiceRequest struct {
	IssueDate       time.Time
	DueDate         *time.Time
	PaymentDetails  *model.PaymentDetails
	ClientReference string       `validate:"required"`
	ManualItems     []ManualItem `validate:"dive"`
	TimeEntryIDs    []string     `validate:"omitempty,unique,dive,required"`
}

// Validate checks the request shape before anything is read or written.
func (r *CreateInvoiceRequest) Validate() error {
	if err := common.ValidateStruct(r); err != nil {
		return err
	}
	if r.IssueDate.IsZero() {
		return common.Validationf("issue date is required")
	}
	if r.DueDate != nil && model.Day(*r.DueDate).Before(model.Day(r.IssueDate)) {
		return common.Validationf("due date %s is before issue date %s",
			r.DueDate.Format(model.DateLayout), r.IssueDate.Format(model.DateLayout))
	}
	if len(r.ManualItems)+len(r.TimeEntryIDs) == 0 {
		return common.Validationf("an invoice needs at least one line item")
	}
	for i, item := range r.ManualItems {
		if !item.Quantity.IsPositive() {
			return common.Validationf("line %d: quantity must be positive, got %s", i+1, item.Quantity)
		}
		if item.UnitPrice.IsNegative() {
			return common.Validationf("line %d: unit price must not be negative, got %s", i+1, item.UnitPrice)
		}
	}
	return nil
}

// Assembler builds invoices from manual lines and unbilled time.
type Assembler struct {
	store     AssemblerStore
	settings  service.SettingsStore
	sequencer *Sequencer
}

// NewAssembler creates an assembler.
func NewAssembler(store AssemblerStore, settings service.SettingsStore, sequencer *Sequencer) *Assembler {
	return &Assembler{store: store, settings: settings, sequencer: sequencer}
}

// CreateInvoice validates the request, snapshots the referenced time
// entries into lines, allocates a number and then stores the invoice and
// bills the entries in one transaction. On failure nothing is stored; the
// allocated number stays consumed.
func (a *Assembler) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*model.Invoice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	settings, err := a.settings.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	var entries []model.TimeEntry
	if len(req.TimeEntryIDs) > 0 {
		entries, err = a.store.GetTimeEntries(ctx, req.TimeEntryIDs)
		if err != nil {
			return nil, err
		}
		if err := checkInvoiceable(entries); err != nil {
			return nil, err
		}
	}

	issue := model.Day(req.IssueDate)
	due := issue.AddDate(0, 0, settings.PaymentTermsDays)
	if req.DueDate != nil {
		due = model.Day(*req.DueDate)
	}

	invoice := &model.Invoice{
		ClientReference: req.ClientReference,
		IssueDate:       issue,
		DueDate:         due,
		Status:          model.InvoiceDraft,
		PaymentDetails:  req.PaymentDetails,
		LineItems:       buildLines(req.ManualItems, entries, settings.DefaultHourlyRate),
	}
	invoice.Recompute()

	number, err := a.sequencer.NextNumber(ctx, settings.InvoicePrefix)
	if err != nil {
		return nil, err
	}
	invoice.Number = number.Value
	invoice.Sequence = number.Sequence

	if err := a.persist(ctx, invoice); err != nil {
		slog.Warn("invoice creation failed; number skipped", "number", invoice.Number, "error", err)
		return nil, err
	}

	slog.Info("created invoice",
		"number", invoice.Number,
		"client", invoice.ClientReference,
		"total", invoice.Total.String(),
		"time_entries", len(entries))
	return invoice, nil
}

func (a *Assembler) persist(ctx context.Context, invoice *model.Invoice) (err error) {
	tx, err := a.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("failed to roll back invoice", "number", invoice.Number, "error", rbErr)
			}
		}
	}()

	if err = tx.CreateInvoice(ctx, invoice); err != nil {
		return err
	}
	if ids := invoice.TimeEntryIDs(); len(ids) > 0 {
		if err = tx.MarkTimeEntriesBilled(ctx, ids, invoice.ID); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit invoice: %w", err)
	}
	return nil
}

// checkInvoiceable rejects the request on the first entry that cannot be
// billed. The store re-checks under the write lock.
func checkInvoiceable(entries []model.TimeEntry) error {
	for _, e := range entries {
		if !e.Billable {
			return common.NewErrorf("time entry %s is not billable", e.ID).
				WithEntity("time_entry", e.ID).
				Mark(common.ErrValidation)
		}
		if e.Status != model.TimeEntryUnbilled {
			return common.NewErrorf("time entry %s is already %s on invoice %s", e.ID, e.Status, lo.FromPtr(e.InvoiceID)).
				WithEntity("time_entry", e.ID).
				WithHint("refresh the unbilled list before retrying").
				Mark(common.ErrConflict)
		}
	}
	return nil
}

// buildLines puts manual lines first, then one snapshot line per time entry
// ordered by date.
func buildLines(manual []ManualItem, entries []model.TimeEntry, defaultRate decimal.Decimal) []model.InvoiceLineItem {
	lines := make([]model.InvoiceLineItem, 0, len(manual)+len(entries))
	for _, item := range manual {
		lines = append(lines, model.NewLineItem(item.Description, item.Quantity, item.UnitPrice))
	}

	sorted := append([]model.TimeEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	for _, e := range sorted {
		line := model.NewLineItem(
			fmt.Sprintf("%s: %s", e.Date.Format(model.DateLayout), e.Description),
			e.Hours,
			e.EffectiveRate(defaultRate),
		)
		id := e.ID
		line.SourceTimeEntryID = &id
		lines = append(lines, line)
	}
	return lines
}

// UpdateStatus moves an invoice to status. Any status may follow any other;
// linked time entries become paid with the invoice and billed otherwise.
func (a *Assembler) UpdateStatus(ctx context.Context, id string, status model.InvoiceStatus) (*model.Invoice, error) {
	if !status.Valid() {
		return nil, common.Validationf("invalid invoice status %q", status)
	}
	if err := a.store.SetInvoiceStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return a.store.GetInvoice(ctx, id)
}

// DeleteInvoice removes an invoice and releases its time entries to
// unbilled.
func (a *Assembler) DeleteInvoice(ctx context.Context, id string) error {
	return a.store.DeleteInvoice(ctx, id)
}

// Get returns an invoice with its lines.
func (a *Assembler) Get(ctx context.Context, id string) (*model.Invoice, error) {
	return a.store.GetInvoice(ctx, id)
}

// List returns invoices matching filter.
func (a *Assembler) List(ctx context.Context, filter service.InvoiceFilter) ([]model.Invoice, error) {
	return a.store.ListInvoices(ctx, filter)
}

// Render resolves an invoice into the document handed to an exporter.
func (a *Assembler) Render(ctx context.Context, id string) (*model.InvoiceDocument, error) {
	invoice, err := a.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	settings, err := a.settings.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return &model.InvoiceDocument{
		Invoice:        *invoice,
		PaymentDetails: lo.FromPtr(invoice.PaymentDetails),
		BusinessName:   settings.BusinessName,
	}, nil
}

// Export renders an invoice and passes it to exporter.
func (a *Assembler) Export(ctx context.Context, id string, exporter DocumentExporter) error {
	doc, err := a.Render(ctx, id)
	if err != nil {
		return err
	}
	return exporter.ExportInvoice(ctx, *doc)
}
