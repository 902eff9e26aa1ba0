package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/billing"
	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

func invoicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "invoices",
		Aliases: []string{"invoice"},
		Short:   "Create and manage invoices",
		Example: `  # Invoice all unbilled time for acme plus a fixed fee
  tally invoices create acme --unbilled --item "Setup fee:1:250"

  # Mark it paid; its time entries become paid too
  tally invoices status INV-1001 paid`,
	}
	cmd.AddCommand(
		invoiceCreateCmd(),
		invoiceListCmd(),
		invoiceShowCmd(),
		invoiceStatusCmd(),
		invoiceDeleteCmd(),
		invoiceExportCmd(),
	)
	return cmd
}

func invoiceCreateCmd() *cobra.Command {
	var (
		entryIDs, items                        []string
		issue, due                             string
		payee, bank, account, reference, notes string
		unbilled                               bool
	)

	cmd := &cobra.Command{
		Use:   "create <client>",
		Short: "Invoice time entries and manual line items",
		Long: `Create a draft invoice. Time entries become billed in the same
transaction; if anything fails nothing is stored and the allocated invoice
number is skipped.

Manual items are given as "description:quantity:unit price".`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			client := args[0]

			req := billing.CreateInvoiceRequest{
				ClientReference: client,
				TimeEntryIDs:    entryIDs,
			}

			var err error
			if req.IssueDate, err = parseDate(issue); err != nil {
				return err
			}
			if due != "" {
				d, dueErr := parseDate(due)
				if dueErr != nil {
					return dueErr
				}
				req.DueDate = &d
			}
			for _, raw := range items {
				item, itemErr := parseManualItem(raw)
				if itemErr != nil {
					return itemErr
				}
				req.ManualItems = append(req.ManualItems, item)
			}
			if unbilled {
				open, listErr := a.ledger.ListUnbilled(ctx, client)
				if listErr != nil {
					return listErr
				}
				ids := lo.Map(open, func(e model.TimeEntry, _ int) string { return e.ID })
				req.TimeEntryIDs = lo.Uniq(append(req.TimeEntryIDs, ids...))
			}
			details := model.PaymentDetails{Payee: payee, BankName: bank, Account: account, Reference: reference, Notes: notes}
			if details != (model.PaymentDetails{}) {
				req.PaymentDetails = &details
			}

			invoice, err := a.assembler.CreateInvoice(ctx, req)
			if err != nil {
				return err
			}
			outln(cmd, cli.FormatSuccess(fmt.Sprintf("Created invoice %s for %s: %s (%d lines)",
				invoice.Number, invoice.ClientReference, cli.Money(invoice.Total), len(invoice.LineItems))))
			return nil
		}),
	}

	flags := cmd.Flags()
	flags.StringSliceVar(&entryIDs, "entries", nil, "time entry IDs to invoice")
	flags.BoolVar(&unbilled, "unbilled", false, "invoice every unbilled billable entry of the client")
	flags.StringArrayVar(&items, "item", nil, `manual line "description:quantity:unit price" (repeatable)`)
	flags.StringVar(&issue, "issue", "today", "issue date")
	flags.StringVar(&due, "due", "", "due date (default: issue date plus payment terms)")
	flags.StringVar(&payee, "payee", "", "payment details: payee")
	flags.StringVar(&bank, "bank", "", "payment details: bank name")
	flags.StringVar(&account, "account", "", "payment details: account")
	flags.StringVar(&reference, "reference", "", "payment details: reference")
	flags.StringVar(&notes, "notes", "", "payment details: notes")
	return cmd
}

func parseManualItem(raw string) (billing.ManualItem, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 3 {
		return billing.ManualItem{}, common.NewErrorf("invalid item %q", raw).
			WithHint(`use "description:quantity:unit price"`).
			Mark(common.ErrValidation)
	}
	n := len(parts)
	quantity, err := parseDecimal("quantity", parts[n-2])
	if err != nil {
		return billing.ManualItem{}, err
	}
	price, err := parseDecimal("unit price", parts[n-1])
	if err != nil {
		return billing.ManualItem{}, err
	}
	return billing.ManualItem{
		Description: strings.Join(parts[:n-2], ":"),
		Quantity:    quantity,
		UnitPrice:   price,
	}, nil
}

func invoiceListCmd() *cobra.Command {
	var client, status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices, newest first",
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
			filter := service.InvoiceFilter{ClientReference: client}
			if status != "" {
				s := model.InvoiceStatus(status)
				if !s.Valid() {
					return common.Validationf("unknown status %q", status)
				}
				filter.Status = &s
			}

			invoices, err := a.assembler.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(invoices) == 0 {
				outln(cmd, cli.SubtleStyle.Render("No invoices found."))
				return nil
			}

			rows := lo.Map(invoices, func(inv model.Invoice, _ int) []string {
				return []string{
					inv.Number,
					inv.IssueDate.Format(model.DateLayout),
					inv.DueDate.Format(model.DateLayout),
					inv.ClientReference,
					string(inv.Status),
					cli.Money(inv.Total),
				}
			})
			outln(cmd, cli.RenderTable([]string{"NUMBER", "ISSUED", "DUE", "CLIENT", "STATUS", "TOTAL"}, rows))
			return nil
		}),
	}

	cmd.Flags().StringVar(&client, "client", "", "only this client")
	cmd.Flags().StringVar(&status, "status", "", "draft, sent or paid")
	return cmd
}

func invoiceShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <number|id>",
		Short: "Show an invoice with its line items",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			invoice, err := resolveInvoice(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}

			rows := lo.Map(invoice.LineItems, func(l model.InvoiceLineItem, _ int) []string {
				return []string{
					fmt.Sprintf("%d", l.Position),
					l.Description,
					l.Quantity.String(),
					cli.Money(l.UnitPrice),
					cli.Money(l.Amount),
				}
			})
			rows = append(rows, []string{"", cli.BoldStyle.Render("Total"), "", "", cli.BoldStyle.Render(cli.Money(invoice.Total))})

			header := fmt.Sprintf("%s · %s · issued %s · due %s",
				invoice.ClientReference, invoice.Status,
				invoice.IssueDate.Format(model.DateLayout), invoice.DueDate.Format(model.DateLayout))
			outln(cmd, cli.RenderBox(cli.InvoiceIcon+" "+invoice.Number, header+"\n\n"+
				cli.RenderTable([]string{"#", "DESCRIPTION", "QTY", "UNIT", "AMOUNT"}, rows)))
			return nil
		}),
	}
}

func invoiceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "status <number|id> <draft|sent|paid>",
		Short:     "Change an invoice's status",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(model.InvoiceDraft), string(model.InvoiceSent), string(model.InvoicePaid)},
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			invoice, err := resolveInvoice(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			updated, err := a.assembler.UpdateStatus(cmd.Context(), invoice.ID, model.InvoiceStatus(args[1]))
			if err != nil {
				return err
			}
			outln(cmd, cli.FormatSuccess(fmt.Sprintf("%s is now %s", updated.Number, updated.Status)))
			return nil
		}),
	}
}

func invoiceDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <number|id>",
		Short: "Delete an invoice and release its time entries",
		Long: `Delete an invoice. Its time entries return to unbilled; its number is not
reused.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			invoice, err := resolveInvoice(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			if ok, confirmErr := confirm(cmd, yes, "Delete invoice "+invoice.Number+"?"); confirmErr != nil || !ok {
				return confirmErr
			}
			if err := a.assembler.DeleteInvoice(cmd.Context(), invoice.ID); err != nil {
				return err
			}
			outln(cmd, cli.FormatSuccess(fmt.Sprintf("Deleted %s; %d time entries released", invoice.Number, len(invoice.TimeEntryIDs()))))
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func invoiceExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <number|id>",
		Short: "Write the invoice document as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			invoice, err := resolveInvoice(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, createErr := os.Create(output) // #nosec G304
				if createErr != nil {
					return fmt.Errorf("failed to create %s: %w", output, createErr)
				}
				defer func() { _ = f.Close() }()
				w = f
			}
			return a.assembler.Export(cmd.Context(), invoice.ID, jsonExporter{w: w})
		}),
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file (- for stdout)")
	return cmd
}

// jsonExporter writes invoice documents as indented JSON.
type jsonExporter struct {
	w io.Writer
}

type lineDocument struct {
	SourceTimeEntryID *string `json:"source_time_entry_id,omitempty"`
	Description       string  `json:"description"`
	Quantity          string  `json:"quantity"`
	UnitPrice         string  `json:"unit_price"`
	Amount            string  `json:"amount"`
}

type invoiceDocument struct {
	PaymentDetails model.PaymentDetails `json:"payment_details"`
	Business       string               `json:"business"`
	Number         string               `json:"number"`
	Client         string               `json:"client"`
	Status         string               `json:"status"`
	IssueDate      string               `json:"issue_date"`
	DueDate        string               `json:"due_date"`
	Total          string               `json:"total"`
	Lines          []lineDocument       `json:"lines"`
}

func (e jsonExporter) ExportInvoice(_ context.Context, doc model.InvoiceDocument) error {
	inv := doc.Invoice
	out := invoiceDocument{
		PaymentDetails: doc.PaymentDetails,
		Business:       doc.BusinessName,
		Number:         inv.Number,
		Client:         inv.ClientReference,
		Status:         string(inv.Status),
		IssueDate:      inv.IssueDate.Format(model.DateLayout),
		DueDate:        inv.DueDate.Format(model.DateLayout),
		Total:          inv.Total.StringFixed(2),
		Lines: lo.Map(inv.LineItems, func(l model.InvoiceLineItem, _ int) lineDocument {
			return lineDocument{
				SourceTimeEntryID: l.SourceTimeEntryID,
				Description:       l.Description,
				Quantity:          l.Quantity.String(),
				UnitPrice:         l.UnitPrice.StringFixed(2),
				Amount:            l.Amount.StringFixed(2),
			}
		}),
	}

	enc := json.NewEncoder(e.w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// resolveInvoice accepts an invoice ID or its number.
func resolveInvoice(ctx context.Context, a *app, ref string) (*model.Invoice, error) {
	if strings.HasPrefix(ref, model.PrefixInvoice+"_") {
		return a.assembler.Get(ctx, ref)
	}
	invoices, err := a.assembler.List(ctx, service.InvoiceFilter{})
	if err != nil {
		return nil, err
	}
	invoice, ok := lo.Find(invoices, func(inv model.Invoice) bool { return inv.Number == ref })
	if !ok {
		return nil, common.NewErrorf("invoice %s not found", ref).
			WithEntity("invoice", ref).
			Mark(common.ErrNotFound)
	}
	return &invoice, nil
}
