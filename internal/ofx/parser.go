// Package ofx turns OFX/QFX bank and card statements into one-time expenses.
package ofx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

// ReferencePrefix starts every external reference produced by the parser.
const ReferencePrefix = "ofx:"

var (
	severityPattern = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	unclosedTag     = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)

	noisePrefixes = []string{
		"POS PURCHASE ",
		"PURCHASE AUTHORIZED ON ",
		"DEBIT CARD PURCHASE ",
		"ACH DEBIT ",
		"CHECK CARD ",
		"VISA PURCHASE ",
		"MC PURCHASE ",
	}
)

// Statement is the expense view of one OFX file.
type Statement struct {
	Accounts []string
	Expenses []model.Expense
	// Credits counts deposits and refunds, which are not expenses.
	Credits int
}

// Parser converts statement debits into expenses.
type Parser struct {
	category string
}

// NewParser creates a parser that files every expense under category.
func NewParser(category string) *Parser {
	return &Parser{category: category}
}

// Parse reads an OFX/QFX document. Each debit becomes an unsaved expense
// whose external reference identifies the (account, FITID) pair, so
// importing the same statement twice is detectable.
func (p *Parser) Parse(ctx context.Context, reader io.Reader) (*Statement, error) {
	if strings.TrimSpace(p.category) == "" {
		return nil, common.Validationf("import category is required")
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(normalize(string(content))))
	if err != nil {
		return nil, common.NewErrorf("failed to parse OFX file: %v", err).
			WithHint("export the statement again as OFX or QFX").
			Mark(common.ErrValidation)
	}

	stmt := &Statement{}
	for _, msg := range resp.Bank {
		if bank, ok := msg.(*ofxgo.StatementResponse); ok {
			p.collect(stmt, string(bank.BankAcctFrom.AcctID), bank.BankTranList)
		}
	}
	for _, msg := range resp.CreditCard {
		if card, ok := msg.(*ofxgo.CCStatementResponse); ok {
			p.collect(stmt, string(card.CCAcctFrom.AcctID), card.BankTranList)
		}
	}
	stmt.Accounts = lo.Uniq(stmt.Accounts)

	slog.InfoContext(ctx, "Parsed OFX file",
		"accounts", len(stmt.Accounts),
		"expenses", len(stmt.Expenses),
		"credits", stmt.Credits)

	return stmt, nil
}

func (p *Parser) collect(stmt *Statement, account string, list *ofxgo.TransactionList) {
	stmt.Accounts = append(stmt.Accounts, account)
	if list == nil {
		return
	}
	for _, txn := range list.Transactions {
		amount, err := decimal.NewFromString(txn.TrnAmt.FloatString(2))
		if err != nil {
			slog.Warn("Skipping transaction with unreadable amount",
				"account", account,
				"fitid", txn.FiTID,
				"error", err)
			continue
		}
		if !amount.IsNegative() {
			stmt.Credits++
			continue
		}

		ref := Reference(account, string(txn.FiTID))
		stmt.Expenses = append(stmt.Expenses, model.Expense{
			Date:              model.Day(txn.DtPosted.Time),
			Description:       payee(txn),
			Category:          p.category,
			Amount:            amount.Neg(),
			ExternalReference: &ref,
		})
	}
}

// Reference derives the stable external reference of a statement line.
func Reference(account, fitID string) string {
	sum := sha256.Sum256([]byte(account + "\x00" + fitID))
	return ReferencePrefix + hex.EncodeToString(sum[:16])
}

// normalize repairs the formatting slips banks commonly make in SGML OFX.
func normalize(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityPattern.ReplaceAllStringFunc(content, strings.ToUpper)
	return unclosedTag.ReplaceAllString(content, "$1>")
}

// payee picks the most readable description of a transaction.
func payee(txn ofxgo.Transaction) string {
	if txn.Payee != nil && txn.Payee.Name != "" {
		return strings.TrimSpace(string(txn.Payee.Name))
	}

	name := strings.TrimSpace(string(txn.Name))
	if txn.Memo != "" && (name == "" || lo.Contains([]string{"DEBIT", "PURCHASE", "PAYMENT", "CARD PURCHASE"}, strings.ToUpper(name))) {
		name = strings.TrimSpace(string(txn.Memo))
	}

	upper := strings.ToUpper(name)
	for _, prefix := range noisePrefixes {
		if strings.HasPrefix(upper, prefix) {
			name = strings.TrimSpace(name[len(prefix):])
			break
		}
	}
	if name == "" {
		return fmt.Sprintf("%v %s", txn.TrnType, txn.FiTID)
	}
	return name
}
