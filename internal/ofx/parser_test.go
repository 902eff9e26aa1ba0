package ofx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/testutil"
)

const ofxHeader = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

`

const signon = `<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240401090000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
`

const checkingStatement = ofxHeader + `<OFX>
` + signon + `<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>021000021
<ACCTID>88001234
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240301000000[0:GMT]
<DTEND>20240331000000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240304120000[0:GMT]
<TRNAMT>-42.17
<FITID>202403040001
<NAME>POS PURCHASE COFFEE BAR
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240305120000[0:GMT]
<TRNAMT>2400.00
<FITID>202403050001
<NAME>CLIENT PAYMENT ACME
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240318120000[0:GMT]
<TRNAMT>-129.00
<FITID>202403180001
<NAME>PAYMENT
<MEMO>Coworking membership
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>5120.44
<DTASOF>20240331000000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

const cardStatement = ofxHeader + `<OFX>
` + signon + `<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>USD
<CCACCTFROM>
<ACCTID>4000123412341234
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20240301000000[0:GMT]
<DTEND>20240331000000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240309120000[0:GMT]
<TRNAMT>-19.99
<FITID>CC-0309-1
<NAME>DOMAIN REGISTRAR
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-19.99
<DTASOF>20240331000000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func TestParser_Parse_Bank(t *testing.T) {
	stmt, err := NewParser("uncategorized").Parse(context.Background(), strings.NewReader(checkingStatement))
	require.NoError(t, err)

	assert.Equal(t, []string{"88001234"}, stmt.Accounts)
	assert.Equal(t, 1, stmt.Credits)
	require.Len(t, stmt.Expenses, 2)

	coffee := stmt.Expenses[0]
	assert.Equal(t, "COFFEE BAR", coffee.Description)
	assert.Equal(t, "42.17", coffee.Amount.StringFixed(2))
	assert.Equal(t, "uncategorized", coffee.Category)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), coffee.Date)
	require.NotNil(t, coffee.ExternalReference)
	assert.Equal(t, Reference("88001234", "202403040001"), *coffee.ExternalReference)
	assert.NoError(t, coffee.Validate())

	assert.Equal(t, "Coworking membership", stmt.Expenses[1].Description, "generic names fall back to the memo")
}

func TestParser_Parse_CreditCard(t *testing.T) {
	stmt, err := NewParser("software").Parse(context.Background(), strings.NewReader("\n\n  "+cardStatement))
	require.NoError(t, err)

	assert.Equal(t, []string{"4000123412341234"}, stmt.Accounts)
	require.Len(t, stmt.Expenses, 1)
	assert.Equal(t, "DOMAIN REGISTRAR", stmt.Expenses[0].Description)
	assert.Equal(t, "19.99", stmt.Expenses[0].Amount.String())
}

func TestParser_Parse_Errors(t *testing.T) {
	_, err := NewParser("").Parse(context.Background(), strings.NewReader(checkingStatement))
	assert.True(t, common.IsValidation(err))

	_, err = NewParser("misc").Parse(context.Background(), strings.NewReader("not an ofx file"))
	require.Error(t, err)
	assert.True(t, common.IsValidation(err))
}

func TestReference(t *testing.T) {
	a := Reference("88001234", "1")
	assert.True(t, strings.HasPrefix(a, ReferencePrefix))
	assert.Equal(t, a, Reference("88001234", "1"))
	assert.NotEqual(t, a, Reference("88001234", "2"))
	assert.NotEqual(t, Reference("12", "34"), Reference("123", "4"))
}

func TestNormalize(t *testing.T) {
	in := "\n  <STATUS>\n<SEVERITY>Info</SEVERITY>\n<CODE\n"
	out := normalize(in)
	assert.Contains(t, out, "<SEVERITY>INFO</SEVERITY>")
	assert.Contains(t, out, "<CODE>")
	assert.True(t, strings.HasPrefix(out, "<STATUS>"))
}

func TestPayee(t *testing.T) {
	tests := []struct {
		name string
		txn  ofxgo.Transaction
		want string
	}{
		{name: "strips card prefix", txn: ofxgo.Transaction{Name: "DEBIT CARD PURCHASE HARDWARE STORE"}, want: "HARDWARE STORE"},
		{name: "trims", txn: ofxgo.Transaction{Name: "  HOSTING CO  "}, want: "HOSTING CO"},
		{name: "prefers payee", txn: ofxgo.Transaction{Name: "ACH DEBIT 123", Payee: &ofxgo.Payee{Name: "Utility Co"}}, want: "Utility Co"},
		{name: "memo for generic name", txn: ofxgo.Transaction{Name: "DEBIT", Memo: "Parking"}, want: "Parking"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, payee(tt.txn))
		})
	}
}

func TestImporter_SkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := testutil.SetupTestDB(t).Storage

	parse := func() *Statement {
		stmt, parseErr := NewParser("uncategorized").Parse(ctx, strings.NewReader(checkingStatement))
		require.NoError(t, parseErr)
		return stmt
	}

	importer := NewImporter(store)
	ticks := 0
	first, err := importer.Import(ctx, parse().Expenses, func() { ticks++ })
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Created: 2}, first)
	assert.Equal(t, 2, ticks)

	second, err := importer.Import(ctx, parse().Expenses, nil)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Duplicates: 2}, second)

	stored, err := store.ListExpenses(ctx, service.ExpenseFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	for _, e := range stored {
		assert.False(t, e.Recurring())
	}
}
