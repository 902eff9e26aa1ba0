// Package model defines the domain types of the billing ledger.
package model

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// ID prefixes per entity type.
const (
	PrefixTimeEntry = "te"
	PrefixExpense   = "exp"
	PrefixRule      = "rule"
	PrefixInvoice   = "inv"
)

// NewID returns a k-sortable unique identifier with a type prefix,
// e.g. inv_01HV2Z5ZK5Y3M5T9Q8G7F6E5D4.
func NewID(prefix string) string {
	if prefix == "" {
		return ulid.Make().String()
	}
	return fmt.Sprintf("%s_%s", prefix, ulid.Make().String())
}
