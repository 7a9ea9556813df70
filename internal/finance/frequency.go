// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package finance

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
)

// Frequency is how often a recurring amount occurs.
type Frequency string

const (
	Weekly    Frequency = "weekly"
	Biweekly  Frequency = "biweekly"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
	Annual    Frequency = "annual"
)

var twelve = decimal.NewFromInt(12)

// perYear is the number of occurrences per year.
var perYear = map[Frequency]int64{
	Weekly:    52,
	Biweekly:  26,
	Monthly:   12,
	Quarterly: 4,
	Annual:    1,
}

// Valid reports whether f is a recognized frequency.
func (f Frequency) Valid() bool {
	_, ok := perYear[f]
	return ok
}

// ParseFrequency accepts the canonical names case-insensitively, plus
// "yearly" for annual and "fortnightly" for biweekly.
func ParseFrequency(s string) (Frequency, error) {
	norm := Frequency(strings.ToLower(strings.TrimSpace(s)))
	switch norm {
	case "yearly":
		return Annual, nil
	case "fortnightly", "bi-weekly":
		return Biweekly, nil
	}
	if !norm.Valid() {
		return "", ledgererr.Errorf(ledgererr.CodeFinanceFrequencyInvalid, "unknown frequency %q", s)
	}
	return norm, nil
}

// UnmarshalJSON decodes a frequency through ParseFrequency, so stored
// rows written as "Monthly" or "yearly" land on the canonical names. An
// empty string or null leaves the frequency empty.
func (f *Frequency) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ledgererr.Wrap(err, ledgererr.CodeFinanceFrequencyInvalid, "frequency must be a string")
	}
	if strings.TrimSpace(s) == "" {
		*f = ""
		return nil
	}
	parsed, err := ParseFrequency(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ToMonthly converts an amount paid at frequency f to its monthly
// equivalent. An empty frequency is treated as monthly.
func ToMonthly(amount decimal.Decimal, f Frequency) decimal.Decimal {
	if f == "" {
		f = Monthly
	}
	n, ok := perYear[f]
	if !ok {
		return decimal.Zero
	}
	return amount.Mul(decimal.NewFromInt(n)).Div(twelve)
}
