// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package finance holds the tracked entity models and the ratios derived
// from them.
package finance

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	ledgererr "github.com/sigil-dev/ledger/pkg/errors"
)

type PersonalInfo struct {
	UserID        uuid.UUID  `json:"user_id"`
	FullName      string     `json:"full_name"`
	DateOfBirth   string     `json:"date_of_birth,omitempty"`
	Occupation    string     `json:"occupation,omitempty"`
	Dependents    int        `json:"dependents"`
	RiskTolerance string     `json:"risk_tolerance,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

type BusinessInfo struct {
	UserID        uuid.UUID       `json:"user_id"`
	BusinessName  string          `json:"business_name"`
	Industry      string          `json:"industry,omitempty"`
	EntityType    string          `json:"entity_type,omitempty"`
	AnnualRevenue decimal.Decimal `json:"annual_revenue"`
	Employees     int             `json:"employees"`
	UpdatedAt     *time.Time      `json:"updated_at,omitempty"`
}

type Asset struct {
	ID       string          `json:"id,omitempty"`
	UserID   uuid.UUID       `json:"user_id"`
	Name     string          `json:"name"`
	Category string          `json:"category,omitempty"`
	Value    decimal.Decimal `json:"value"`
	Liquid   bool            `json:"liquid"` // cash or cash-equivalent
}

type Liability struct {
	ID             string          `json:"id,omitempty"`
	UserID         uuid.UUID       `json:"user_id"`
	Name           string          `json:"name"`
	Category       string          `json:"category,omitempty"`
	Balance        decimal.Decimal `json:"balance"`
	InterestRate   decimal.Decimal `json:"interest_rate"` // annual, percent
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
}

type Income struct {
	ID        string          `json:"id,omitempty"`
	UserID    uuid.UUID       `json:"user_id"`
	Source    string          `json:"source"`
	Amount    decimal.Decimal `json:"amount"`
	Frequency Frequency       `json:"frequency"`
}

type Expense struct {
	ID          string          `json:"id,omitempty"`
	UserID      uuid.UUID       `json:"user_id"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Frequency   Frequency       `json:"frequency"`
}

func nonNegative(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return ledgererr.New(ledgererr.CodeFinanceAmountInvalid, "amount must not be negative",
			ledgererr.Field("field", field), ledgererr.FieldValue("value", d.String()))
	}
	return nil
}

func validFrequency(f Frequency) error {
	if f != "" && !f.Valid() {
		return ledgererr.Errorf(ledgererr.CodeFinanceFrequencyInvalid, "unknown frequency %q", f)
	}
	return nil
}

func (b BusinessInfo) Validate() error {
	return nonNegative("annual_revenue", b.AnnualRevenue)
}

func (a Asset) Validate() error {
	return nonNegative("value", a.Value)
}

func (l Liability) Validate() error {
	for field, v := range map[string]decimal.Decimal{
		"balance":         l.Balance,
		"interest_rate":   l.InterestRate,
		"monthly_payment": l.MonthlyPayment,
	} {
		if err := nonNegative(field, v); err != nil {
			return err
		}
	}
	return nil
}

func (i Income) Validate() error {
	if err := nonNegative("amount", i.Amount); err != nil {
		return err
	}
	return validFrequency(i.Frequency)
}

func (e Expense) Validate() error {
	if err := nonNegative("amount", e.Amount); err != nil {
		return err
	}
	return validFrequency(e.Frequency)
}
