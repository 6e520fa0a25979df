// Package account holds company-owned payment account reference data.
// Accounts are selected during CT tag assignment and never mutated by the
// recharge pipeline.
package account

import (
	"errors"
	"time"
)

// Status represents the status of a payment account
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// PaymentMethodAccount represents a company bank or e-wallet account
// belonging to a payment method (a bank or payment provider).
type PaymentMethodAccount struct {
	ID              string    `json:"id"`
	PaymentMethodID string    `json:"payment_method_id"`
	HolderName      string    `json:"holder_name"`
	AccountNumber   string    `json:"account_number"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// New creates a new active payment account
func New(id, paymentMethodID, holderName, accountNumber string) (*PaymentMethodAccount, error) {
	if id == "" {
		return nil, errors.New("id is required")
	}
	if paymentMethodID == "" {
		return nil, errors.New("payment_method_id is required")
	}
	if holderName == "" {
		return nil, errors.New("holder_name is required")
	}
	if accountNumber == "" {
		return nil, errors.New("account_number is required")
	}

	now := time.Now().UTC()
	return &PaymentMethodAccount{
		ID:              id,
		PaymentMethodID: paymentMethodID,
		HolderName:      holderName,
		AccountNumber:   accountNumber,
		Status:          StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// CanReceive reports whether the account may be assigned to a CT recharge
func (a *PaymentMethodAccount) CanReceive() bool {
	return a.Status == StatusActive
}

// BelongsTo reports whether the account is owned by the given payment method
func (a *PaymentMethodAccount) BelongsTo(paymentMethodID string) bool {
	return a.PaymentMethodID == paymentMethodID
}
