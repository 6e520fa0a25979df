package recharge

import (
	"context"
	"errors"
	"fmt"

	"paydesk/internal/account"
	"paydesk/internal/common/database"
	"paydesk/internal/redeem"
)

// TagChoice is the routing decision made by a finance operator at approval
// time. Exactly one of AccountID or RedeemID must be set, matching Type.
type TagChoice struct {
	Type      TagType `json:"tag_type" validate:"required,oneof=CT PT"`
	AccountID string  `json:"account_id,omitempty"`
	RedeemID  string  `json:"redeem_id,omitempty"`
}

// TagResolver validates a routing choice against the referenced account or
// redeem request. It is the only place where CT and PT diverge before the
// status machine takes over.
type TagResolver struct {
	accounts account.Store
	redeems  *redeem.Service
}

func NewTagResolver(accounts account.Store, redeems *redeem.Service) *TagResolver {
	return &TagResolver{accounts: accounts, redeems: redeems}
}

// ResolveCT checks that the chosen company account exists, is active, and
// belongs to the payment method the player selected at intake.
func (tr *TagResolver) ResolveCT(ctx context.Context, req *RechargeRequest, accountID string) (*account.PaymentMethodAccount, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account_id is required for CT", ErrInvalidAccountSelection)
	}

	acct, err := tr.accounts.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: account %s not found", ErrInvalidAccountSelection, accountID)
		}
		return nil, fmt.Errorf("looking up account %s: %w", accountID, err)
	}

	if !acct.CanReceive() {
		return nil, fmt.Errorf("%w: account %s is not active", ErrInvalidAccountSelection, accountID)
	}
	if !acct.BelongsTo(req.PaymentMethodID) {
		return nil, fmt.Errorf("%w: account %s does not belong to payment method %s", ErrInvalidAccountSelection, accountID, req.PaymentMethodID)
	}

	return acct, nil
}

// ResolvePT checks that the chosen redeem request can cover the recharge
// amount with its unheld remaining balance.
func (tr *TagResolver) ResolvePT(ctx context.Context, req *RechargeRequest, redeemID string) (*redeem.RedeemRequest, error) {
	if redeemID == "" {
		return nil, fmt.Errorf("%w: redeem_id is required for PT", redeem.ErrInsufficientBalance)
	}

	rd, err := tr.redeems.Get(ctx, redeemID)
	if err != nil {
		return nil, fmt.Errorf("looking up redeem %s: %w", redeemID, err)
	}

	if !rd.CanFund(req.Amount) {
		return nil, fmt.Errorf("%w: redeem %s cannot cover %s", redeem.ErrInsufficientBalance, redeemID, req.Amount)
	}

	return rd, nil
}
