// Package api exposes the recharge pipeline over HTTP. Routes are grouped
// by role; the gateways enforce that the actor on the request context
// actually holds that role.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"paydesk/internal/account"
	"paydesk/internal/common/api"
	"paydesk/internal/common/database"
	"paydesk/internal/common/money"
	"paydesk/internal/recharge"
	"paydesk/internal/redeem"
)

// Handler handles recharge, redeem and account HTTP requests
type Handler struct {
	service      *recharge.Service
	support      *recharge.SupportGateway
	finance      *recharge.FinanceGateway
	verification *recharge.VerificationGateway
	operations   *recharge.OperationsGateway
	redeems      *redeem.Service
	accounts     account.Store

	// idempotency wraps payment recording so client retries with the same
	// Idempotency-Key replay the original response.
	idempotency func(http.Handler) http.Handler
}

// NewHandler creates a new recharge handler
func NewHandler(service *recharge.Service, redeems *redeem.Service, accounts account.Store, idempotency func(http.Handler) http.Handler) *Handler {
	return &Handler{
		service:      service,
		support:      recharge.NewSupportGateway(service),
		finance:      recharge.NewFinanceGateway(service),
		verification: recharge.NewVerificationGateway(service),
		operations:   recharge.NewOperationsGateway(service),
		redeems:      redeems,
		accounts:     accounts,
		idempotency:  idempotency,
	}
}

// Routes returns the recharge routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	// Intake
	r.Post("/recharges", h.CreateRecharge)
	r.Get("/recharges", h.ListRecharges)
	r.Get("/recharges/{id}", h.GetRecharge)
	r.Post("/recharges/{id}/proof", h.SubmitProof)

	// Finance
	r.Get("/finance/recharges", h.FinanceQueue)
	r.Post("/finance/recharges/{id}/approve", h.FinanceApprove)
	r.Post("/finance/recharges/{id}/reject", h.FinanceReject)
	r.Post("/finance/recharges/{id}/verify", h.FinanceVerify)
	r.Post("/finance/recharges/{id}/verify-reject", h.FinanceVerifyReject)

	// Verification
	r.Get("/verification/recharges", h.VerificationQueue)
	r.Post("/verification/recharges/{id}/approve", h.VerificationApprove)
	r.Post("/verification/recharges/{id}/reject", h.VerificationReject)

	// Operations
	r.Get("/operations/recharges", h.OperationsQueue)
	r.Post("/operations/recharges/{id}/start", h.OperationsStart)
	r.Post("/operations/recharges/{id}/complete", h.OperationsComplete)
	r.Post("/operations/recharges/{id}/reject", h.OperationsReject)

	// Redeem ledger
	r.Post("/redeems", h.CreateRedeem)
	r.Get("/redeems/eligible", h.ListEligibleRedeems)
	r.Get("/redeems/{id}", h.GetRedeem)
	r.With(h.idempotency).Post("/redeems/{id}/payments", h.RecordRedeemPayment)

	// Account administration
	r.Post("/accounts", h.CreateAccount)
	r.Get("/accounts", h.ListAccounts)
	r.Post("/accounts/{id}/status", h.SetAccountStatus)

	return r
}

// CreateRechargeRequest is the API request for opening a recharge request
type CreateRechargeRequest struct {
	EntityID         string `json:"entity_id" validate:"required"`
	PlayerID         string `json:"player_id" validate:"required"`
	PaymentMethodID  string `json:"payment_method_id" validate:"required"`
	AmountMinor      int64  `json:"amount_minor" validate:"required,gt=0"`
	Currency         string `json:"currency" validate:"required,len=3"`
	BonusBasisPoints int64  `json:"bonus_basis_points" validate:"gte=0"`
	Remarks          string `json:"remarks"`
}

// CreateRecharge handles POST /recharges
func (h *Handler) CreateRecharge(w http.ResponseWriter, r *http.Request) {
	var req CreateRechargeRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	result, err := h.support.Create(r.Context(), recharge.CreateRequest{
		EntityID:         req.EntityID,
		PlayerID:         req.PlayerID,
		PaymentMethodID:  req.PaymentMethodID,
		Amount:           money.New(req.AmountMinor, money.Currency(req.Currency)),
		BonusBasisPoints: req.BonusBasisPoints,
		Remarks:          req.Remarks,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	api.WriteData(w, http.StatusCreated, result)
}

// ListRecharges handles GET /recharges?entity_id=...
func (h *Handler) ListRecharges(w http.ResponseWriter, r *http.Request) {
	entityID := r.URL.Query().Get("entity_id")
	if entityID == "" {
		api.BadRequest(w, "entity_id is required")
		return
	}

	requests, err := h.service.ListByEntity(r.Context(), entityID)
	if err != nil {
		api.InternalError(w, "failed to list recharge requests")
		return
	}
	api.WriteList(w, requests)
}

// GetRecharge handles GET /recharges/{id}
func (h *Handler) GetRecharge(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, result)
}

// SubmitProofRequest is the API request for recording proof of payment
type SubmitProofRequest struct {
	ProofRef string `json:"proof_ref" validate:"required"`
	Via      string `json:"via"`
}

// SubmitProof handles POST /recharges/{id}/proof
func (h *Handler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	var req SubmitProofRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	result, err := h.support.SubmitPaymentProof(r.Context(), chi.URLParam(r, "id"), req.ProofRef, req.Via)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, result)
}

// FinanceQueue handles GET /finance/recharges?entity_id=...
func (h *Handler) FinanceQueue(w http.ResponseWriter, r *http.Request) {
	h.writeQueue(w, r, h.finance.Queue)
}

// ApproveRequest is the API request for a finance approval
type ApproveRequest struct {
	TagType   string `json:"tag_type" validate:"required,oneof=CT PT"`
	AccountID string `json:"account_id"`
	RedeemID  string `json:"redeem_id"`
}

// FinanceApprove handles POST /finance/recharges/{id}/approve
func (h *Handler) FinanceApprove(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	result, err := h.finance.Approve(r.Context(), chi.URLParam(r, "id"), recharge.TagChoice{
		Type:      recharge.TagType(req.TagType),
		AccountID: req.AccountID,
		RedeemID:  req.RedeemID,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, result)
}

// RejectRequest is the API request for any rejection
type RejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// FinanceReject handles POST /finance/recharges/{id}/reject
func (h *Handler) FinanceReject(w http.ResponseWriter, r *http.Request) {
	h.writeReject(w, r, h.finance.Reject)
}

// FinanceVerify handles POST /finance/recharges/{id}/verify
func (h *Handler) FinanceVerify(w http.ResponseWriter, r *http.Request) {
	result, err := h.finance.VerifyCT(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, result)
}

// FinanceVerifyReject handles POST /finance/recharges/{id}/verify-reject
func (h *Handler) FinanceVerifyReject(w http.ResponseWriter, r *http.Request) {
	h.writeReject(w, r, h.finance.RejectVerificationCT)
}

// VerificationQueue handles GET /verification/recharges?entity_id=...
func (h *Handler) VerificationQueue(w http.ResponseWriter, r *http.Request) {
	h.writeQueue(w, r, h.verification.Queue)
}

// VerificationApprove handles POST /verification/recharges/{id}/approve
func (h *Handler) VerificationApprove(w http.ResponseWriter, r *http.Request) {
	result, err := h.verification.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, result)
}

// VerificationReject handles POST /verification/recharges/{id}/reject
func (h *Handler) VerificationReject(w http.ResponseWriter, r *http.Request) {
	h.writeReject(w, r, h.verification.Reject)
}

// OperationsQueue handles GET /operations/recharges?entity_id=...
func (h *Handler) OperationsQueue(w http.ResponseWriter, r *http.Request) {
	h.writeQueue(w, r, h.operations.Queue)
}

// OperationsStart handles POST /operations/recharges/{id}/start
func (h *Handler) OperationsStart(w http.ResponseWriter, r *http.Request) {
	result, err := h.operations.StartProcessing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, result)
}

// OperationsComplete handles POST /operations/recharges/{id}/complete
func (h *Handler) OperationsComplete(w http.ResponseWriter, r *http.Request) {
	result, err := h.operations.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, result)
}

// OperationsReject handles POST /operations/recharges/{id}/reject
func (h *Handler) OperationsReject(w http.ResponseWriter, r *http.Request) {
	h.writeReject(w, r, h.operations.Reject)
}

// CreateRedeemRequest is the API request for opening a redeem request
type CreateRedeemRequest struct {
	EntityID    string `json:"entity_id" validate:"required"`
	PlayerID    string `json:"player_id" validate:"required"`
	AmountMinor int64  `json:"amount_minor" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"required,len=3"`
	Remarks     string `json:"remarks"`
}

// CreateRedeem handles POST /redeems
func (h *Handler) CreateRedeem(w http.ResponseWriter, r *http.Request) {
	var req CreateRedeemRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	result, err := h.redeems.Create(r.Context(), redeem.CreateRequest{
		EntityID: req.EntityID,
		PlayerID: req.PlayerID,
		Amount:   money.New(req.AmountMinor, money.Currency(req.Currency)),
		Remarks:  req.Remarks,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	api.WriteData(w, http.StatusCreated, result)
}

// GetRedeem handles GET /redeems/{id}
func (h *Handler) GetRedeem(w http.ResponseWriter, r *http.Request) {
	result, err := h.redeems.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, result)
}

// ListEligibleRedeems handles GET /redeems/eligible?entity_id=...&amount_minor=...&currency=...
func (h *Handler) ListEligibleRedeems(w http.ResponseWriter, r *http.Request) {
	entityID := r.URL.Query().Get("entity_id")
	currency := r.URL.Query().Get("currency")
	amountMinor := api.QueryInt64(r, "amount_minor", 0)
	if entityID == "" || currency == "" || amountMinor <= 0 {
		api.BadRequest(w, "entity_id, currency and a positive amount_minor are required")
		return
	}

	results, err := h.redeems.ListEligibleForAmount(r.Context(), entityID, money.New(amountMinor, money.Currency(currency)))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	api.WriteList(w, results)
}

// RecordPaymentRequest is the API request for recording a direct redeem
// payment outside the PT flow.
type RecordPaymentRequest struct {
	AmountMinor int64  `json:"amount_minor" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"required,len=3"`
}

// RecordRedeemPayment handles POST /redeems/{id}/payments
func (h *Handler) RecordRedeemPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	result, err := h.redeems.RecordPayment(r.Context(), chi.URLParam(r, "id"), money.New(req.AmountMinor, money.Currency(req.Currency)))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, result)
}

// CreateAccountRequest is the API request for registering a company account
type CreateAccountRequest struct {
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
	HolderName      string `json:"holder_name" validate:"required,max=255"`
	AccountNumber   string `json:"account_number" validate:"required,max=64"`
}

// CreateAccount handles POST /accounts
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	acct, err := account.New(ulid.Make().String(), req.PaymentMethodID, req.HolderName, req.AccountNumber)
	if err != nil {
		api.BadRequest(w, err.Error())
		return
	}
	if err := h.accounts.Create(r.Context(), acct); err != nil {
		h.writeDomainError(w, err)
		return
	}
	api.WriteData(w, http.StatusCreated, acct)
}

// ListAccounts handles GET /accounts?payment_method_id=...
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	methodID := r.URL.Query().Get("payment_method_id")
	if methodID == "" {
		api.BadRequest(w, "payment_method_id is required")
		return
	}

	accounts, err := h.accounts.ListByMethod(r.Context(), methodID)
	if err != nil {
		api.InternalError(w, "failed to list accounts")
		return
	}
	api.WriteList(w, accounts)
}

// SetAccountStatusRequest is the API request for toggling account status
type SetAccountStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

// SetAccountStatus handles POST /accounts/{id}/status
func (h *Handler) SetAccountStatus(w http.ResponseWriter, r *http.Request) {
	var req SetAccountStatusRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.accounts.SetStatus(r.Context(), id, account.Status(req.Status)); err != nil {
		h.writeDomainError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, map[string]string{"id": id, "status": req.Status})
}

func (h *Handler) writeQueue(w http.ResponseWriter, r *http.Request, queue func(ctx context.Context, entityID string) ([]*recharge.RechargeRequest, error)) {
	entityID := r.URL.Query().Get("entity_id")
	if entityID == "" {
		api.BadRequest(w, "entity_id is required")
		return
	}

	requests, err := queue(r.Context(), entityID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	api.WriteList(w, requests)
}

func (h *Handler) writeReject(w http.ResponseWriter, r *http.Request, reject func(ctx context.Context, id, reason string) (*recharge.RechargeRequest, error)) {
	var req RejectRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	result, err := reject(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	api.WriteData(w, http.StatusOK, result)
}

// writeDomainError maps domain errors onto the API error taxonomy.
// Out-of-order moves surface as 422, lost races and retries of rows that
// already moved surface as 409.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case database.IsNotFound(err):
		api.NotFound(w, "resource not found")
	case errors.Is(err, recharge.ErrRoleNotAllowed):
		api.Forbidden(w, err.Error())
	case errors.Is(err, recharge.ErrIllegalTransition):
		api.UnprocessableEntity(w, api.ErrCodeIllegalTransition, err.Error())
	case errors.Is(err, recharge.ErrPreconditionFailed):
		api.Conflict(w, api.ErrCodePrecondition, err.Error())
	case errors.Is(err, recharge.ErrInvalidAccountSelection):
		api.UnprocessableEntity(w, api.ErrCodeInvalidAccount, err.Error())
	case errors.Is(err, redeem.ErrInsufficientBalance):
		api.UnprocessableEntity(w, api.ErrCodeInsufficientRedeem, err.Error())
	case errors.Is(err, recharge.ErrProofRequired):
		api.UnprocessableEntity(w, api.ErrCodeProofRequired, err.Error())
	case errors.Is(err, recharge.ErrInvalidAmount), errors.Is(err, redeem.ErrInvalidAmount):
		api.WriteError(w, http.StatusBadRequest, api.ErrCodeInvalidAmount, err.Error())
	case errors.Is(err, database.ErrAlreadyExists):
		api.Conflict(w, api.ErrCodeConflict, err.Error())
	default:
		api.InternalError(w, "internal error")
	}
}
