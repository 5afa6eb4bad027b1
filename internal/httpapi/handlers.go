package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/set-night/coinledger/internal/domain"
	"github.com/shopspring/decimal"
)

// Thin JSON bodies for the core operations. Validation beyond shape belongs
// to the services.

type transferRequest struct {
	RecipientID int64  `json:"recipient_id"`
	Amount      int64  `json:"amount"`
	PayFee      bool   `json:"pay_fee"`
	Description string `json:"description"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	fee, err := s.ledger.Transfer(r.Context(), acc.ID, req.RecipientID, req.Amount, req.PayFee, req.Description)
	if err != nil {
		s.writeDomainError(w, err, "transfer")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fee": fee})
}

type issueRequest struct {
	Amount      int64  `json:"amount"`
	RecipientID *int64 `json:"recipient_id,omitempty"`
	Winners     int    `json:"winners,omitempty"`
	Answer      string `json:"answer,omitempty"`
}

func (s *Server) handleIssueCheque(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	inst, err := s.claims.IssueCheque(r.Context(), acc.ID, req.Amount, req.RecipientID)
	if err != nil {
		s.writeDomainError(w, err, "issue cheque")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": inst.Code})
}

func (s *Server) handleCreateMystery(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	inst, err := s.claims.CreateMystery(r.Context(), acc.ID, req.Amount, req.Winners, req.Answer)
	if err != nil {
		s.writeDomainError(w, err, "create mystery gift")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": inst.Code})
}

func (s *Server) handleCreateAirdrop(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	inst, err := s.claims.CreateAirdrop(r.Context(), acc.ID, req.Amount, req.Winners)
	if err != nil {
		s.writeDomainError(w, err, "create airdrop")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": inst.Code})
}

type claimRequest struct {
	Code  string `json:"code"`
	Guess string `json:"guess,omitempty"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	inst, err := s.claims.Claim(r.Context(), req.Code, acc.ID)
	if err != nil {
		s.writeDomainError(w, err, "claim")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"amount": inst.Amount, "status": inst.Status})
}

func (s *Server) handleTryMystery(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	inst, err := s.claims.TryMystery(r.Context(), req.Code, acc.ID, req.Guess)
	if err != nil {
		s.writeDomainError(w, err, "try mystery gift")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"amount": inst.Amount, "status": inst.Status})
}

func (s *Server) handleCollectTax(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	collected, err := s.ledger.CollectTax(r.Context(), acc.ID)
	if err != nil {
		s.writeDomainError(w, err, "collect tax")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collected": collected})
}

type redeemRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleRedeemCode(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	sc, err := s.subscriptions.Redeem(r.Context(), req.Code, acc.ID)
	if err != nil {
		s.writeDomainError(w, err, "redeem subscription code")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan_days": sc.PlanDays})
}

type purchaseRequest struct {
	Months int `json:"months"`
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	opt, ok2 := planByMonths(req.Months)
	if !ok2 {
		writeError(w, http.StatusBadRequest, "unknown plan")
		return
	}
	if err := s.subscriptions.Purchase(r.Context(), acc.ID, opt); err != nil {
		s.writeDomainError(w, err, "purchase plan")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan": opt.Label})
}

type invoiceRequest struct {
	Fiat decimal.Decimal `json:"fiat"`
}

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req invoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	inv, err := s.payments.CreateInvoice(r.Context(), acc.ID, req.Fiat)
	if err != nil {
		s.writeDomainError(w, err, "create invoice")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": inv.ID, "coins": inv.CoinAmount})
}

// handlePayInvoice is the payment-provider callback; it is guarded by the
// maintenance shared secret, not an account token.
func (s *Server) handlePayInvoice(w http.ResponseWriter, r *http.Request) {
	if !s.sharedSecretOK(r) {
		writeError(w, http.StatusUnauthorized, "bad credential")
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad invoice id")
		return
	}
	inv, err := s.payments.MarkPaid(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err, "pay invoice")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": inv.Status})
}

type broadcastRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	if !s.sharedSecretOK(r) {
		writeError(w, http.StatusUnauthorized, "bad credential")
		return
	}
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	s.notify.Broadcast(r.Context(), req.Text, time.Now())
	w.WriteHeader(http.StatusNoContent)
}

// writeDomainError maps domain failures to structured responses; anything
// else is treated as infrastructure and surfaced generically.
func (s *Server) writeDomainError(w http.ResponseWriter, err error, where string) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrInstrumentNotFound),
		errors.Is(err, domain.ErrCodeNotFound),
		errors.Is(err, domain.ErrInvoiceNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrSelfTransfer),
		errors.Is(err, domain.ErrSelfClaim),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrWrongGuess),
		errors.Is(err, domain.ErrCodeAlreadyUsed),
		errors.Is(err, domain.ErrCodeMaxUses),
		errors.Is(err, domain.ErrNothingToCollect):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.internalError(w, err, where)
	}
}
