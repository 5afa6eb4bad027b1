package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/set-night/coinledger/internal/config"
	"github.com/set-night/coinledger/internal/domain"
)

type registerRequest struct {
	Name       string `json:"name"`
	ReferrerID *int64 `json:"referrer_id,omitempty"`
}

// handleRegister creates an account and returns its first bearer token.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}

	if _, err := s.accounts.AccountByName(r.Context(), req.Name); err == nil {
		writeError(w, http.StatusConflict, "name already taken")
		return
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		s.internalError(w, err, "register lookup")
		return
	}

	secret, err := newSecret()
	if err != nil {
		s.internalError(w, err, "generate secret")
		return
	}
	acc, err := s.accounts.CreateAccount(r.Context(), req.Name, secret, req.ReferrerID)
	if err != nil {
		s.internalError(w, err, "create account")
		return
	}
	tok, err := s.tokens.Issue(acc.Name, acc.ID, acc.Secret)
	if err != nil {
		s.internalError(w, err, "issue token")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": acc.ID, "token": tok})
}

// handleRotateSecret replaces the account secret and returns a fresh token.
// Every token issued against the old secret stops verifying.
func (s *Server) handleRotateSecret(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	secret, err := newSecret()
	if err != nil {
		s.internalError(w, err, "generate secret")
		return
	}
	if err := s.accounts.RotateSecret(r.Context(), acc.ID, secret); err != nil {
		s.writeDomainError(w, err, "rotate secret")
		return
	}
	tok, err := s.tokens.Issue(acc.Name, acc.ID, secret)
	if err != nil {
		s.internalError(w, err, "issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": tok})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	limit := config.TransactionCap
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > config.TransactionCap {
			writeError(w, http.StatusBadRequest, "bad limit")
			return
		}
		limit = n
	}

	records, err := s.accounts.Transactions(r.Context(), acc.ID, limit)
	if err != nil {
		s.internalError(w, err, "list transactions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": records})
}

type donateRequest struct {
	RecipientID int64  `json:"recipient_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

func (s *Server) handleDonate(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req donateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	fee, err := s.ledger.Donate(r.Context(), acc.ID, req.RecipientID, req.Amount, req.Description)
	if err != nil {
		s.writeDomainError(w, err, "donate")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fee": fee})
}

type createCodesRequest struct {
	Days    int    `json:"days"`
	Count   int    `json:"count"`
	MaxUses int    `json:"max_uses"`
	Comment string `json:"comment"`
}

// handleCreateCodes mints subscription codes; admin-only via the shared secret.
func (s *Server) handleCreateCodes(w http.ResponseWriter, r *http.Request) {
	if !s.sharedSecretOK(r) {
		writeError(w, http.StatusUnauthorized, "bad credential")
		return
	}
	var req createCodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	codes, err := s.subscriptions.CreateCodes(r.Context(), 0, req.Days, req.Count, req.MaxUses, req.Comment)
	if err != nil {
		s.writeDomainError(w, err, "create subscription codes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"codes": codes})
}

func newSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
