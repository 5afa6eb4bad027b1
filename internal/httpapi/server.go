// Package httpapi exposes thin entrypoints over the core: the notification
// channel handshake, the core ledger/claim operations and the maintenance
// trigger. Richer routing and validation live with external callers.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/set-night/coinledger/internal/claim"
	"github.com/set-night/coinledger/internal/config"
	"github.com/set-night/coinledger/internal/domain"
	"github.com/set-night/coinledger/internal/ledger"
	"github.com/set-night/coinledger/internal/maintenance"
	"github.com/set-night/coinledger/internal/notify"
	"github.com/set-night/coinledger/internal/payment"
	"github.com/set-night/coinledger/internal/subscription"
	"github.com/set-night/coinledger/internal/token"
)

type AccountStore interface {
	Account(ctx context.Context, id int64) (*domain.Account, error)
	AccountByName(ctx context.Context, name string) (*domain.Account, error)
	CreateAccount(ctx context.Context, name, secret string, referrerID *int64) (*domain.Account, error)
	RotateSecret(ctx context.Context, id int64, secret string) error
	Transactions(ctx context.Context, accountID int64, limit int) ([]domain.Transaction, error)
}

// ErrorReporter mirrors infrastructure failures to ops. May be nil.
type ErrorReporter interface {
	Error(err error, where string)
}

type Deps struct {
	Tokens        *token.Service
	Accounts      AccountStore
	Ledger        *ledger.Service
	Claims        *claim.Service
	Subscriptions *subscription.Service
	Payments      *payment.Service
	Notify        *notify.Service
	Sweeper       *maintenance.Sweeper
	Reporter      ErrorReporter

	MaintenanceSecret string
}

type Server struct {
	tokens        *token.Service
	accounts      AccountStore
	ledger        *ledger.Service
	claims        *claim.Service
	subscriptions *subscription.Service
	payments      *payment.Service
	notify        *notify.Service
	sweeper       *maintenance.Sweeper
	reporter      ErrorReporter

	maintenanceSecret string
	upgrader          websocket.Upgrader
}

func NewServer(deps Deps) *Server {
	return &Server{
		tokens:            deps.Tokens,
		accounts:          deps.Accounts,
		ledger:            deps.Ledger,
		claims:            deps.Claims,
		subscriptions:     deps.Subscriptions,
		payments:          deps.Payments,
		notify:            deps.Notify,
		sweeper:           deps.Sweeper,
		reporter:          deps.Reporter,
		maintenanceSecret: deps.MaintenanceSecret,
		upgrader:          websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	r.HandleFunc("/accounts", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/accounts/rotate", s.handleRotateSecret).Methods(http.MethodPost)
	r.HandleFunc("/transactions", s.handleTransactions).Methods(http.MethodGet)
	r.HandleFunc("/transfer", s.handleTransfer).Methods(http.MethodPost)
	r.HandleFunc("/donate", s.handleDonate).Methods(http.MethodPost)
	r.HandleFunc("/tax/collect", s.handleCollectTax).Methods(http.MethodPost)
	r.HandleFunc("/cheques", s.handleIssueCheque).Methods(http.MethodPost)
	r.HandleFunc("/mystery", s.handleCreateMystery).Methods(http.MethodPost)
	r.HandleFunc("/mystery/try", s.handleTryMystery).Methods(http.MethodPost)
	r.HandleFunc("/airdrops", s.handleCreateAirdrop).Methods(http.MethodPost)
	r.HandleFunc("/claim", s.handleClaim).Methods(http.MethodPost)
	r.HandleFunc("/subscription/purchase", s.handlePurchase).Methods(http.MethodPost)
	r.HandleFunc("/subscription/redeem", s.handleRedeemCode).Methods(http.MethodPost)
	r.HandleFunc("/invoices", s.handleCreateInvoice).Methods(http.MethodPost)

	r.HandleFunc("/internal/invoices/{id}/pay", s.handlePayInvoice).Methods(http.MethodPost)
	r.HandleFunc("/internal/subscription/codes", s.handleCreateCodes).Methods(http.MethodPost)
	r.HandleFunc("/internal/broadcast", s.handleBroadcast).Methods(http.MethodPost)
	r.HandleFunc("/internal/maintenance/sweep", s.handleSweep).Methods(http.MethodPost)
	return r
}

// authenticate resolves the bearer token to an account. The token is only
// trusted after the account resolves and its current secret matches, so a
// rotated secret cuts off every outstanding token here.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*domain.Account, bool) {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	acc, err := s.accountForToken(r.Context(), tok)
	if err != nil {
		if errors.Is(err, domain.ErrBadToken) || errors.Is(err, domain.ErrSecretMismatch) || errors.Is(err, domain.ErrAccountNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return nil, false
		}
		s.internalError(w, err, "authenticate")
		return nil, false
	}
	return acc, true
}

func (s *Server) accountForToken(ctx context.Context, tok string) (*domain.Account, error) {
	identity, id, secret, err := s.tokens.Verify(tok)
	if err != nil {
		return nil, err
	}
	acc, err := s.accounts.Account(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc.Name != identity || subtle.ConstantTimeCompare([]byte(acc.Secret), []byte(secret)) != 1 {
		return nil, domain.ErrSecretMismatch
	}
	return acc, nil
}

func (s *Server) sharedSecretOK(r *http.Request) bool {
	auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return subtle.ConstantTimeCompare([]byte(auth), []byte(s.maintenanceSecret)) == 1
}

// handleWS binds a delivery channel to the account encoded in the token.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	acc, err := s.accountForToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		if errors.Is(err, domain.ErrBadToken) || errors.Is(err, domain.ErrSecretMismatch) || errors.Is(err, domain.ErrAccountNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		s.internalError(w, err, "ws handshake")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "account_id", acc.ID, "error", err)
		return
	}

	ch := newWSChannel(conn)
	if err := s.notify.Connect(r.Context(), acc.ID, ch); err != nil {
		slog.Error("queue drain failed", "account_id", acc.ID, "error", err)
	}
	defer func() {
		s.notify.Disconnect(acc.ID, ch)
		_ = ch.Close()
	}()

	// The channel is push-only; the read loop just detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if !s.sharedSecretOK(r) {
		writeError(w, http.StatusUnauthorized, "bad credential")
		return
	}

	downgraded, err := s.sweeper.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			writeError(w, http.StatusConflict, "sweep already running")
			return
		}
		s.internalError(w, err, "maintenance sweep")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"downgraded": downgraded})
}

func planByMonths(months int) (subscription.Option, bool) {
	for _, opt := range subscription.Options() {
		if opt.Days == months*config.PlanDaysMonth {
			return opt, true
		}
	}
	return subscription.Option{}, false
}

func (s *Server) internalError(w http.ResponseWriter, err error, where string) {
	slog.Error("internal error", "where", where, "error", err)
	if s.reporter != nil {
		s.reporter.Error(err, where)
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
