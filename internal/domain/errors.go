package domain

import "errors"

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrSelfTransfer       = errors.New("sender and recipient are the same account")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInstrumentNotFound = errors.New("instrument not found")
	ErrAlreadyClaimed     = errors.New("instrument already claimed")
	ErrSelfClaim          = errors.New("creator cannot claim own instrument")
	ErrWrongGuess         = errors.New("wrong guess")
	ErrBadToken           = errors.New("malformed or undecryptable token")
	ErrSecretMismatch     = errors.New("secret does not match account")
	ErrLockHeld           = errors.New("job lock held by another runner")
	ErrCodeNotFound       = errors.New("code not found")
	ErrCodeAlreadyUsed    = errors.New("code already used by this account")
	ErrCodeMaxUses        = errors.New("code max uses reached")
	ErrInvoiceNotFound    = errors.New("invoice not found")
	ErrNothingToCollect   = errors.New("no referral tax accrued")
)
