package gamepass

import (
	"context"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// AccountID identifies an account supplied by the hosting platform.
type AccountID struct {
	value string
}

// BundleSize is the number of games sold together at one cost tier.
type BundleSize uint8

// GameCount counts game credits; the purchase path caps it at 16 bits.
type GameCount uint16

// DayIndex counts whole days elapsed since the unix epoch.
type DayIndex uint64

// SeedID is the contract-wide monotonic session seed counter.
type SeedID uint64

// TokenAmount is an unsigned token amount in base (24-decimal) units.
type TokenAmount struct {
	value uint256.Int
}

// NewAccountID validates and normalizes an account id.
func NewAccountID(raw string) (AccountID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AccountID{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	return AccountID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id AccountID) String() string {
	return id.value
}

// IsZero reports whether the id carries no value.
func (id AccountID) IsZero() bool {
	return id.value == ""
}

// Equal compares two account ids by value.
func (id AccountID) Equal(other AccountID) bool {
	return id.value == other.value
}

// NewBundleSize validates a bundle size.
func NewBundleSize(raw int) (BundleSize, error) {
	if raw <= 0 || raw > 255 {
		return 0, fmt.Errorf("%w: must be between 1 and 255", ErrInvalidBundleSize)
	}
	return BundleSize(raw), nil
}

// NewTokenAmount parses a decimal base-unit amount.
func NewTokenAmount(raw string) (TokenAmount, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TokenAmount{}, fmt.Errorf("%w: empty value", ErrInvalidTokenAmount)
	}
	parsed, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return TokenAmount{}, fmt.Errorf("%w: %v", ErrInvalidTokenAmount, err)
	}
	return TokenAmount{value: *parsed}, nil
}

// TokenAmountFromUint64 wraps a small base-unit amount.
func TokenAmountFromUint64(raw uint64) TokenAmount {
	return TokenAmount{value: *uint256.NewInt(raw)}
}

// TokensFromWhole scales a whole-token count to base units.
func TokensFromWhole(whole uint64) TokenAmount {
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(tokenDecimals))
	scaled := new(uint256.Int).Mul(uint256.NewInt(whole), scale)
	return TokenAmount{value: *scaled}
}

// String renders the amount as a decimal base-unit string.
func (amount TokenAmount) String() string {
	return amount.value.Dec()
}

// IsZero reports whether the amount is zero.
func (amount TokenAmount) IsZero() bool {
	return amount.value.IsZero()
}

// LessThan reports amount < other.
func (amount TokenAmount) LessThan(other TokenAmount) bool {
	return amount.value.Cmp(&other.value) < 0
}

// AtLeast reports amount >= other.
func (amount TokenAmount) AtLeast(other TokenAmount) bool {
	return amount.value.Cmp(&other.value) >= 0
}

// Equal reports amount == other.
func (amount TokenAmount) Equal(other TokenAmount) bool {
	return amount.value.Eq(&other.value)
}

// DivUint64 returns amount / divisor (integer division).
func (amount TokenAmount) DivUint64(divisor uint64) TokenAmount {
	quotient := new(uint256.Int).Div(&amount.value, uint256.NewInt(divisor))
	return TokenAmount{value: *quotient}
}

// DivMod returns quotient and remainder of amount / divisor.
func (amount TokenAmount) DivMod(divisor TokenAmount) (TokenAmount, TokenAmount) {
	quotient, remainder := new(uint256.Int).DivMod(&amount.value, &divisor.value, new(uint256.Int))
	return TokenAmount{value: *quotient}, TokenAmount{value: *remainder}
}

// AsGameCount converts a purchased-game quotient into a GameCount,
// rejecting values beyond the 16-bit range.
func (amount TokenAmount) AsGameCount() (GameCount, error) {
	if !amount.value.IsUint64() || amount.value.Uint64() > maxPurchasableGames {
		return 0, fmt.Errorf("%w: limit is %d", ErrTooManyGames, maxPurchasableGames)
	}
	return GameCount(amount.value.Uint64()), nil
}

// FreeCreditState is the stored daily free-game balance for one account.
// Amount is only meaningful for the stored day; reads on any other day
// see the default daily grant instead.
type FreeCreditState struct {
	Day    DayIndex
	Amount GameCount
}

// Session is the stored active game for one account.
type Session struct {
	SeedID      SeedID
	StartTimeMS int64
}

// SessionView is the read-model returned to callers.
type SessionView struct {
	SeedID      SeedID
	StartTimeMS int64
}

// CostTier is one row of the game-cost table. PerGamePrice is the price
// of a single game when bought in a bundle of Bundle games.
type CostTier struct {
	Bundle       BundleSize
	PerGamePrice TokenAmount
}

// ContractState is the owner-mutable configuration singleton.
type ContractState struct {
	Owner                AccountID
	PaymentToken         AccountID
	MinterContract       AccountID
	MinDeposit           TokenAmount
	MaxSessionDurationMS int64
	SeedID               SeedID
	SchemaVersion        int
}

// DepositReceipt records one processed payment notification.
type DepositReceipt struct {
	ReceiptID     string
	Payer         AccountID
	Amount        TokenAmount
	GamesBought   GameCount
	Remainder     TokenAmount
	Memo          string
	CreatedUnixMS int64
}

// StartPolicy selects how RequestSession treats an unexpired active session.
type StartPolicy int

const (
	// StartPolicyForfeit silently ends the active session with zero reward
	// before starting the new one.
	StartPolicyForfeit StartPolicy = iota
	// StartPolicyReject refuses to start while a session is active.
	StartPolicyReject
)

// Store is the persistence contract used by Service. All state-mutating
// service operations run inside WithTx.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	GetFreeCredit(ctx context.Context, account AccountID) (FreeCreditState, bool, error)
	PutFreeCredit(ctx context.Context, account AccountID, state FreeCreditState) error
	GetPaidCredit(ctx context.Context, account AccountID) (GameCount, error)
	PutPaidCredit(ctx context.Context, account AccountID, amount GameCount) error

	GetGameCost(ctx context.Context, bundle BundleSize) (TokenAmount, bool, error)
	PutGameCost(ctx context.Context, bundle BundleSize, perGamePrice TokenAmount) error
	DeleteGameCost(ctx context.Context, bundle BundleSize) error
	ListGameCosts(ctx context.Context) ([]CostTier, error)

	GetSession(ctx context.Context, account AccountID) (Session, bool, error)
	PutSession(ctx context.Context, account AccountID, session Session) error
	DeleteSession(ctx context.Context, account AccountID) error

	GetContractState(ctx context.Context) (ContractState, error)
	PutContractState(ctx context.Context, state ContractState) error

	InsertDepositReceipt(ctx context.Context, receipt DepositReceipt) error
	ListDepositReceipts(ctx context.Context, payer AccountID, limit int) ([]DepositReceipt, error)
}

// MintGateway dispatches reward mints to the external minting service.
// Dispatch is fire-and-forget: the session state is already committed and
// the eventual outcome is only observed through the gateway's own logging.
type MintGateway interface {
	Mint(ctx context.Context, recipient AccountID, amount TokenAmount, referral *AccountID)
}
