package gamepass

import (
	"context"
	"sort"
	"testing"
)

type stubStore struct {
	freeCredits map[string]FreeCreditState
	paidCredits map[string]GameCount
	gameCosts   map[BundleSize]TokenAmount
	sessions    map[string]Session
	state       ContractState
	receipts    []DepositReceipt

	getFreeError       error
	getPaidError       error
	putPaidError       error
	getStateError      error
	putStateError      error
	putSessionError    error
	deleteSessionError error
	insertReceiptError error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	owner := mustAccountID(test, stubOwnerAccount)
	paymentToken := mustAccountID(test, stubPaymentToken)
	minter := mustAccountID(test, stubMinterAccount)
	return &stubStore{
		freeCredits: map[string]FreeCreditState{},
		paidCredits: map[string]GameCount{},
		gameCosts: map[BundleSize]TokenAmount{
			1:  TokensFromWhole(15),
			10: TokensFromWhole(14),
		},
		sessions: map[string]Session{},
		state: ContractState{
			Owner:                owner,
			PaymentToken:         paymentToken,
			MinterContract:       minter,
			MinDeposit:           DefaultMinDeposit(),
			MaxSessionDurationMS: DefaultMaxSessionDurationMS,
			SchemaVersion:        2,
		},
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) GetFreeCredit(_ context.Context, account AccountID) (FreeCreditState, bool, error) {
	if store.getFreeError != nil {
		return FreeCreditState{}, false, store.getFreeError
	}
	state, ok := store.freeCredits[account.String()]
	return state, ok, nil
}

func (store *stubStore) PutFreeCredit(_ context.Context, account AccountID, state FreeCreditState) error {
	store.freeCredits[account.String()] = state
	return nil
}

func (store *stubStore) GetPaidCredit(_ context.Context, account AccountID) (GameCount, error) {
	if store.getPaidError != nil {
		return 0, store.getPaidError
	}
	return store.paidCredits[account.String()], nil
}

func (store *stubStore) PutPaidCredit(_ context.Context, account AccountID, amount GameCount) error {
	if store.putPaidError != nil {
		return store.putPaidError
	}
	store.paidCredits[account.String()] = amount
	return nil
}

func (store *stubStore) GetGameCost(_ context.Context, bundle BundleSize) (TokenAmount, bool, error) {
	price, ok := store.gameCosts[bundle]
	return price, ok, nil
}

func (store *stubStore) PutGameCost(_ context.Context, bundle BundleSize, perGamePrice TokenAmount) error {
	store.gameCosts[bundle] = perGamePrice
	return nil
}

func (store *stubStore) DeleteGameCost(_ context.Context, bundle BundleSize) error {
	delete(store.gameCosts, bundle)
	return nil
}

func (store *stubStore) ListGameCosts(_ context.Context) ([]CostTier, error) {
	tiers := make([]CostTier, 0, len(store.gameCosts))
	for bundle, price := range store.gameCosts {
		tiers = append(tiers, CostTier{Bundle: bundle, PerGamePrice: price})
	}
	sort.Slice(tiers, func(left, right int) bool { return tiers[left].Bundle < tiers[right].Bundle })
	return tiers, nil
}

func (store *stubStore) GetSession(_ context.Context, account AccountID) (Session, bool, error) {
	session, ok := store.sessions[account.String()]
	return session, ok, nil
}

func (store *stubStore) PutSession(_ context.Context, account AccountID, session Session) error {
	if store.putSessionError != nil {
		return store.putSessionError
	}
	store.sessions[account.String()] = session
	return nil
}

func (store *stubStore) DeleteSession(_ context.Context, account AccountID) error {
	if store.deleteSessionError != nil {
		return store.deleteSessionError
	}
	delete(store.sessions, account.String())
	return nil
}

func (store *stubStore) GetContractState(_ context.Context) (ContractState, error) {
	if store.getStateError != nil {
		return ContractState{}, store.getStateError
	}
	return store.state, nil
}

func (store *stubStore) PutContractState(_ context.Context, state ContractState) error {
	if store.putStateError != nil {
		return store.putStateError
	}
	store.state = state
	return nil
}

func (store *stubStore) InsertDepositReceipt(_ context.Context, receipt DepositReceipt) error {
	if store.insertReceiptError != nil {
		return store.insertReceiptError
	}
	store.receipts = append(store.receipts, receipt)
	return nil
}

func (store *stubStore) ListDepositReceipts(_ context.Context, payer AccountID, limit int) ([]DepositReceipt, error) {
	receipts := make([]DepositReceipt, 0, len(store.receipts))
	for index := len(store.receipts) - 1; index >= 0 && len(receipts) < limit; index-- {
		if store.receipts[index].Payer.Equal(payer) {
			receipts = append(receipts, store.receipts[index])
		}
	}
	return receipts, nil
}

type stubMinter struct {
	recipients []AccountID
	amounts    []TokenAmount
	referrals  []*AccountID
}

func (minter *stubMinter) Mint(_ context.Context, recipient AccountID, amount TokenAmount, referral *AccountID) {
	minter.recipients = append(minter.recipients, recipient)
	minter.amounts = append(minter.amounts, amount)
	minter.referrals = append(minter.referrals, referral)
}

const (
	stubOwnerAccount  = "owner.test"
	stubPaymentToken  = "token.cheddar.test"
	stubMinterAccount = "minter.test"

	// Noon of unix day one, in milliseconds.
	stubNowMS = int64(millisecondsPerDay + millisecondsPerDay/2)
)

type stubClock struct {
	nowMS int64
}

func (clock *stubClock) now() int64 {
	return clock.nowMS
}

func mustNewService(test *testing.T, store Store, clock *stubClock, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, clock.now, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustAccountID(test *testing.T, raw string) AccountID {
	test.Helper()
	accountID, err := NewAccountID(raw)
	if err != nil {
		test.Fatalf("account id %q: %v", raw, err)
	}
	return accountID
}

func mustTokenAmount(test *testing.T, raw string) TokenAmount {
	test.Helper()
	amount, err := NewTokenAmount(raw)
	if err != nil {
		test.Fatalf("token amount %q: %v", raw, err)
	}
	return amount
}
