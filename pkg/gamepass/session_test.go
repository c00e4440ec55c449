package gamepass

import (
	"context"
	"errors"
	"testing"
)

func TestRequestSessionIssuesMonotonicSeeds(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{nowMS: stubNowMS}
	service := mustNewService(test, store, clock)
	first := mustAccountID(test, "alice.test")
	second := mustAccountID(test, "bob.test")

	seedOne, err := service.RequestSession(context.Background(), first, DefaultMinDeposit())
	if err != nil {
		test.Fatalf("first request: %v", err)
	}
	seedTwo, err := service.RequestSession(context.Background(), second, DefaultMinDeposit())
	if err != nil {
		test.Fatalf("second request: %v", err)
	}
	if seedOne != 1 || seedTwo != 2 {
		test.Fatalf("expected seeds 1 and 2 across accounts, got %d and %d", seedOne, seedTwo)
	}
}

func TestRequestSessionRejectsSmallDeposit(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{nowMS: stubNowMS}
	service := mustNewService(test, store, clock)
	account := mustAccountID(test, "cheap.test")

	_, err := service.RequestSession(context.Background(), account, TokenAmountFromUint64(1))
	if !errors.Is(err, ErrDepositTooSmall) {
		test.Fatalf("expected ErrDepositTooSmall, got %v", err)
	}
}

func TestRequestSessionRejectsEmptyLedger(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{nowMS: stubNowMS}
	service := mustNewService(test, store, clock)
	account := mustAccountID(test, "broke.test")
	store.freeCredits[account.String()] = FreeCreditState{Day: dayIndexAt(stubNowMS), Amount: 0}

	_, err := service.RequestSession(context.Background(), account, DefaultMinDeposit())
	if !errors.Is(err, ErrInsufficientGames) {
		test.Fatalf("expected ErrInsufficientGames, got %v", err)
	}
}

func TestRequestSessionForfeitsActiveSessionByDefault(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{nowMS: stubNowMS}
	service := mustNewService(test, store, clock)
	account := mustAccountID(test, "restart.test")

	seedOne, err := service.RequestSession(context.Background(), account, DefaultMinDeposit())
	if err != nil {
		test.Fatalf("first request: %v", err)
	}
	seedTwo, err := service.RequestSession(context.Background(), account, DefaultMinDeposit())
	if err != nil {
		test.Fatalf("second request: %v", err)
	}
	if seedOne != 1 || seedTwo != 2 {
		test.Fatalf("expected fresh seed after forfeit, got %d then %d", seedOne, seedTwo)
	}
	free, _, err := service.RemainingGames(context.Background(), account)
	if err != nil {
		test.Fatalf("remaining games: %v", err)
	}
	if free != DefaultDailyFreeGames-2 {
		test.Fatalf("expected both starts to burn a credit, got free=%d", free)
	}
}

func TestRequestSessionRejectPolicyRefusesActiveSession(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{nowMS: stubNowMS}
	service := mustNewService(test, store, clock, WithStartPolicy(StartPolicyReject))
	account := mustAccountID(test, "strict.test")

	if _, err := service.RequestSession(context.Background(), account, DefaultMinDeposit()); err != nil {
		test.Fatalf("first request: %v", err)
	}
	_, err := service.RequestSession(context.Background(), account, DefaultMinDeposit())
	if !errors.Is(err, ErrSessionAlreadyActive) {
		test.Fatalf("expected ErrSessionAlreadyActive, got %v", err)
	}
}

func TestRequestSessionReplacesExpiredSession(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{nowMS: stubNowMS}
	service := mustNewService(test, store, clock, WithStartPolicy(StartPolicyReject))
	account := mustAccountID(test, "slow.test")

	if _, err := service.RequestSession(context.Background(), account, DefaultMinDeposit()); err != nil {
		test.Fatalf("first request: %v", err)
	}
	clock.nowMS += DefaultMaxSessionDurationMS

	seed, err := service.RequestSession(context.Background(), account, DefaultMinDeposit())
	if err != nil {
		test.Fatalf("request after expiry: %v", err)
	}
	if seed != 2 {
		test.Fatalf("expected seed 2, got %d", seed)
	}
}

func TestActiveSessionExpiryBoundary(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{nowMS: stubNowMS}
	service := mustNewService(test, store, clock)
	account := mustAccountID(test, "boundary.test")

	if _, err := service.RequestSession(context.Background(), account, DefaultMinDeposit()); err != nil {
		test.Fatalf("request: %v", err)
	}

	clock.nowMS = stubNowMS + DefaultMaxSessionDurationMS - 1
	view, err := service.ActiveSession(context.Background(), account)
	if err != nil {
		test.Fatalf("active session: %v", err)
	}
	if view == nil || view.SeedID != 1 {
		test.Fatalf("expected live session one tick before expiry, got %+v", view)
	}

	clock.nowMS = stubNowMS + DefaultMaxSessionDurationMS
	view, err = service.ActiveSession(context.Background(), account)
	if err != nil {
		test.Fatalf("active session: %v", err)
	}
	if view != nil {
		test.Fatalf("expected expired session to be masked, got %+v", view)
	}
	// Masked, not deleted.
	if _, ok := store.sessions[account.String()]; !ok {
		test.Fatalf("expected stored session record to survive the query")
	}
}

func TestActiveSessionDetectsClockInconsistency(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{nowMS: stubNowMS}
	service := mustNewService(test, store, clock)
	account := mustAccountID(test, "delorean.test")

	if _, err := service.RequestSession(context.Background(), account, DefaultMinDeposit()); err != nil {
		test.Fatalf("request: %v", err)
	}
	clock.nowMS = stubNowMS - 1

	_, err := service.ActiveSession(context.Background(), account)
	if !errors.Is(err, ErrClockInconsistency) {
		test.Fatalf("expected ErrClockInconsistency, got %v", err)
	}
}

func TestEndSessionClearsSessionAndMintsReward(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{nowMS: stubNowMS}
	minter := &stubMinter{}
	service := mustNewService(test, store, clock, WithMintGateway(minter))
	owner := mustAccountID(test, stubOwnerAccount)
	account := mustAccountID(test, "winner.test")
	referral := mustAccountID(test, "friend.test")

	if _, err := service.RequestSession(context.Background(), account, DefaultMinDeposit()); err != nil {
		test.Fatalf("request: %v", err)
	}
	reward := TokensFromWhole(1)
	if err := service.EndSession(context.Background(), owner, account, reward, &referral); err != nil {
		test.Fatalf("end session: %v", err)
	}

	view, err := service.ActiveSession(context.Background(), account)
	if err != nil {
		test.Fatalf("active session: %v", err)
	}
	if view != nil {
		test.Fatalf("expected no session after end, got %+v", view)
	}
	if len(minter.recipients) != 1 || !minter.recipients[0].Equal(account) {
		test.Fatalf("expected one mint for %s, got %+v", account, minter.recipients)
	}
	if !minter.amounts[0].Equal(reward) {
		test.Fatalf("expected mint amount %s, got %s", reward, minter.amounts[0])
	}
	if minter.referrals[0] == nil || !minter.referrals[0].Equal(referral) {
		test.Fatalf("expected referral to pass through, got %+v", minter.referrals[0])
	}
}

func TestEndSessionZeroRewardSkipsMint(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{nowMS: stubNowMS}
	minter := &stubMinter{}
	service := mustNewService(test, store, clock, WithMintGateway(minter))
	owner := mustAccountID(test, stubOwnerAccount)
	account := mustAccountID(test, "loser.test")

	if _, err := service.RequestSession(context.Background(), account, DefaultMinDeposit()); err != nil {
		test.Fatalf("request: %v", err)
	}
	if err := service.EndSession(context.Background(), owner, account, TokenAmount{}, nil); err != nil {
		test.Fatalf("end session: %v", err)
	}
	if len(minter.recipients) != 0 {
		test.Fatalf("expected no mint for zero reward, got %+v", minter.recipients)
	}
}

func TestEndSessionWithoutActiveSession(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{nowMS: stubNowMS}
	minter := &stubMinter{}
	service := mustNewService(test, store, clock, WithMintGateway(minter))
	owner := mustAccountID(test, stubOwnerAccount)
	account := mustAccountID(test, "idle.test")
	store.paidCredits[account.String()] = 3

	err := service.EndSession(context.Background(), owner, account, TokensFromWhole(1), nil)
	if !errors.Is(err, ErrNoActiveSession) {
		test.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
	if len(minter.recipients) != 0 {
		test.Fatalf("expected no mint, got %+v", minter.recipients)
	}
	paid, lookupErr := service.RemainingPaidGames(context.Background(), account)
	if lookupErr != nil {
		test.Fatalf("remaining paid: %v", lookupErr)
	}
	if paid != 3 {
		test.Fatalf("expected ledger untouched, got paid=%d", paid)
	}
}

func TestEndSessionRejectsNonOwner(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{nowMS: stubNowMS}
	service := mustNewService(test, store, clock)
	intruder := mustAccountID(test, "intruder.test")
	account := mustAccountID(test, "player.test")

	if _, err := service.RequestSession(context.Background(), account, DefaultMinDeposit()); err != nil {
		test.Fatalf("request: %v", err)
	}
	err := service.EndSession(context.Background(), intruder, account, TokenAmount{}, nil)
	if !errors.Is(err, ErrUnauthorizedCaller) {
		test.Fatalf("expected ErrUnauthorizedCaller, got %v", err)
	}
}

func TestConfigurationSetters(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	clock := &stubClock{nowMS: stubNowMS}
	service := mustNewService(test, store, clock)
	owner := mustAccountID(test, stubOwnerAccount)
	newToken := mustAccountID(test, "token-v2.cheddar.test")
	newMinter := mustAccountID(test, "minter-v2.test")

	if err := service.SetPaymentToken(context.Background(), owner, newToken); err != nil {
		test.Fatalf("set payment token: %v", err)
	}
	if err := service.SetMinterContract(context.Background(), owner, newMinter); err != nil {
		test.Fatalf("set minter: %v", err)
	}
	if err := service.SetMaxSessionDuration(context.Background(), owner, 600); err != nil {
		test.Fatalf("set duration: %v", err)
	}

	state, err := service.State(context.Background())
	if err != nil {
		test.Fatalf("state: %v", err)
	}
	if !state.PaymentToken.Equal(newToken) {
		test.Fatalf("expected payment token %s, got %s", newToken, state.PaymentToken)
	}
	if !state.MinterContract.Equal(newMinter) {
		test.Fatalf("expected minter %s, got %s", newMinter, state.MinterContract)
	}
	if state.MaxSessionDurationMS != 600_000 {
		test.Fatalf("expected duration 600000ms, got %d", state.MaxSessionDurationMS)
	}
}
