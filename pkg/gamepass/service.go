package gamepass

import (
	"context"
	"fmt"
)

// Service owns the session/credit state machine over a Store. The hosting
// platform serializes state-mutating calls, so the service takes no locks;
// each operation runs inside a single store transaction.
type Service struct {
	store  Store
	nowFn  func() int64
	policy StartPolicy
	minter MintGateway
	logger OperationLogger
}

// NewService wires a Service. The clock returns unix milliseconds.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now, policy: StartPolicyForfeit}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// dayIndexAt derives the day index from a unix-millisecond timestamp.
func dayIndexAt(nowMS int64) DayIndex {
	if nowMS < 0 {
		return 0
	}
	return DayIndex(uint64(nowMS) / millisecondsPerDay)
}

// effectiveFreeGames applies the lazy daily reset: the stored amount only
// counts on the stored day, any other day sees the default grant. Missing
// state behaves like a stored day of zero.
func effectiveFreeGames(stored FreeCreditState, hasStored bool, today DayIndex) GameCount {
	if !hasStored {
		stored = FreeCreditState{}
	}
	if stored.Day == today {
		return stored.Amount
	}
	return DefaultDailyFreeGames
}

// RemainingFreeGames returns today's free-game balance without side effects.
func (service *Service) RemainingFreeGames(ctx context.Context, account AccountID) (GameCount, error) {
	stored, hasStored, err := service.store.GetFreeCredit(ctx, account)
	if err != nil {
		return 0, err
	}
	return effectiveFreeGames(stored, hasStored, dayIndexAt(service.nowFn())), nil
}

// RemainingPaidGames returns the purchased-game balance.
func (service *Service) RemainingPaidGames(ctx context.Context, account AccountID) (GameCount, error) {
	return service.store.GetPaidCredit(ctx, account)
}

// RemainingGames returns free and paid balances in one call.
func (service *Service) RemainingGames(ctx context.Context, account AccountID) (GameCount, GameCount, error) {
	free, err := service.RemainingFreeGames(ctx, account)
	if err != nil {
		return 0, 0, err
	}
	paid, err := service.RemainingPaidGames(ctx, account)
	if err != nil {
		return 0, 0, err
	}
	return free, paid, nil
}

// GrantFreeGames adds delta free games for today, materializing the lazy
// reset. Owner-only.
func (service *Service) GrantFreeGames(ctx context.Context, caller AccountID, account AccountID, delta GameCount) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := requireOwner(ctx, transactionStore, caller); err != nil {
			return err
		}
		if delta == 0 {
			return fmt.Errorf("%w: delta must be positive", ErrInvalidGameCount)
		}
		today := dayIndexAt(service.nowFn())
		stored, hasStored, err := transactionStore.GetFreeCredit(ctx, account)
		if err != nil {
			return err
		}
		current := effectiveFreeGames(stored, hasStored, today)
		sum := uint64(current) + uint64(delta)
		if sum > maxPurchasableGames {
			return fmt.Errorf("%w: limit is %d", ErrTooManyGames, maxPurchasableGames)
		}
		return transactionStore.PutFreeCredit(ctx, account, FreeCreditState{
			Day:    today,
			Amount: GameCount(sum),
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationGrantFree,
		Caller:    caller,
		Account:   account,
		Games:     delta,
		Error:     operationError,
	})
	return operationError
}

// consumeOneGame burns one credit, free before paid. Callers check the
// combined balance beforehand; an empty ledger is still rejected here.
func (service *Service) consumeOneGame(ctx context.Context, transactionStore Store, account AccountID, nowMS int64) error {
	today := dayIndexAt(nowMS)
	stored, hasStored, err := transactionStore.GetFreeCredit(ctx, account)
	if err != nil {
		return err
	}
	free := effectiveFreeGames(stored, hasStored, today)
	if free > 0 {
		return transactionStore.PutFreeCredit(ctx, account, FreeCreditState{
			Day:    today,
			Amount: free - 1,
		})
	}
	paid, err := transactionStore.GetPaidCredit(ctx, account)
	if err != nil {
		return err
	}
	if paid == 0 {
		return ErrInsufficientGames
	}
	return transactionStore.PutPaidCredit(ctx, account, paid-1)
}

// addPaidGames credits purchased games, capped at the 16-bit range.
func addPaidGames(ctx context.Context, transactionStore Store, account AccountID, delta GameCount) error {
	current, err := transactionStore.GetPaidCredit(ctx, account)
	if err != nil {
		return err
	}
	sum := uint64(current) + uint64(delta)
	if sum > maxPurchasableGames {
		return fmt.Errorf("%w: limit is %d", ErrTooManyGames, maxPurchasableGames)
	}
	return transactionStore.PutPaidCredit(ctx, account, GameCount(sum))
}

func requireOwner(ctx context.Context, store Store, caller AccountID) error {
	state, err := store.GetContractState(ctx)
	if err != nil {
		return err
	}
	if !state.Owner.Equal(caller) {
		return fmt.Errorf("%w: owner-only operation", ErrUnauthorizedCaller)
	}
	return nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
