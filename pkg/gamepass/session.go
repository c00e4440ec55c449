package gamepass

import (
	"context"
	"fmt"
)

// RequestSession starts a game for the calling account: it validates the
// attached deposit, applies the start policy to any unexpired session,
// burns one credit, and issues the next contract-wide seed.
func (service *Service) RequestSession(ctx context.Context, account AccountID, attachedDeposit TokenAmount) (SeedID, error) {
	var issued SeedID
	var forfeited *Session
	nowMS := service.nowFn()
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		state, err := transactionStore.GetContractState(ctx)
		if err != nil {
			return err
		}
		if attachedDeposit.LessThan(state.MinDeposit) {
			return fmt.Errorf("%w: at least %s required", ErrDepositTooSmall, state.MinDeposit)
		}
		active, err := maskedSession(ctx, transactionStore, account, nowMS, state.MaxSessionDurationMS)
		if err != nil {
			return err
		}
		if active != nil {
			if service.policy == StartPolicyReject {
				return fmt.Errorf("%w: seed %d", ErrSessionAlreadyActive, active.SeedID)
			}
			// Forfeit: end with zero reward, no mint.
			if err := transactionStore.DeleteSession(ctx, account); err != nil {
				return err
			}
			forfeited = active
		}
		free, freeErr := freeGamesAt(ctx, transactionStore, account, nowMS)
		if freeErr != nil {
			return freeErr
		}
		paid, paidErr := transactionStore.GetPaidCredit(ctx, account)
		if paidErr != nil {
			return paidErr
		}
		if free == 0 && paid == 0 {
			return fmt.Errorf("%w for %s", ErrInsufficientGames, account)
		}
		if err := service.consumeOneGame(ctx, transactionStore, account, nowMS); err != nil {
			return err
		}
		state.SeedID++
		if err := transactionStore.PutContractState(ctx, state); err != nil {
			return err
		}
		issued = state.SeedID
		return transactionStore.PutSession(ctx, account, Session{
			SeedID:      issued,
			StartTimeMS: nowMS,
		})
	})
	if operationError == nil && forfeited != nil {
		service.logOperation(ctx, OperationLog{
			Operation: operationForfeitSession,
			Caller:    account,
			Account:   account,
			SeedID:    forfeited.SeedID,
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationStartSession,
		Caller:    account,
		Account:   account,
		Tokens:    attachedDeposit,
		SeedID:    issued,
		Error:     operationError,
	})
	if operationError != nil {
		return 0, operationError
	}
	return issued, nil
}

// ActiveSession returns the account's session, or nil when none is stored
// or the stored one has run past the maximum duration. Expired records are
// masked, not deleted; the next start overwrites them.
func (service *Service) ActiveSession(ctx context.Context, account AccountID) (*SessionView, error) {
	state, err := service.store.GetContractState(ctx)
	if err != nil {
		return nil, err
	}
	session, err := maskedSession(ctx, service.store, account, service.nowFn(), state.MaxSessionDurationMS)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	return &SessionView{SeedID: session.SeedID, StartTimeMS: session.StartTimeMS}, nil
}

// EndSession removes the account's active session and, for a positive
// reward, dispatches the mint after the removal has committed. The mint is
// best-effort: its outcome never rolls the session state back. Owner-only.
func (service *Service) EndSession(ctx context.Context, caller AccountID, account AccountID, reward TokenAmount, referral *AccountID) error {
	nowMS := service.nowFn()
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := requireOwner(ctx, transactionStore, caller); err != nil {
			return err
		}
		state, err := transactionStore.GetContractState(ctx)
		if err != nil {
			return err
		}
		active, err := maskedSession(ctx, transactionStore, account, nowMS, state.MaxSessionDurationMS)
		if err != nil {
			return err
		}
		if active == nil {
			return fmt.Errorf("%w for %s", ErrNoActiveSession, account)
		}
		return transactionStore.DeleteSession(ctx, account)
	})
	if operationError == nil && !reward.IsZero() && service.minter != nil {
		service.minter.Mint(ctx, account, reward, referral)
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationEndSession,
		Caller:    caller,
		Account:   account,
		Tokens:    reward,
		Error:     operationError,
	})
	return operationError
}

// maskedSession applies the expiry mask to the stored session. A stored
// start time ahead of now is a fatal precondition violation.
func maskedSession(ctx context.Context, store Store, account AccountID, nowMS int64, maxDurationMS int64) (*Session, error) {
	session, hasSession, err := store.GetSession(ctx, account)
	if err != nil {
		return nil, err
	}
	if !hasSession {
		return nil, nil
	}
	if nowMS < session.StartTimeMS {
		return nil, fmt.Errorf("%w: start %d, now %d", ErrClockInconsistency, session.StartTimeMS, nowMS)
	}
	if nowMS-session.StartTimeMS >= maxDurationMS {
		return nil, nil
	}
	return &session, nil
}

func freeGamesAt(ctx context.Context, store Store, account AccountID, nowMS int64) (GameCount, error) {
	stored, hasStored, err := store.GetFreeCredit(ctx, account)
	if err != nil {
		return 0, err
	}
	return effectiveFreeGames(stored, hasStored, dayIndexAt(nowMS)), nil
}
