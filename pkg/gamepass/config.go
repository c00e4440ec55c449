package gamepass

import "context"

// State returns the configuration snapshot, including the current seed.
func (service *Service) State(ctx context.Context) (ContractState, error) {
	return service.store.GetContractState(ctx)
}

// SetPaymentToken changes the accepted payment-token contract. Owner-only.
func (service *Service) SetPaymentToken(ctx context.Context, caller AccountID, paymentToken AccountID) error {
	return service.updateState(ctx, operationSetPaymentToken, caller, func(state *ContractState) {
		state.PaymentToken = paymentToken
	})
}

// SetMinterContract changes the reward-minting contract. Owner-only.
func (service *Service) SetMinterContract(ctx context.Context, caller AccountID, minterContract AccountID) error {
	return service.updateState(ctx, operationSetMinter, caller, func(state *ContractState) {
		state.MinterContract = minterContract
	})
}

// SetMaxSessionDuration changes the session expiry window. Owner-only.
// The value is taken in seconds, matching the administrative interface.
func (service *Service) SetMaxSessionDuration(ctx context.Context, caller AccountID, durationSeconds int64) error {
	return service.updateState(ctx, operationSetMaxDuration, caller, func(state *ContractState) {
		state.MaxSessionDurationMS = durationSeconds * 1000
	})
}

func (service *Service) updateState(ctx context.Context, operation string, caller AccountID, mutate func(*ContractState)) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := requireOwner(ctx, transactionStore, caller); err != nil {
			return err
		}
		state, err := transactionStore.GetContractState(ctx)
		if err != nil {
			return err
		}
		mutate(&state)
		return transactionStore.PutContractState(ctx, state)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operation,
		Caller:    caller,
		Error:     operationError,
	})
	return operationError
}
