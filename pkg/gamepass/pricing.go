package gamepass

import (
	"context"
	"fmt"
)

// SetGameCost inserts or replaces the per-game price for a bundle size.
// Owner-only; the table never holds more than MaxCostTiers entries.
func (service *Service) SetGameCost(ctx context.Context, caller AccountID, bundle BundleSize, perGamePrice TokenAmount) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := requireOwner(ctx, transactionStore, caller); err != nil {
			return err
		}
		if bundle == 0 {
			return fmt.Errorf("%w: must be greater than 0", ErrInvalidBundleSize)
		}
		if perGamePrice.IsZero() {
			return fmt.Errorf("%w: per-game price must be positive", ErrInvalidTokenAmount)
		}
		_, exists, err := transactionStore.GetGameCost(ctx, bundle)
		if err != nil {
			return err
		}
		if !exists {
			tiers, err := transactionStore.ListGameCosts(ctx)
			if err != nil {
				return err
			}
			if len(tiers) >= MaxCostTiers {
				return fmt.Errorf("%w: at most %d tiers", ErrCostTableFull, MaxCostTiers)
			}
		}
		return transactionStore.PutGameCost(ctx, bundle, perGamePrice)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationSetGameCost,
		Caller:    caller,
		Tokens:    perGamePrice,
		Error:     operationError,
	})
	return operationError
}

// RemoveGameCost drops a cost tier. Owner-only.
func (service *Service) RemoveGameCost(ctx context.Context, caller AccountID, bundle BundleSize) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := requireOwner(ctx, transactionStore, caller); err != nil {
			return err
		}
		_, exists, err := transactionStore.GetGameCost(ctx, bundle)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: bundle %d", ErrGameCostNotFound, bundle)
		}
		return transactionStore.DeleteGameCost(ctx, bundle)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRemoveGameCost,
		Caller:    caller,
		Error:     operationError,
	})
	return operationError
}

// GameCosts lists cost tiers ordered by bundle size ascending.
func (service *Service) GameCosts(ctx context.Context) ([]CostTier, error) {
	return service.store.ListGameCosts(ctx)
}

// ConvertDeposit turns a payment notification into paid game credits and
// returns the remainder for the payment gateway to refund. The caller must
// be the configured payment-token contract.
//
// Tiers are scanned in table order; the last tier whose per-game rate the
// deposit still meets (amount / bundle >= price) wins, and the scan stops
// at the first tier that fails. The stop-at-first-failure behavior is
// observable contract behavior and is kept as-is.
func (service *Service) ConvertDeposit(ctx context.Context, caller AccountID, payer AccountID, amount TokenAmount, memo string) (TokenAmount, error) {
	var remainder TokenAmount
	var gamesBought GameCount
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		state, err := transactionStore.GetContractState(ctx)
		if err != nil {
			return err
		}
		if !state.PaymentToken.Equal(caller) {
			return fmt.Errorf("%w: only %s is accepted", ErrUnauthorizedCaller, state.PaymentToken)
		}
		// The single-game price is a precondition of every conversion,
		// qualified tier or not.
		singleGamePrice, exists, err := transactionStore.GetGameCost(ctx, 1)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: bundle 1", ErrGameCostNotFound)
		}
		tiers, err := transactionStore.ListGameCosts(ctx)
		if err != nil {
			return err
		}
		var selected *CostTier
		for index := range tiers {
			perBundle := amount.DivUint64(uint64(tiers[index].Bundle))
			if perBundle.AtLeast(tiers[index].PerGamePrice) {
				selected = &tiers[index]
			} else {
				break
			}
		}
		if selected == nil {
			return fmt.Errorf("%w: sent %s, send at least %s", ErrInsufficientPayment, amount, singleGamePrice)
		}
		if selected.PerGamePrice.IsZero() {
			return fmt.Errorf("%w: zero per-game price for bundle %d", ErrInvalidTokenAmount, selected.Bundle)
		}
		quotient, modulo := amount.DivMod(selected.PerGamePrice)
		gamesBought, err = quotient.AsGameCount()
		if err != nil {
			return err
		}
		if err := addPaidGames(ctx, transactionStore, payer, gamesBought); err != nil {
			return err
		}
		remainder = modulo
		return transactionStore.InsertDepositReceipt(ctx, DepositReceipt{
			Payer:         payer,
			Amount:        amount,
			GamesBought:   gamesBought,
			Remainder:     remainder,
			Memo:          memo,
			CreatedUnixMS: service.nowFn(),
		})
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationConvertDeposit,
		Caller:    caller,
		Account:   payer,
		Games:     gamesBought,
		Tokens:    amount,
		Error:     operationError,
	})
	if operationError != nil {
		return TokenAmount{}, operationError
	}
	return remainder, nil
}

// DepositReceipts lists the most recent processed deposits for a payer.
func (service *Service) DepositReceipts(ctx context.Context, payer AccountID, limit int) ([]DepositReceipt, error) {
	return service.store.ListDepositReceipts(ctx, payer, limit)
}
