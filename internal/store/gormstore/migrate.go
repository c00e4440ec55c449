package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MazePlayLabs/gamepass/pkg/gamepass"
	"gorm.io/gorm"
)

const (
	schemaVersionInitial = 1
	schemaVersionCurrent = 2
)

// Bootstrap holds the initial contract configuration applied when the
// database has no state row yet.
type Bootstrap struct {
	Owner          string
	PaymentToken   string
	MinterContract string
	MinDeposit     string
	MaxSessionMS   int64
}

func (bootstrap Bootstrap) validate() error {
	if _, err := gamepass.NewAccountID(bootstrap.Owner); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	if _, err := gamepass.NewAccountID(bootstrap.PaymentToken); err != nil {
		return fmt.Errorf("payment token: %w", err)
	}
	if _, err := gamepass.NewAccountID(bootstrap.MinterContract); err != nil {
		return fmt.Errorf("minter contract: %w", err)
	}
	if _, err := gamepass.NewTokenAmount(bootstrap.MinDeposit); err != nil {
		return fmt.Errorf("min deposit: %w", err)
	}
	if bootstrap.MaxSessionMS <= 0 {
		return fmt.Errorf("max session duration must be positive, got %d", bootstrap.MaxSessionMS)
	}
	return nil
}

// DefaultBootstrap returns a Bootstrap with the stock minimum deposit,
// session duration and price table applied for the given accounts.
func DefaultBootstrap(owner string, paymentToken string, minterContract string) Bootstrap {
	return Bootstrap{
		Owner:          owner,
		PaymentToken:   paymentToken,
		MinterContract: minterContract,
		MinDeposit:     gamepass.DefaultMinDeposit().String(),
		MaxSessionMS:   gamepass.DefaultMaxSessionDurationMS,
	}
}

// Prepare creates the schema, upgrades older state rows and seeds the
// configuration singleton plus the default price table on first run.
func Prepare(ctx context.Context, db *gorm.DB, bootstrap Bootstrap) error {
	if err := bootstrap.validate(); err != nil {
		return wrapStoreError(errorSubjectState, errorCodeInvalid, err)
	}
	err := db.WithContext(ctx).AutoMigrate(
		&ContractStateRow{},
		&FreeCredit{},
		&PaidCredit{},
		&GameCost{},
		&GameSession{},
		&DepositReceipt{},
	)
	if err != nil {
		return wrapStoreError(errorSubjectState, "migrate", err)
	}
	return db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		var state ContractStateRow
		err := transaction.Take(&state, "id = ?", contractStateRowID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return seedInitialState(transaction, bootstrap)
		}
		if err != nil {
			return wrapStoreError(errorSubjectState, errorCodeGet, err)
		}
		return upgradeState(transaction, state)
	})
}

func seedInitialState(transaction *gorm.DB, bootstrap Bootstrap) error {
	state := ContractStateRow{
		ID:                   contractStateRowID,
		SchemaVersion:        schemaVersionCurrent,
		Owner:                bootstrap.Owner,
		PaymentToken:         bootstrap.PaymentToken,
		MinterContract:       bootstrap.MinterContract,
		MinDeposit:           bootstrap.MinDeposit,
		MaxSessionDurationMS: bootstrap.MaxSessionMS,
		SeedID:               0,
	}
	if err := transaction.Create(&state).Error; err != nil {
		return wrapStoreError(errorSubjectState, errorCodePut, err)
	}
	for bundle, wholeTokens := range map[uint16]uint64{1: 15, 10: 14} {
		cost := GameCost{
			BundleSize:   bundle,
			PerGamePrice: gamepass.TokensFromWhole(wholeTokens).String(),
		}
		if err := transaction.Create(&cost).Error; err != nil {
			return wrapStoreError(errorSubjectCost, errorCodePut, err)
		}
	}
	return nil
}

func upgradeState(transaction *gorm.DB, state ContractStateRow) error {
	switch state.SchemaVersion {
	case schemaVersionCurrent:
		return nil
	case schemaVersionInitial:
		updates := map[string]any{
			"schema_version":          schemaVersionCurrent,
			"max_session_duration_ms": int64(gamepass.DefaultMaxSessionDurationMS),
		}
		err := transaction.Model(&ContractStateRow{}).
			Where("id = ?", contractStateRowID).
			Updates(updates).Error
		if err != nil {
			return wrapStoreError(errorSubjectState, errorCodePut, err)
		}
		return nil
	default:
		return wrapStoreError(errorSubjectState, errorCodeInvalid,
			fmt.Errorf("%w: %d", gamepass.ErrUnknownSchemaVersion, state.SchemaVersion))
	}
}
