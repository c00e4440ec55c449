package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MazePlayLabs/gamepass/pkg/gamepass"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	contractStateRowID = 1

	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19

	errorOperationStore = "store"
	errorSubjectCredit  = "credit"
	errorSubjectCost    = "cost"
	errorSubjectSession = "session"
	errorSubjectState   = "state"
	errorSubjectReceipt = "receipt"
	errorCodeGet        = "get"
	errorCodePut        = "put"
	errorCodeDelete     = "delete"
	errorCodeList       = "list"
	errorCodeInsert     = "insert"
	errorCodeDuplicate  = "duplicate"
	errorCodeInvalid    = "invalid"
	errorCodeMissing    = "missing"
)

var errStateNotBootstrapped = errors.New("contract state not bootstrapped")

// Store implements gamepass.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore gamepass.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) GetFreeCredit(ctx context.Context, account gamepass.AccountID) (gamepass.FreeCreditState, bool, error) {
	var row FreeCredit
	err := store.db.WithContext(ctx).Take(&row, "account = ?", account.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gamepass.FreeCreditState{}, false, nil
	}
	if err != nil {
		return gamepass.FreeCreditState{}, false, wrapStoreError(errorSubjectCredit, errorCodeGet, err)
	}
	return gamepass.FreeCreditState{
		Day:    gamepass.DayIndex(row.Day),
		Amount: gamepass.GameCount(row.Amount),
	}, true, nil
}

func (store *Store) PutFreeCredit(ctx context.Context, account gamepass.AccountID, state gamepass.FreeCreditState) error {
	row := FreeCredit{
		Account: account.String(),
		Day:     uint64(state.Day),
		Amount:  uint16(state.Amount),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}},
			DoUpdates: clause.AssignmentColumns([]string{"day", "amount", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectCredit, errorCodePut, err)
	}
	return nil
}

func (store *Store) GetPaidCredit(ctx context.Context, account gamepass.AccountID) (gamepass.GameCount, error) {
	var row PaidCredit
	err := store.db.WithContext(ctx).Take(&row, "account = ?", account.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapStoreError(errorSubjectCredit, errorCodeGet, err)
	}
	return gamepass.GameCount(row.Amount), nil
}

func (store *Store) PutPaidCredit(ctx context.Context, account gamepass.AccountID, amount gamepass.GameCount) error {
	row := PaidCredit{
		Account: account.String(),
		Amount:  uint16(amount),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}},
			DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectCredit, errorCodePut, err)
	}
	return nil
}

func (store *Store) GetGameCost(ctx context.Context, bundle gamepass.BundleSize) (gamepass.TokenAmount, bool, error) {
	var row GameCost
	err := store.db.WithContext(ctx).Take(&row, "bundle_size = ?", uint16(bundle)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gamepass.TokenAmount{}, false, nil
	}
	if err != nil {
		return gamepass.TokenAmount{}, false, wrapStoreError(errorSubjectCost, errorCodeGet, err)
	}
	price, err := gamepass.NewTokenAmount(row.PerGamePrice)
	if err != nil {
		return gamepass.TokenAmount{}, false, wrapStoreError(errorSubjectCost, errorCodeInvalid, err)
	}
	return price, true, nil
}

func (store *Store) PutGameCost(ctx context.Context, bundle gamepass.BundleSize, perGamePrice gamepass.TokenAmount) error {
	row := GameCost{
		BundleSize:   uint16(bundle),
		PerGamePrice: perGamePrice.String(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "bundle_size"}},
			DoUpdates: clause.AssignmentColumns([]string{"per_game_price", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectCost, errorCodePut, err)
	}
	return nil
}

func (store *Store) DeleteGameCost(ctx context.Context, bundle gamepass.BundleSize) error {
	err := store.db.WithContext(ctx).Delete(&GameCost{}, "bundle_size = ?", uint16(bundle)).Error
	if err != nil {
		return wrapStoreError(errorSubjectCost, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) ListGameCosts(ctx context.Context) ([]gamepass.CostTier, error) {
	var rows []GameCost
	err := store.db.WithContext(ctx).Order("bundle_size ASC").Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectCost, errorCodeList, err)
	}
	tiers := make([]gamepass.CostTier, 0, len(rows))
	for _, row := range rows {
		price, err := gamepass.NewTokenAmount(row.PerGamePrice)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCost, errorCodeInvalid, err)
		}
		tiers = append(tiers, gamepass.CostTier{
			Bundle:       gamepass.BundleSize(row.BundleSize),
			PerGamePrice: price,
		})
	}
	return tiers, nil
}

func (store *Store) GetSession(ctx context.Context, account gamepass.AccountID) (gamepass.Session, bool, error) {
	var row GameSession
	err := store.db.WithContext(ctx).Take(&row, "account = ?", account.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gamepass.Session{}, false, nil
	}
	if err != nil {
		return gamepass.Session{}, false, wrapStoreError(errorSubjectSession, errorCodeGet, err)
	}
	return gamepass.Session{
		SeedID:      gamepass.SeedID(row.SeedID),
		StartTimeMS: row.StartTimeMS,
	}, true, nil
}

func (store *Store) PutSession(ctx context.Context, account gamepass.AccountID, session gamepass.Session) error {
	row := GameSession{
		Account:     account.String(),
		SeedID:      uint64(session.SeedID),
		StartTimeMS: session.StartTimeMS,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}},
			DoUpdates: clause.AssignmentColumns([]string{"session_id", "seed_id", "start_time_ms"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectSession, errorCodePut, err)
	}
	return nil
}

func (store *Store) DeleteSession(ctx context.Context, account gamepass.AccountID) error {
	err := store.db.WithContext(ctx).Delete(&GameSession{}, "account = ?", account.String()).Error
	if err != nil {
		return wrapStoreError(errorSubjectSession, errorCodeDelete, err)
	}
	return nil
}

func (store *Store) GetContractState(ctx context.Context) (gamepass.ContractState, error) {
	var row ContractStateRow
	err := store.db.WithContext(ctx).Take(&row, "id = ?", contractStateRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gamepass.ContractState{}, wrapStoreError(errorSubjectState, errorCodeMissing, errStateNotBootstrapped)
	}
	if err != nil {
		return gamepass.ContractState{}, wrapStoreError(errorSubjectState, errorCodeGet, err)
	}
	return mapContractState(row)
}

func (store *Store) PutContractState(ctx context.Context, state gamepass.ContractState) error {
	row := ContractStateRow{
		ID:                   contractStateRowID,
		SchemaVersion:        state.SchemaVersion,
		Owner:                state.Owner.String(),
		PaymentToken:         state.PaymentToken.String(),
		MinterContract:       state.MinterContract.String(),
		MinDeposit:           state.MinDeposit.String(),
		MaxSessionDurationMS: state.MaxSessionDurationMS,
		SeedID:               uint64(state.SeedID),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"schema_version", "owner", "payment_token", "minter_contract",
				"min_deposit", "max_session_duration_ms", "seed_id", "updated_at",
			}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectState, errorCodePut, err)
	}
	return nil
}

func (store *Store) InsertDepositReceipt(ctx context.Context, receipt gamepass.DepositReceipt) error {
	memo, err := json.Marshal(map[string]string{"msg": receipt.Memo})
	if err != nil {
		return wrapStoreError(errorSubjectReceipt, errorCodeInvalid, err)
	}
	row := DepositReceipt{
		ReceiptID:   receipt.ReceiptID,
		Payer:       receipt.Payer.String(),
		Amount:      receipt.Amount.String(),
		GamesBought: uint16(receipt.GamesBought),
		Remainder:   receipt.Remainder.String(),
		Memo:        memo,
		CreatedAt:   time.UnixMilli(receipt.CreatedUnixMS).UTC(),
	}
	err = store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectReceipt, errorCodeDuplicate, err)
	}
	if err != nil {
		return wrapStoreError(errorSubjectReceipt, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListDepositReceipts(ctx context.Context, payer gamepass.AccountID, limit int) ([]gamepass.DepositReceipt, error) {
	var rows []DepositReceipt
	err := store.db.WithContext(ctx).
		Where("payer = ?", payer.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectReceipt, errorCodeList, err)
	}
	receipts := make([]gamepass.DepositReceipt, 0, len(rows))
	for _, row := range rows {
		receipt, err := mapDepositReceipt(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReceipt, errorCodeInvalid, err)
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

func mapContractState(row ContractStateRow) (gamepass.ContractState, error) {
	owner, err := gamepass.NewAccountID(row.Owner)
	if err != nil {
		return gamepass.ContractState{}, wrapStoreError(errorSubjectState, errorCodeInvalid, err)
	}
	paymentToken, err := gamepass.NewAccountID(row.PaymentToken)
	if err != nil {
		return gamepass.ContractState{}, wrapStoreError(errorSubjectState, errorCodeInvalid, err)
	}
	minterContract, err := gamepass.NewAccountID(row.MinterContract)
	if err != nil {
		return gamepass.ContractState{}, wrapStoreError(errorSubjectState, errorCodeInvalid, err)
	}
	minDeposit, err := gamepass.NewTokenAmount(row.MinDeposit)
	if err != nil {
		return gamepass.ContractState{}, wrapStoreError(errorSubjectState, errorCodeInvalid, err)
	}
	return gamepass.ContractState{
		Owner:                owner,
		PaymentToken:         paymentToken,
		MinterContract:       minterContract,
		MinDeposit:           minDeposit,
		MaxSessionDurationMS: row.MaxSessionDurationMS,
		SeedID:               gamepass.SeedID(row.SeedID),
		SchemaVersion:        row.SchemaVersion,
	}, nil
}

func mapDepositReceipt(row DepositReceipt) (gamepass.DepositReceipt, error) {
	payer, err := gamepass.NewAccountID(row.Payer)
	if err != nil {
		return gamepass.DepositReceipt{}, err
	}
	amount, err := gamepass.NewTokenAmount(row.Amount)
	if err != nil {
		return gamepass.DepositReceipt{}, err
	}
	remainder, err := gamepass.NewTokenAmount(row.Remainder)
	if err != nil {
		return gamepass.DepositReceipt{}, err
	}
	var memoDocument struct {
		Msg string `json:"msg"`
	}
	if len(row.Memo) > 0 {
		if err := json.Unmarshal(row.Memo, &memoDocument); err != nil {
			return gamepass.DepositReceipt{}, err
		}
	}
	return gamepass.DepositReceipt{
		ReceiptID:     row.ReceiptID,
		Payer:         payer,
		Amount:        amount,
		GamesBought:   gamepass.GameCount(row.GamesBought),
		Remainder:     remainder,
		Memo:          memoDocument.Msg,
		CreatedUnixMS: row.CreatedAt.UnixMilli(),
	}, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return gamepass.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
