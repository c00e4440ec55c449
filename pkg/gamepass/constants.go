package gamepass

const (
	operationGrantFree       = "grant_free"
	operationConvertDeposit  = "convert_deposit"
	operationStartSession    = "start_session"
	operationEndSession      = "end_session"
	operationForfeitSession  = "forfeit_session"
	operationSetGameCost     = "set_game_cost"
	operationRemoveGameCost  = "remove_game_cost"
	operationSetPaymentToken = "set_payment_token"
	operationSetMinter       = "set_minter"
	operationSetMaxDuration  = "set_max_duration"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	tokenDecimals       = 24
	millisecondsPerDay  = 24 * 3600 * 1000
	maxPurchasableGames = 1<<16 - 1

	// DefaultDailyFreeGames is granted to every account once per day.
	DefaultDailyFreeGames GameCount = 5
	// MaxCostTiers bounds the game-cost table.
	MaxCostTiers = 4
	// DefaultMaxSessionDurationMS is three minutes.
	DefaultMaxSessionDurationMS int64 = 3 * 60 * 1000
)

// DefaultMinDeposit is 0.001 token in base units.
func DefaultMinDeposit() TokenAmount {
	return TokensFromWhole(1).DivUint64(1000)
}
