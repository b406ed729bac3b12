// Package bot bridges the external trading bot's HTTP API to the session
// controller: it starts and stops the bot, polls its status and logs, and
// turns the bot's pending withdrawal requests into vault withdrawals.
package bot

type Info struct {
	WalletAddress       string `json:"wallet_address"`
	BotRecipientAddress string `json:"bot_recipient_address,omitempty"`
	EthBalanceWei       string `json:"eth_balance_wei"`
	EthBalance          string `json:"eth_balance"`
	Network             string `json:"network"`
}

type LastTrade struct {
	Signal    string  `json:"signal"`
	TxHash    string  `json:"tx_hash"`
	Timestamp float64 `json:"timestamp"`
	Amount    string  `json:"amount"`
}

// PendingWithdraw is the bot asking for funds from the vault.
type PendingWithdraw struct {
	AmountWei        string `json:"amount_wei"`
	Reason           string `json:"reason"`
	RecipientAddress string `json:"recipient_address,omitempty"`
}

// Key identifies a request for dedup.
func (p PendingWithdraw) Key() string {
	return p.AmountWei + "-" + p.Reason
}

type Status struct {
	IsRunning           bool             `json:"is_running"`
	CurrentSignal       *string          `json:"current_signal"`
	CurrentPrice        *float64         `json:"current_price"`
	LastTrade           *LastTrade       `json:"last_trade"`
	TotalTrades         int              `json:"total_trades"`
	Error               *string          `json:"error"`
	SessionKeyExpiry    *float64         `json:"session_key_expiry"`
	SessionKeyExpired   bool             `json:"session_key_expired"`
	SessionKeyAddress   *string          `json:"session_key_address"`
	VaultAddress        *string          `json:"vault_address"`
	SmartAccountAddress *string          `json:"smart_account_address"`
	BotRecipientAddress *string          `json:"bot_recipient_address"`
	StartedAt           *float64         `json:"started_at"`
	Iterations          int              `json:"iterations"`
	PendingWithdraw     *PendingWithdraw `json:"pending_withdraw"`
	BuyCount            int              `json:"buy_count"`
	SellCount           int              `json:"sell_count"`
	StopReason          *string          `json:"stop_reason"`
}

type LogEntry struct {
	TS    float64 `json:"ts"`
	Level string  `json:"level"`
	Msg   string  `json:"msg"`
}

type StartParams struct {
	SessionKeyExpiry    *int64 `json:"session_key_expiry,omitempty"`
	SessionKeyAddress   string `json:"session_key_address,omitempty"`
	VaultAddress        string `json:"vault_address,omitempty"`
	SmartAccountAddress string `json:"smart_account_address,omitempty"`
	BotRecipientAddress string `json:"bot_recipient_address,omitempty"`
}

type logsResponse struct {
	Logs []LogEntry `json:"logs"`
}

type messageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}
