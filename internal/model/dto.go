package model

// WithdrawRequest: amount in wei; a valid recipient switches to withdrawTo.
type WithdrawRequest struct {
	AmountWei string `json:"amount_wei" binding:"required"`
	Recipient string `json:"recipient,omitempty"`
}

// DepositRequest: amount in ETH as a decimal string; empty uses the default.
type DepositRequest struct {
	AmountEth string `json:"amount_eth,omitempty"`
}

type SetLimitsRequest struct {
	MaxWithdrawals string `json:"max_withdrawals" binding:"required"`
	MaxTotalWei    string `json:"max_total_wei"`
}

type SessionKeyNotification struct {
	SessionKeyAddress   string `json:"sessionKeyAddress" binding:"required"`
	SmartAccountAddress string `json:"smartAccountAddress,omitempty"`
}

// ActionResult is returned by every mutating vault action.
type ActionResult struct {
	Status    string `json:"status"`
	CallID    string `json:"call_id,omitempty"`
	Function  string `json:"function,omitempty"`
	AmountWei string `json:"amount_wei,omitempty"`
	Confirmed *bool  `json:"confirmed,omitempty"`
	Pending   bool   `json:"pending,omitempty"`
}

type AccountResult struct {
	SmartAccountAddress string `json:"smart_account_address"`
	OwnerAddress        string `json:"owner_address"`
	Status              string `json:"status"`
}

type SessionKeyResult struct {
	SessionKeyAddress string   `json:"session_key_address"`
	ExpiresAt         int64    `json:"expires_at"`
	Functions         []string `json:"functions"`
	AllowanceWei      string   `json:"allowance_wei"`
	Status            string   `json:"status"`
}
