package model

import (
	"time"
)

// Operation is one ledger record: the outcome of a call submitted through
// the smart account, or of a setup action.
type Operation struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	RequestID    string    `json:"request_id,omitempty" gorm:"type:varchar(36)"`
	Action       string    `json:"action" gorm:"type:varchar(32);index"`
	Function     string    `json:"function,omitempty" gorm:"type:varchar(32)"`
	Signer       string    `json:"signer,omitempty" gorm:"type:varchar(16)"` // session | owner
	SmartAccount string    `json:"smart_account,omitempty" gorm:"type:varchar(42);index"`
	SessionKey   string    `json:"session_key,omitempty" gorm:"type:varchar(42)"`
	AmountWei    string    `json:"amount_wei,omitempty" gorm:"type:varchar(78)"`
	Recipient    string    `json:"recipient,omitempty" gorm:"type:varchar(42)"`
	CallID       string    `json:"call_id,omitempty" gorm:"type:varchar(130)"`
	Outcome      string    `json:"outcome" gorm:"type:varchar(16)"` // ok | failed | pending | rejected
	Cause        string    `json:"cause,omitempty" gorm:"type:varchar(32)"`
	Message      string    `json:"message,omitempty" gorm:"type:text"`
	LatencyMs    int64     `json:"latency_ms"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
}

func (Operation) TableName() string {
	return "operations"
}

const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomePending  = "pending"
	OutcomeRejected = "rejected"
)
