package model

import "time"

// SessionKeyRecord is the latest session-key notification for external
// observers. It is not authoritative state.
type SessionKeyRecord struct {
	SessionKeyAddress   string    `json:"sessionKeyAddress"`
	SmartAccountAddress string    `json:"smartAccountAddress,omitempty"`
	UpdatedAt           time.Time `json:"updatedAt"`
}
