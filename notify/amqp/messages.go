package amqp

import (
	"encoding/json"
	"time"

	"github.com/xraph/dues/plugin"
)

// StatementReadyMessage announces a generated statement. Consumers fetch
// the full statement by ID; the message carries only what routing and
// notification need.
type StatementReadyMessage struct {
	TenantID       string    `json:"tenant_id"`
	TenantCode     string    `json:"tenant_code"`
	FamilyID       string    `json:"family_id"`
	FamilyNumber   int       `json:"family_number"`
	Email          string    `json:"email,omitempty"`
	StatementID    string    `json:"statement_id"`
	Number         string    `json:"number"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
	ClosingBalance int64     `json:"closing_balance"`
	Currency       string    `json:"currency"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewStatementReadyMessage builds the message for one delivery.
func NewStatementReadyMessage(d plugin.Delivery) *StatementReadyMessage {
	s := d.Statement
	return &StatementReadyMessage{
		TenantID:       d.Tenant.ID.String(),
		TenantCode:     d.Tenant.Code,
		FamilyID:       d.Family.ID.String(),
		FamilyNumber:   d.Family.Number,
		Email:          d.Family.Email,
		StatementID:    s.ID.String(),
		Number:         s.Number,
		PeriodStart:    s.PeriodStart,
		PeriodEnd:      s.PeriodEnd,
		ClosingBalance: s.ClosingBalance.Amount,
		Currency:       s.ClosingBalance.Currency,
		Timestamp:      time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *StatementReadyMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// StatementReadyMessageFromJSON decodes a message.
func StatementReadyMessageFromJSON(data []byte) (*StatementReadyMessage, error) {
	var msg StatementReadyMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
