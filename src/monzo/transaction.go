package monzo

import (
	"encoding/json"
	"fmt"
	"time"

	"pocketsync-server/src/bank"
)

const EventTransactionCreated = "transaction.created"

type transactionJSON struct {
	ID            string            `json:"id"`
	AccountID     string            `json:"account_id"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Created       time.Time         `json:"created"`
	Category      string            `json:"category"`
	Description   string            `json:"description"`
	DeclineReason string            `json:"decline_reason"`
	Merchant      json.RawMessage   `json:"merchant"`
	Counterparty  counterpartyJSON  `json:"counterparty"`
	Metadata      map[string]string `json:"metadata"`
}

type counterpartyJSON struct {
	Name string `json:"name"`
}

func (t transactionJSON) toBank() bank.Transaction {
	return bank.Transaction{
		ID:               t.ID,
		AccountID:        t.AccountID,
		Amount:           t.Amount,
		Currency:         t.Currency,
		Created:          t.Created,
		Category:         t.Category,
		Description:      t.Description,
		MerchantName:     merchantName(t.Merchant),
		CounterpartyName: t.Counterparty.Name,
		PotID:            t.Metadata["pot_id"],
		DeclineReason:    t.DeclineReason,
	}
}

// merchantName reads the merchant display name. Without expand[]=merchant the
// API sends only the merchant id as a string, which carries no name.
func merchantName(raw json.RawMessage) string {
	if len(raw) == 0 || raw[0] != '{' {
		return ""
	}
	var m struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	return m.Name
}

// ParseWebhook decodes a webhook body. The transaction is nil for event types
// other than transaction.created.
func ParseWebhook(body []byte) (string, *bank.Transaction, error) {
	var event struct {
		Type string          `json:"type"`
		Data transactionJSON `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return "", nil, fmt.Errorf("decode monzo webhook: %w", err)
	}
	if event.Type != EventTransactionCreated {
		return event.Type, nil, nil
	}
	if event.Data.ID == "" || event.Data.AccountID == "" {
		return event.Type, nil, fmt.Errorf("monzo webhook missing transaction or account id")
	}
	tx := event.Data.toBank()
	return event.Type, &tx, nil
}
