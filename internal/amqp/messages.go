package amqp

import (
	"encoding/json"
	"time"
)

// SaleRecordedMessage announces that a sale was written locally. It carries
// only the sale ID; the worker fetches the full record from storage before
// appending it to the ledger.
type SaleRecordedMessage struct {
	SaleID    string    `json:"sale_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSaleRecordedMessage(saleID string) *SaleRecordedMessage {
	return &SaleRecordedMessage{
		SaleID:    saleID,
		Timestamp: time.Now(),
	}
}

func (m *SaleRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SaleRecordedMessageFromJSON(data []byte) (*SaleRecordedMessage, error) {
	var msg SaleRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
