package queue

import (
	"fmt"
	"strings"
)

// DeliveryMessage is the broker payload referencing a stored message record.
type DeliveryMessage struct {
	MessageID     string `json:"messageId"`
	CorrelationID string `json:"correlationId,omitempty"`
	// Attempt counts deliveries of this message, starting at 1.
	Attempt int `json:"attempt"`
}

func (m DeliveryMessage) Validate() error {
	if strings.TrimSpace(m.MessageID) == "" {
		return fmt.Errorf("messageId is required")
	}
	if m.Attempt < 0 {
		return fmt.Errorf("attempt must be >= 0")
	}
	return nil
}

func (m DeliveryMessage) attempt() int {
	if m.Attempt < 1 {
		return 1
	}
	return m.Attempt
}
