package notifications

import "github.com/stellar-oracle/love-oracle/internal/models"

// NotificationInterface defines the contract for notification services
type NotificationInterface interface {
	SendReading(reading *models.Reading, reportHTML []byte) error
}
