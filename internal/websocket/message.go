package websocket

import (
	"encoding/json"
	"time"

	"github.com/featureops/fsmon-backend-go/internal/database/models"
)

// Message types for WebSocket communication
const (
	MessageTypeAlertCreated       = "alert_created"
	MessageTypeAlertStatusChanged = "alert_status_changed"
	MessageTypeSystemStatus       = "system_status"

	// Client subscription management
	MessageTypeSubscriptionUpdate = "subscription_update"
	MessageTypeConnectionStatus   = "connection_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m Message) ToJSON() []byte {
	m.Timestamp = time.Now().UTC()
	data, _ := json.Marshal(m)
	return data
}

// AlertCreatedMessage creates a message for a newly raised alert
func AlertCreatedMessage(alert *models.Alert) Message {
	return Message{
		Type: MessageTypeAlertCreated,
		Data: map[string]interface{}{
			"alert_id": alert.ID,
			"title":    alert.Title,
			"severity": alert.Severity,
			"source":   alert.Source,
			"status":   alert.Status,
			"tenant":   alert.Tenant,
		},
	}
}

// AlertStatusChangedMessage creates a message for an alert transition
func AlertStatusChangedMessage(alert *models.Alert, previous models.AlertStatus) Message {
	return Message{
		Type: MessageTypeAlertStatusChanged,
		Data: map[string]interface{}{
			"alert_id":        alert.ID,
			"previous_status": previous,
			"status":          alert.Status,
			"severity":        alert.Severity,
		},
	}
}

// SystemStatusMessage creates a message for system status updates
func SystemStatusMessage(status string, details map[string]interface{}) Message {
	return Message{
		Type: MessageTypeSystemStatus,
		Data: map[string]interface{}{
			"status":  status,
			"details": details,
		},
	}
}
