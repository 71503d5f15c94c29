package models

import "time"

// SendNotificationCommand is the outbound command published for the resolved
// business action once a notification is ready for delivery.
type SendNotificationCommand struct {
	NotificationID string    `json:"notification_id"`
	TenantID       string    `json:"tenant_id"`
	Channel        string    `json:"channel"`
	Recipient      string    `json:"recipient"`
	Subject        string    `json:"subject,omitempty"`
	Body           string    `json:"body,omitempty"`
	RequestedAt    time.Time `json:"requested_at"`
}

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)
