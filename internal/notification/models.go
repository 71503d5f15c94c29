package notification

import "time"

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
)

type Notification struct {
	ID        string
	Recipient string
	Channel   string
	Subject   string
	Body      string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}
