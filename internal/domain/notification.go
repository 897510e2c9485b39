package domain

import "time"

// NotificationType groups in-app notifications.
type NotificationType string

const (
	NotificationTypeTicket NotificationType = "ticket"
	NotificationTypeSystem NotificationType = "system"
)

// Notification is an in-app message addressed to one user.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Type      NotificationType
	Link      *string
	IsRead    bool
	CreatedAt time.Time
}

// NotificationStats summarises a user's inbox.
type NotificationStats struct {
	Total  int
	Unread int
}
