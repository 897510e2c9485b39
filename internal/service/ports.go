package service

import (
	"context"
	"io"
)

// Notifier delivers an in-app notification to one user.
type Notifier interface {
	Notify(ctx context.Context, userID, title, message string) error
}

// Mailer sends an HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Upload is a file received with a ticket.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// FileStorage persists attachments and returns their public URL. Remove
// deletes an object previously returned by Store.
type FileStorage interface {
	Store(ctx context.Context, upload Upload) (string, error)
	Remove(ctx context.Context, url string) error
}
