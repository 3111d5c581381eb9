// Package notify formats and delivers the bot's status reports.
package notify

import (
	"context"
	"sync"
)

// Message is one report.
type Message struct {
	Subject string
	Body    string
	// To lists "Name <address>" recipients. Empty means the admins.
	To []string
	// CCAdmin adds the admins as blind copies.
	CCAdmin bool
}

// Notifier delivers messages.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Recorder keeps messages in memory instead of sending them.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Notify records msg.
func (r *Recorder) Notify(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns a copy of what was recorded.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
