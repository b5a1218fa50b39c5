package domain

import (
	"fmt"
	"time"
)

// Item is one feed entry. It is immutable once produced by the feed client.
type Item struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Container string    `json:"container"`
	Permalink string    `json:"permalink"`
	CreatedAt time.Time `json:"created_at"`
}

// String renders the item the way it is written to the log.
func (it Item) String() string {
	return fmt.Sprintf("[%s] %s %s: %q by %s",
		it.CreatedAt.UTC().Format(time.RFC3339), it.ID, it.Container, it.Title, it.Author)
}
