package models

import "time"

type Message struct {
	ID        int       `json:"id"`
	Room      string    `json:"room"`
	UserID    int       `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// WebSocket Message Structure
type WSMessage struct {
	Event       string            `json:"event"` // "join", "leave", "chat", "typing_start", "typing_stop", "typing"
	ID          int               `json:"id,omitempty"`
	Room        string            `json:"room,omitempty"`
	Text        string            `json:"text,omitempty"`
	Timestamp   int64             `json:"timestamp,omitempty"`
	Username    string            `json:"username,omitempty"` // Sent to client
	TypingUsers []string          `json:"typing_users,omitempty"`
	History     []ChatHistoryItem `json:"history,omitempty"`
}

type ChatHistoryItem struct {
	ID            int    `json:"id"`
	Event         string `json:"event,omitempty"`
	Room          string `json:"room,omitempty"`
	Text          string `json:"text"`
	Username      string `json:"username"`
	Timestamp     int64  `json:"timestamp"`
	IsYourMessage bool   `json:"is_your_message"`
}

// UserInfo holds basic user profile info sent with history and used to
// resolve typing display names
type UserInfo struct {
	ID        int     `json:"id"`
	Username  string  `json:"username"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// DisplayName prefers the user's first name, falling back to the username.
func (u UserInfo) DisplayName() string {
	if u.FirstName != nil && *u.FirstName != "" {
		return *u.FirstName
	}
	return u.Username
}
