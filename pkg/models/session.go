package models

import "time"

const (
	DefaultMaxIterations = 10
	DefaultMaxTokens     = 2048
	DefaultTemperature   = 0.7
)

// SessionConfig holds the per-conversation generation settings.
type SessionConfig struct {
	SystemPrompt  string  `json:"system_prompt,omitempty"`
	Model         string  `json:"model,omitempty"`
	MaxIterations int     `json:"max_iterations"`
	MaxTokens     int     `json:"max_tokens"`
	Temperature   float64 `json:"temperature"`
}

// DefaultSessionConfig returns a config with the standard limits applied.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxIterations: DefaultMaxIterations,
		MaxTokens:     DefaultMaxTokens,
		Temperature:   DefaultTemperature,
	}
}

// Session is a conversation thread plus its configuration. The store owns
// the record; a driver borrows it for one user turn under the store's
// per-session lock.
type Session struct {
	ID             string        `json:"id"`
	Config         SessionConfig `json:"config"`
	Messages       []Message     `json:"messages"`
	IterationCount int           `json:"iteration_count"`
	CreatedAt      time.Time     `json:"created_at"`
	LastActivity   time.Time     `json:"last_activity"`
}

// Append adds a message to the transcript and bumps the activity clock.
func (s *Session) Append(msg Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.Messages = append(s.Messages, msg)
	s.LastActivity = time.Now()
}

// Reset clears the transcript and iteration count while preserving the
// session id, config, and any system messages.
func (s *Session) Reset() {
	kept := make([]Message, 0, 1)
	for _, msg := range s.Messages {
		if msg.Role == RoleSystem {
			kept = append(kept, msg)
		}
	}
	s.Messages = kept
	s.IterationCount = 0
	s.LastActivity = time.Now()
}
