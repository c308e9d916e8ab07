package domain

import "strings"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior message of the conversation the current question belongs to.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatMessage is a single role/content entry sent to the generation service.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type GenerationOptions struct {
	Temperature float64
	MaxTokens   int
}

// ParseRole accepts the two roles a conversation turn may carry.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, true
	case RoleAssistant:
		return RoleAssistant, true
	default:
		return "", false
	}
}
