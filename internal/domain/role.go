package domain

import "time"

// RoleType classifies an AI role profile
type RoleType string

const (
	RoleTypeAssistant RoleType = "assistant"
	RoleTypeCreative  RoleType = "creative"
	RoleTypeTechnical RoleType = "technical"
	RoleTypeCasual    RoleType = "casual"
)

// AIRole represents a configurable AI persona
type AIRole struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	RoleType        RoleType  `json:"role_type"`
	AvatarURL       string    `json:"avatar_url,omitempty"`
	Personality     string    `json:"personality,omitempty"`
	SystemPrompt    string    `json:"system_prompt"`
	GreetingMessage string    `json:"greeting_message,omitempty"`
	IsActive        bool      `json:"is_active"`
	IsDefault       bool      `json:"is_default"`
	UsageCount      int64     `json:"usage_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CreateRoleRequest is the request to create an AI role
type CreateRoleRequest struct {
	Name            string   `json:"name" binding:"required,max=100"`
	Description     string   `json:"description,omitempty"`
	RoleType        RoleType `json:"role_type" binding:"required"`
	AvatarURL       string   `json:"avatar_url,omitempty"`
	Personality     string   `json:"personality,omitempty"`
	SystemPrompt    string   `json:"system_prompt" binding:"required"`
	GreetingMessage string   `json:"greeting_message,omitempty"`
	IsDefault       bool     `json:"is_default,omitempty"`
}

// UpdateRoleRequest is the request to update an AI role
type UpdateRoleRequest struct {
	Name            *string   `json:"name,omitempty"`
	Description     *string   `json:"description,omitempty"`
	AvatarURL       *string   `json:"avatar_url,omitempty"`
	Personality     *string   `json:"personality,omitempty"`
	SystemPrompt    *string   `json:"system_prompt,omitempty"`
	GreetingMessage *string   `json:"greeting_message,omitempty"`
	IsActive        *bool     `json:"is_active,omitempty"`
	IsDefault       *bool     `json:"is_default,omitempty"`
}

// ValidRoleType reports whether t is a known role type.
func ValidRoleType(t RoleType) bool {
	switch t {
	case RoleTypeAssistant, RoleTypeCreative, RoleTypeTechnical, RoleTypeCasual:
		return true
	}
	return false
}

// DefaultRoles returns the roles seeded on first startup
func DefaultRoles() []AIRole {
	return []AIRole{
		{
			Name:            "Smart Assistant",
			Description:     "A professional AI assistant that answers questions and helps with everyday tasks",
			RoleType:        RoleTypeAssistant,
			AvatarURL:       "/avatars/assistant.png",
			Personality:     "professional, friendly, helpful",
			SystemPrompt:    "You are a professional AI assistant. Answer the user's questions accurately and helpfully, and keep a friendly, professional tone.",
			GreetingMessage: "Hi! I'm your assistant. What can I help you with?",
			IsActive:        true,
			IsDefault:       true,
		},
		{
			Name:            "Creative Writer",
			Description:     "An imaginative writing partner for stories, poems and copy",
			RoleType:        RoleTypeCreative,
			AvatarURL:       "/avatars/writer.png",
			Personality:     "imaginative, literary, playful",
			SystemPrompt:    "You are a creative writer with a vivid imagination. Help the user craft engaging stories, poems and copy.",
			GreetingMessage: "Hey! I'm your creative partner. Let's make something great together!",
			IsActive:        true,
			IsDefault:       true,
		},
		{
			Name:            "Tech Expert",
			Description:     "A seasoned technical consultant for programming, architecture and solutions",
			RoleType:        RoleTypeTechnical,
			AvatarURL:       "/avatars/developer.png",
			Personality:     "rigorous, precise, logical",
			SystemPrompt:    "You are an experienced engineer fluent in many languages and stacks. Give accurate technical advice and concrete solutions.",
			GreetingMessage: "Hello! Tech expert here, ready for your hardest questions.",
			IsActive:        true,
			IsDefault:       true,
		},
		{
			Name:            "Casual Chat",
			Description:     "A relaxed companion for small talk and entertainment",
			RoleType:        RoleTypeCasual,
			AvatarURL:       "/avatars/casual.png",
			Personality:     "relaxed, humorous, approachable",
			SystemPrompt:    "You are an easygoing chat companion. Keep the conversation light, friendly and fun.",
			GreetingMessage: "Hey there! Good to see you. What shall we talk about?",
			IsActive:        true,
			IsDefault:       true,
		},
	}
}
