package chat

import (
	"fmt"
	"unicode/utf8"

	"github.com/Azure/ai-gateway/pkg/config"
	"github.com/Azure/ai-gateway/pkg/domain/errors"
	"github.com/Azure/ai-gateway/pkg/domain/gateway"
)

// Validator checks inbound chat requests against the configured limits.
type Validator struct {
	settings config.ChatSettings
}

func NewValidator(settings config.ChatSettings) *Validator {
	return &Validator{settings: settings}
}

// Validate returns the first VALIDATION_ERROR found in req.
func (v *Validator) Validate(req *gateway.ChatRequest) error {
	if len(req.Messages) == 0 {
		return errors.Validation("messages", "Messages cannot be empty")
	}
	if len(req.Messages) > v.settings.MaxMessages {
		return errors.Validation("messages", fmt.Sprintf("Too many messages (max %d)", v.settings.MaxMessages))
	}

	for i, msg := range req.Messages {
		switch msg.Role {
		case gateway.RoleSystem, gateway.RoleUser, gateway.RoleAssistant:
		default:
			return errors.Validation(fmt.Sprintf("messages[%d].role", i),
				fmt.Sprintf("Message %d has invalid role %q", i+1, msg.Role))
		}
		if utf8.RuneCountInString(msg.Content) > v.settings.MaxMessageLength {
			return errors.Validation(fmt.Sprintf("messages[%d].content", i),
				fmt.Sprintf("Message %d too long (max %d chars)", i+1, v.settings.MaxMessageLength))
		}
	}

	if req.Temperature != nil {
		t := *req.Temperature
		if t < v.settings.MinTemperature || t > v.settings.MaxTemperature {
			return errors.Validation("temperature", fmt.Sprintf("Temperature must be between %.1f and %.1f",
				v.settings.MinTemperature, v.settings.MaxTemperature))
		}
	}

	if req.MaxTokens != nil && *req.MaxTokens <= 0 {
		return errors.Validation("max_tokens", "max_tokens must be positive")
	}
	return nil
}
