package services

import "errors"

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrEmptyMessage         = errors.New("message is empty")
	ErrAgentNotFound        = errors.New("agent not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrForbidden            = errors.New("not allowed to modify this resource")
	ErrAgentLimit           = errors.New("agent limit reached")
	ErrConversationLimit    = errors.New("conversation limit reached")
	ErrUnsupportedModel     = errors.New("model is not served by any configured provider")
	ErrToolDisabled         = errors.New("tool is disabled or unknown")
)
