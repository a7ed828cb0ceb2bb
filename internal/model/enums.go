package model

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

func (r MessageRole) Valid() bool {
	return r == MessageRoleUser || r == MessageRoleAssistant
}

// LoginPhase is the client-visible login state.
type LoginPhase string

const (
	LoginPhaseLoggedOut       LoginPhase = "logged_out"
	LoginPhaseValidatingToken LoginPhase = "validating_token"
	LoginPhaseLoggedIn        LoginPhase = "logged_in"
)
