package model

type User struct {
	Email string `json:"email"`
}

// LLMModel identifies a provider/model pair the user may chat with. Key is the identity.
type LLMModel struct {
	Provider    string `json:"provider"`
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// Session is the resolved identity of the logged in user. It is never persisted.
type Session struct {
	User            User       `json:"user"`
	AvailableModels []LLMModel `json:"available_models"`
}

// FindModel returns the available model with the given key.
func (s *Session) FindModel(key string) (LLMModel, bool) {
	if s == nil {
		return LLMModel{}, false
	}
	for _, m := range s.AvailableModels {
		if m.Key == key {
			return m, true
		}
	}
	return LLMModel{}, false
}

// Status is the tagged login state. Session is set only when Phase is LoginPhaseLoggedIn.
type Status struct {
	Phase   LoginPhase `json:"phase"`
	Session *Session   `json:"session,omitempty"`
}

func LoggedOut() Status {
	return Status{Phase: LoginPhaseLoggedOut}
}

func ValidatingToken() Status {
	return Status{Phase: LoginPhaseValidatingToken}
}

func LoggedIn(session Session) Status {
	return Status{Phase: LoginPhaseLoggedIn, Session: &session}
}

func (s Status) IsLoggedIn() bool {
	return s.Phase == LoginPhaseLoggedIn && s.Session != nil
}
