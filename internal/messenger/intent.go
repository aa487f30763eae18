package messenger

import (
	"github.com/matheus3301/msgr/internal/sdk"
	"github.com/matheus3301/msgr/internal/signin"
)

// Intent is a user action sent to the loop.
type Intent interface {
	intent()
}

type (
	SignIn struct {
		Credentials signin.Credentials
	}
	CancelSignIn struct{}
	SignOut      struct{}

	OpenConversation struct {
		Contact string
	}
	CloseConversation struct {
		Conversation string
	}
	Submit struct {
		Conversation string
		Text         string
	}
	Keystroke struct {
		Conversation string
	}
	SendNudge struct {
		Conversation string
	}
	ToggleFormat struct {
		Conversation string
		Style        sdk.FontStyle
	}
	SetColor struct {
		Conversation string
		Color        sdk.Color
	}
	Focus struct {
		Conversation string
	}
	Blur struct {
		Conversation string
	}

	RemoveContact struct {
		Contact string
	}
)

func (SignIn) intent()            {}
func (CancelSignIn) intent()      {}
func (SignOut) intent()           {}
func (OpenConversation) intent()  {}
func (CloseConversation) intent() {}
func (Submit) intent()            {}
func (Keystroke) intent()         {}
func (SendNudge) intent()         {}
func (ToggleFormat) intent()      {}
func (SetColor) intent()          {}
func (Focus) intent()             {}
func (Blur) intent()              {}
func (RemoveContact) intent()     {}

// SignedIn is the payload of session.signed_in.
type SignedIn struct {
	Account         string
	Presence        sdk.Presence
	PersonalMessage string
}

// SignInFailed is the payload of session.sign_in_failed. Err is an
// *signin.SdkError for service failures.
type SignInFailed struct {
	Account string
	Err     error
}

// SignedOut is the payload of session.signed_out.
type SignedOut struct {
	Account string
	Reason  string
}

// Opened is the payload of conversation.opened.
type Opened struct {
	Conversation string
	Title        string
}
