package domain

// Actor is the authenticated party invoking a state machine event.
type Actor struct {
	Wallet string
	Admin  bool
	System bool
}

// SystemActor is used for events raised by background processing.
var SystemActor = Actor{Wallet: "system", System: true}
