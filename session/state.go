package session

// Status enumerates the connection lifecycle phases. It is the sole dispatch
// point for derived flags; nothing else encodes lifecycle information.
type Status string

const (
	// StatusInitializing holds until the initial provider probe resolves.
	StatusInitializing Status = "initializing"
	// StatusUnavailable is terminal: no usable provider was found.
	StatusUnavailable Status = "unavailable"
	// StatusNotConnectedLocked means the wallet exists but is locked.
	StatusNotConnectedLocked Status = "notConnectedLocked"
	// StatusNotConnectedUnlocked means the wallet is unlocked but has not
	// authorized any account for this origin.
	StatusNotConnectedUnlocked Status = "notConnectedUnlocked"
	// StatusConnecting holds while an account access request is in flight.
	StatusConnecting Status = "connecting"
	// StatusConnected means at least one account is authorized.
	StatusConnected Status = "connected"
)

// ConnectionState is an immutable snapshot of the wallet connection. A new
// value is produced per transition; snapshots handed out are never mutated.
type ConnectionState struct {
	Status   Status
	Accounts []string
	// ChainID of the active network, empty until first learned from the
	// provider. Survives account changes, replaced only on chain changes.
	ChainID string
}

func newConnectionState() ConnectionState {
	return ConnectionState{
		Status:   StatusInitializing,
		Accounts: []string{},
	}
}

// Available reports whether a usable provider has been established.
func (in ConnectionState) Available() bool {
	return in.Status != StatusInitializing && in.Status != StatusUnavailable
}

// Connected reports whether at least one account is authorized.
func (in ConnectionState) Connected() bool {
	return in.Status == StatusConnected
}

func (in ConnectionState) copy() ConnectionState {
	accounts := make([]string, len(in.Accounts))
	copy(accounts, in.Accounts)
	in.Accounts = accounts
	return in
}
