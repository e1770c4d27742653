package session

// Event is one discrete fact about the provider, produced by the probe, the
// connect flow or a provider notification. Events are the only way state
// changes; the set is sealed within this package.
type Event interface {
	isEvent()
}

// providerUnavailable: no injected provider, or one without the identity flag.
type providerUnavailable struct{}

// walletLocked: the probe found the wallet locked on the given chain.
type walletLocked struct {
	chainID string
}

// walletUnlocked: the wallet is unlocked but no account is authorized yet.
type walletUnlocked struct {
	chainID string
}

// connectRequested: an account access request is about to be issued.
type connectRequested struct{}

// walletConnected carries the authorized accounts. chainID may be empty when
// the issuing flow has no fresh value, in which case the known one persists.
type walletConnected struct {
	accounts []string
	chainID  string
}

// permissionRejected: the user declined the account access prompt.
type permissionRejected struct{}

// accountsChanged mirrors the provider notification verbatim. An empty list
// means access was revoked.
type accountsChanged struct {
	accounts []string
}

// chainChanged mirrors the provider notification.
type chainChanged struct {
	chainID string
}

func (providerUnavailable) isEvent() {}
func (walletLocked) isEvent()        {}
func (walletUnlocked) isEvent()      {}
func (connectRequested) isEvent()    {}
func (walletConnected) isEvent()     {}
func (permissionRejected) isEvent()  {}
func (accountsChanged) isEvent()     {}
func (chainChanged) isEvent()        {}
