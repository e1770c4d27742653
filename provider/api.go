package provider

import "context"

// Provider is the externally-owned wallet endpoint the session layer talks to.
// Implementations wrap whatever transport actually reaches the wallet (an
// injected browser object, a relay bridge, a fake in tests). The provider may
// lock, unlock, switch accounts or switch networks at any time outside our
// control; callers must treat every answer as a snapshot.
type Provider interface {

	// Detected reports whether the endpoint identifies itself as a supported
	// wallet provider. A reachable endpoint without the identity flag is
	// treated the same as an absent one.
	Detected() bool

	// ChainID returns the identifier of the active network, e.g. "0x1".
	ChainID(ctx context.Context) (string, error)

	// IsUnlocked reports whether the wallet is currently unlocked.
	IsUnlocked(ctx context.Context) (bool, error)

	// Accounts returns the accounts already authorized for this origin.
	// Never prompts the user.
	Accounts(ctx context.Context) ([]string, error)

	// RequestAccounts asks the wallet for account access and may prompt the
	// user. Fails with CodeRequestPending while an equivalent prompt is
	// already open, and CodeUserRejected when the user declines.
	RequestAccounts(ctx context.Context) ([]string, error)

	// OnAccountsChanged registers a listener for account switches. The
	// listener receives the new authorized account list verbatim, including
	// the empty list when access is revoked. Notifications are delivered
	// asynchronously, never from inside the registration call.
	OnAccountsChanged(fn func(accounts []string)) Subscription

	// OnChainChanged registers a listener for network switches.
	OnChainChanged(fn func(chainID string)) Subscription
}

// Subscription is a handle to one registered listener.
type Subscription interface {
	// Unsubscribe removes the listener. Safe to call more than once.
	Unsubscribe()
}
