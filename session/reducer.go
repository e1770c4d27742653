package session

import (
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
)

// reduce is the only place connection state is computed. Pure and total:
// every event has a defined effect from every state, and non-empty Accounts
// always imply StatusConnected.
func reduce(state ConnectionState, event Event) ConnectionState {
	switch ev := event.(type) {
	case providerUnavailable:
		state.Status = StatusUnavailable
		state.Accounts = []string{}
	case walletLocked:
		state.Status = StatusNotConnectedLocked
		state.Accounts = []string{}
		state.ChainID = ev.chainID
	case walletUnlocked:
		state.Status = StatusNotConnectedUnlocked
		state.Accounts = []string{}
		state.ChainID = ev.chainID
	case connectRequested:
		state.Status = StatusConnecting
		state.Accounts = []string{}
	case walletConnected:
		if len(ev.accounts) == 0 {
			// a grant without accounts is indistinguishable from no access
			state.Status = StatusNotConnectedUnlocked
			state.Accounts = []string{}
		} else {
			state.Status = StatusConnected
			state.Accounts = copyAccounts(ev.accounts)
		}
		if ev.chainID != "" {
			state.ChainID = ev.chainID
		}
	case permissionRejected:
		state.Status = StatusNotConnectedUnlocked
		state.Accounts = []string{}
	case accountsChanged:
		if state.Status != StatusConnected {
			// stale notification, the subscription was already torn down
			return state
		}
		if len(ev.accounts) == 0 {
			state.Status = StatusNotConnectedUnlocked
			state.Accounts = []string{}
		} else {
			state.Accounts = copyAccounts(ev.accounts)
		}
	case chainChanged:
		state.ChainID = ev.chainID
	default:
		// a sealed event type we do not handle is a programming error
		log.Error(errors.ErrorfAndReport("unrecognized session event %T", event))
	}
	return state
}

func copyAccounts(accounts []string) []string {
	cp := make([]string, len(accounts))
	copy(cp, accounts)
	return cp
}
