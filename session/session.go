package session

import (
	"context"
	"sync"

	"go.uber.org/atomic"
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
	"moff.io/wallet-bridge/provider"
)

// Session owns the connection lifecycle against one injected wallet provider.
// All state changes funnel through a single guarded dispatch into the reducer;
// nothing assigns state directly. The provider is an externally-owned shared
// resource and may mutate concurrently with anything the session does.
type Session struct {
	provider provider.Provider

	mu          sync.Mutex
	state       ConnectionState
	accountsSub provider.Subscription
	chainSub    provider.Subscription
	onChange    func(ConnectionState)

	alive    *atomic.Bool
	probed   *atomic.Bool
	dispatch func(Event)
}

// New builds a session around an injected provider. A nil provider is the
// "not installed" case and resolves to StatusUnavailable on Start.
func New(p provider.Provider) *Session {
	s := &Session{
		provider: p,
		state:    newConnectionState(),
		alive:    atomic.NewBool(true),
		probed:   atomic.NewBool(false),
	}
	s.dispatch = guardDispatch(s.alive, s.apply)
	return s
}

// OnChange registers an observer invoked with a state snapshot after every
// transition. Register before Start; the observer must not call back into
// the session synchronously.
func (s *Session) OnChange(fn func(ConnectionState)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// State returns an immutable snapshot of the current connection state.
func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.copy()
}

// Provider exposes the underlying provider for advanced use. Nil until the
// session has established that the provider is usable.
func (s *Session) Provider() provider.Provider {
	if !s.State().Available() {
		return nil
	}
	return s.provider
}

// Start runs the initial provider probe and returns once the first state is
// established. Subsequent calls are no-ops; the probe never retries.
func (s *Session) Start(ctx context.Context) {
	if !s.probed.CAS(false, true) {
		return
	}
	s.probe(ctx)
}

// Close ends the session scope. Provider subscriptions are released and any
// state update still in flight is dropped instead of applied. There is no
// cancellation of in-flight provider calls beyond dropping their results.
func (s *Session) Close() {
	if !s.alive.CAS(true, false) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accountsSub != nil {
		s.accountsSub.Unsubscribe()
		s.accountsSub = nil
	}
	if s.chainSub != nil {
		s.chainSub.Unsubscribe()
		s.chainSub = nil
	}
}

// Connect asks the provider for account access, prompting the user if needed,
// and resolves with the granted accounts. Calling it before the provider is
// known to be usable is a warned no-op resolving to an empty list. Overlapping
// calls are expected: the provider deduplicates its own prompt and answers the
// losers with the pending-request code, which is absorbed here.
func (s *Session) Connect(ctx context.Context) ([]string, error) {
	if st := s.State(); !st.Available() {
		log.Warnf("wallet connect requested while %v, ignored", st.Status)
		return []string{}, nil
	}
	s.dispatch(connectRequested{})
	accounts, err := s.provider.RequestAccounts(ctx)
	if err != nil {
		if provider.IsRequestPending(err) {
			log.Debugf("account access request already pending: %v", err)
			return []string{}, nil
		}
		s.dispatch(permissionRejected{})
		return nil, errors.Wrap(err, "request account access")
	}
	// chain id deliberately omitted so the reducer preserves the known one
	s.dispatch(walletConnected{accounts: accounts})
	return accounts, nil
}

// probe establishes the initial state with at most one dispatched event:
// detect the provider, fetch the chain, check the lock, list the accounts.
// A provider that cannot answer any of the probe calls is treated as unusable.
func (s *Session) probe(ctx context.Context) {
	if s.provider == nil || !s.provider.Detected() {
		s.dispatch(providerUnavailable{})
		return
	}
	chainID, err := s.provider.ChainID(ctx)
	if err != nil {
		log.Error(errors.WrapAndReport(err, "fetch provider chain id"))
		s.dispatch(providerUnavailable{})
		return
	}
	unlocked, err := s.provider.IsUnlocked(ctx)
	if err != nil {
		log.Error(errors.WrapAndReport(err, "query wallet unlock status"))
		s.dispatch(providerUnavailable{})
		return
	}
	if !unlocked {
		s.dispatch(walletLocked{chainID: chainID})
		return
	}
	accounts, err := s.provider.Accounts(ctx)
	if err != nil {
		log.Error(errors.WrapAndReport(err, "list authorized accounts"))
		s.dispatch(providerUnavailable{})
		return
	}
	if len(accounts) == 0 {
		s.dispatch(walletUnlocked{chainID: chainID})
		return
	}
	s.dispatch(walletConnected{accounts: accounts, chainID: chainID})
}

func (s *Session) apply(event Event) {
	s.mu.Lock()
	if !s.alive.Load() {
		// Close won the race after the guard check
		s.mu.Unlock()
		return
	}
	next := reduce(s.state, event)
	s.state = next
	s.reconcileSubscriptions(next)
	onChange := s.onChange
	snapshot := next.copy()
	s.mu.Unlock()
	if onChange != nil {
		onChange(snapshot)
	}
}

// reconcileSubscriptions diffs the subscriptions the new state wants against
// the ones held, synchronously with the transition that changed them. Account
// notifications only matter while connected; chain notifications whenever a
// usable provider exists.
func (s *Session) reconcileSubscriptions(next ConnectionState) {
	wantAccounts := next.Status == StatusConnected
	if wantAccounts && s.accountsSub == nil {
		s.accountsSub = s.provider.OnAccountsChanged(func(accounts []string) {
			s.dispatch(accountsChanged{accounts: accounts})
		})
	}
	if !wantAccounts && s.accountsSub != nil {
		s.accountsSub.Unsubscribe()
		s.accountsSub = nil
	}

	wantChain := next.Available()
	if wantChain && s.chainSub == nil {
		s.chainSub = s.provider.OnChainChanged(func(chainID string) {
			s.dispatch(chainChanged{chainID: chainID})
		})
	}
	if !wantChain && s.chainSub != nil {
		s.chainSub.Unsubscribe()
		s.chainSub = nil
	}
}
