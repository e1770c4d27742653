package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/provider"
)

// fakeProvider scripts the capability set and records subscription traffic.
type fakeProvider struct {
	mu sync.Mutex

	detected    bool
	chainID     string
	chainErr    error
	chainGate   chan struct{} // when set, ChainID blocks until closed
	chainCalled chan struct{} // when set, closed once ChainID is entered
	unlocked    bool
	accounts    []string
	accountsErr error

	requestResult []string
	requestErr    error
	requestCalls  int

	accountListeners []func([]string)
	chainListeners   []func(string)
	accountUnsubs    int
	chainUnsubs      int
}

func (f *fakeProvider) Detected() bool { return f.detected }

func (f *fakeProvider) ChainID(ctx context.Context) (string, error) {
	if f.chainCalled != nil {
		close(f.chainCalled)
	}
	if f.chainGate != nil {
		<-f.chainGate
	}
	return f.chainID, f.chainErr
}

func (f *fakeProvider) IsUnlocked(ctx context.Context) (bool, error) {
	return f.unlocked, nil
}

func (f *fakeProvider) Accounts(ctx context.Context) ([]string, error) {
	return f.accounts, f.accountsErr
}

func (f *fakeProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	f.requestCalls++
	f.mu.Unlock()
	return f.requestResult, f.requestErr
}

func (f *fakeProvider) OnAccountsChanged(fn func([]string)) provider.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountListeners = append(f.accountListeners, fn)
	return fakeSub{cancel: func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.accountUnsubs++
	}}
}

func (f *fakeProvider) OnChainChanged(fn func(string)) provider.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chainListeners = append(f.chainListeners, fn)
	return fakeSub{cancel: func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.chainUnsubs++
	}}
}

func (f *fakeProvider) fireAccountsChanged(accounts []string) {
	f.mu.Lock()
	fns := append([]func([]string){}, f.accountListeners...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(accounts)
	}
}

func (f *fakeProvider) fireChainChanged(chainID string) {
	f.mu.Lock()
	fns := append([]func(string){}, f.chainListeners...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(chainID)
	}
}

func (f *fakeProvider) counts() (accountListeners, accountUnsubs, chainListeners, chainUnsubs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accountListeners), f.accountUnsubs, len(f.chainListeners), f.chainUnsubs
}

type fakeSub struct {
	cancel func()
}

func (in fakeSub) Unsubscribe() { in.cancel() }

func TestProbeProviderAbsent(t *testing.T) {
	s := New(nil)
	s.Start(context.Background())

	st := s.State()
	assert.Equal(t, StatusUnavailable, st.Status)
	assert.Empty(t, st.Accounts)
	assert.Empty(t, st.ChainID)
	assert.Nil(t, s.Provider())
}

func TestProbeProviderNotIdentified(t *testing.T) {
	s := New(&fakeProvider{detected: false})
	s.Start(context.Background())

	assert.Equal(t, StatusUnavailable, s.State().Status)
}

func TestProbeLocked(t *testing.T) {
	p := &fakeProvider{detected: true, chainID: "0x1", unlocked: false}
	s := New(p)
	s.Start(context.Background())

	st := s.State()
	assert.Equal(t, StatusNotConnectedLocked, st.Status)
	assert.Empty(t, st.Accounts)
	assert.Equal(t, "0x1", st.ChainID)

	accountSubs, _, chainSubs, _ := p.counts()
	assert.Zero(t, accountSubs, "account notifications only matter while connected")
	assert.Equal(t, 1, chainSubs)
}

func TestProbeUnlockedWithoutAccounts(t *testing.T) {
	p := &fakeProvider{detected: true, chainID: "0x1", unlocked: true}
	s := New(p)
	s.Start(context.Background())

	st := s.State()
	assert.Equal(t, StatusNotConnectedUnlocked, st.Status)
	assert.Empty(t, st.Accounts)
	assert.Equal(t, "0x1", st.ChainID)
}

func TestProbeConnected(t *testing.T) {
	p := &fakeProvider{detected: true, chainID: "0x1", unlocked: true, accounts: []string{"0xA"}}
	s := New(p)
	s.Start(context.Background())

	st := s.State()
	assert.Equal(t, StatusConnected, st.Status)
	assert.Equal(t, []string{"0xA"}, st.Accounts)
	assert.Equal(t, "0x1", st.ChainID)
	assert.NotNil(t, s.Provider())

	accountSubs, _, chainSubs, _ := p.counts()
	assert.Equal(t, 1, accountSubs)
	assert.Equal(t, 1, chainSubs)
}

func TestProbeChainFetchFailureMeansUnavailable(t *testing.T) {
	p := &fakeProvider{detected: true, chainErr: errors.New("bridge down")}
	s := New(p)
	s.Start(context.Background())

	assert.Equal(t, StatusUnavailable, s.State().Status)
}

func TestProbeRunsOnce(t *testing.T) {
	p := &fakeProvider{detected: true, chainID: "0x1", unlocked: true, accounts: []string{"0xA"}}
	s := New(p)
	s.Start(context.Background())
	s.Start(context.Background())

	accountSubs, _, chainSubs, _ := p.counts()
	assert.Equal(t, 1, accountSubs)
	assert.Equal(t, 1, chainSubs)
}

func TestConnectWhileUnavailableIsNoop(t *testing.T) {
	p := &fakeProvider{detected: false}
	s := New(p)
	s.Start(context.Background())

	accounts, err := s.Connect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
	assert.Equal(t, StatusUnavailable, s.State().Status)
	assert.Zero(t, p.requestCalls, "no provider call may be made while unavailable")
}

func TestConnectSuccessPreservesChainID(t *testing.T) {
	p := &fakeProvider{detected: true, chainID: "0x1", unlocked: true, requestResult: []string{"0xB"}}
	s := New(p)
	s.Start(context.Background())
	require.Equal(t, StatusNotConnectedUnlocked, s.State().Status)

	accounts, err := s.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0xB"}, accounts)

	st := s.State()
	assert.Equal(t, StatusConnected, st.Status)
	assert.Equal(t, []string{"0xB"}, st.Accounts)
	assert.Equal(t, "0x1", st.ChainID, "chain id must survive the connect flow")
}

func TestConnectAbsorbsPendingRequest(t *testing.T) {
	pendingErr := errors.Wrap(&provider.RPCError{
		Code:    provider.CodeRequestPending,
		Message: "request already pending",
	}, "request account access")
	p := &fakeProvider{detected: true, chainID: "0x1", unlocked: true, requestErr: pendingErr}
	s := New(p)
	s.Start(context.Background())

	accounts, err := s.Connect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
	// no permissionRejected: the duplicate is benign, state keeps the
	// connecting status the flow itself established
	assert.Equal(t, StatusConnecting, s.State().Status)
}

func TestConnectRejectionPropagatesAndReverts(t *testing.T) {
	p := &fakeProvider{detected: true, chainID: "0x1", unlocked: true, requestErr: &provider.RPCError{
		Code:    provider.CodeUserRejected,
		Message: "user rejected the request",
	}}
	s := New(p)
	s.Start(context.Background())

	_, err := s.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, provider.IsUserRejected(err))

	st := s.State()
	assert.Equal(t, StatusNotConnectedUnlocked, st.Status)
	assert.Empty(t, st.Accounts)
}

func TestAccountsChangedReplacesAccounts(t *testing.T) {
	p := &fakeProvider{detected: true, chainID: "0x1", unlocked: true, accounts: []string{"0xA"}}
	s := New(p)
	s.Start(context.Background())

	p.fireAccountsChanged([]string{"0xC"})

	st := s.State()
	assert.Equal(t, StatusConnected, st.Status)
	assert.Equal(t, []string{"0xC"}, st.Accounts)
}

func TestEmptyAccountsChangedDisconnects(t *testing.T) {
	p := &fakeProvider{detected: true, chainID: "0x1", unlocked: true, accounts: []string{"0xA"}}
	s := New(p)
	s.Start(context.Background())

	p.fireAccountsChanged(nil)

	st := s.State()
	assert.Equal(t, StatusNotConnectedUnlocked, st.Status)
	assert.Empty(t, st.Accounts)

	_, accountUnsubs, _, chainUnsubs := p.counts()
	assert.Equal(t, 1, accountUnsubs, "leaving connected must drop the accounts subscription")
	assert.Zero(t, chainUnsubs, "chain subscription stays while available")
}

func TestChainChangedUpdatesChainOnly(t *testing.T) {
	p := &fakeProvider{detected: true, chainID: "0x1", unlocked: true, accounts: []string{"0xA"}}
	s := New(p)
	s.Start(context.Background())

	p.fireChainChanged("0x89")

	st := s.State()
	assert.Equal(t, StatusConnected, st.Status)
	assert.Equal(t, []string{"0xA"}, st.Accounts)
	assert.Equal(t, "0x89", st.ChainID)
}

func TestCloseReleasesSubscriptions(t *testing.T) {
	p := &fakeProvider{detected: true, chainID: "0x1", unlocked: true, accounts: []string{"0xA"}}
	s := New(p)
	s.Start(context.Background())

	s.Close()
	s.Close() // idempotent

	_, accountUnsubs, _, chainUnsubs := p.counts()
	assert.Equal(t, 1, accountUnsubs)
	assert.Equal(t, 1, chainUnsubs)
}

func TestSlowProbeResolvingAfterCloseIsDropped(t *testing.T) {
	p := &fakeProvider{
		detected:    true,
		chainID:     "0x1",
		unlocked:    true,
		accounts:    []string{"0xA"},
		chainGate:   make(chan struct{}),
		chainCalled: make(chan struct{}),
	}
	s := New(p)

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	<-p.chainCalled
	s.Close()
	close(p.chainGate)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("probe did not finish")
	}
	assert.Equal(t, StatusInitializing, s.State().Status,
		"a probe resolving after Close must not alter observable state")
}

func TestNotificationsAfterCloseAreDropped(t *testing.T) {
	p := &fakeProvider{detected: true, chainID: "0x1", unlocked: true, accounts: []string{"0xA"}}
	s := New(p)
	s.Start(context.Background())
	before := s.State()

	s.Close()
	// the fake keeps listener references around, mimicking a notification
	// already in flight when the session closed
	p.fireChainChanged("0x89")
	p.fireAccountsChanged(nil)

	assert.Equal(t, before, s.State())
}

func TestOnChangeObservesEveryTransition(t *testing.T) {
	p := &fakeProvider{detected: true, chainID: "0x1", unlocked: true, requestResult: []string{"0xB"}}
	s := New(p)

	var mu sync.Mutex
	var seen []Status
	s.OnChange(func(st ConnectionState) {
		mu.Lock()
		seen = append(seen, st.Status)
		mu.Unlock()
	})

	s.Start(context.Background())
	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusNotConnectedUnlocked, StatusConnecting, StatusConnected}, seen)
}

func TestGuardDispatch(t *testing.T) {
	s := New(&fakeProvider{detected: true, chainID: "0x1", unlocked: true})
	s.Start(context.Background())
	require.Equal(t, StatusNotConnectedUnlocked, s.State().Status)

	s.dispatch(chainChanged{chainID: "0x2"})
	assert.Equal(t, "0x2", s.State().ChainID)

	s.Close()
	s.dispatch(chainChanged{chainID: "0x3"})
	assert.Equal(t, "0x2", s.State().ChainID, "dispatch after close must be suppressed, not buffered")
}
