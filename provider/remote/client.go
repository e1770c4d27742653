package remote

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"
	"go.uber.org/ratelimit"
	"moff.io/wallet-bridge/config"
	"moff.io/wallet-bridge/pkg/concurrent"
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
	"moff.io/wallet-bridge/pkg/relay"
	"moff.io/wallet-bridge/provider"
)

var errClientClosed = errors.New("remote provider closed")

// Client implements provider.Provider against a wallet reachable through a
// relay bridge. JSON-RPC requests travel inside the encrypted relay envelope;
// the paired wallet answers on the client topic and pushes accountsChanged /
// chainChanged notifications over the same subscription.
//
// Usage: NewClient, display ConnectURI (or QRCode) to the user, then Dial.
// Dial returns once the paired wallet has identified itself.
type Client struct {
	conf config.Bridge

	bridgeURL string
	// sessionTopic carries our requests, clientID receives wallet traffic.
	sessionTopic  string
	clientID      string
	encryptionKey []byte

	detected atomic.Bool
	closed   atomic.Bool
	nextID   *atomic.Int64

	writeMu sync.Mutex
	conn    *websocket.Conn

	pace     ratelimit.Limiter
	inflight concurrent.Limiter

	pendingMu sync.Mutex
	pending   map[int64]chan rpcOutcome

	listenerMu       sync.Mutex
	nextListener     int64
	accountListeners map[int64]func([]string)
	chainListeners   map[int64]func(string)
}

type rpcOutcome struct {
	result gjson.Result
	err    error
}

// NewClient builds an unpaired client. A nil conf uses config.Global.
func NewClient(conf *config.Bridge) *Client {
	if conf == nil {
		conf = &config.Global.Bridge
	}
	encryptionKey, _ := relay.GenerateRandomBytes(256 / 8)
	bridgeURL := conf.URL
	if bridgeURL == "" {
		bridgeURL = relay.RandomBridgeURL()
	}
	pace := ratelimit.NewUnlimited()
	if conf.RequestsPerSecond > 0 {
		pace = ratelimit.New(conf.RequestsPerSecond)
	}
	return &Client{
		conf:             *conf,
		bridgeURL:        bridgeURL,
		sessionTopic:     uuid.NewString(),
		clientID:         uuid.NewString(),
		encryptionKey:    encryptionKey,
		nextID:           atomic.NewInt64(time.Now().UnixNano() / 1000),
		pace:             pace,
		inflight:         concurrent.NewLimiter(conf.MaxInflightRequests),
		pending:          make(map[int64]chan rpcOutcome),
		accountListeners: make(map[int64]func([]string)),
		chainListeners:   make(map[int64]func(string)),
	}
}

// Dial connects to the relay bridge, subscribes the client topic and waits for
// the paired wallet to identify itself. The user should already be looking at
// the connect URI, otherwise this blocks until they pair or ctx expires.
func (c *Client) Dial(ctx context.Context) error {
	wsURL := relay.WebSocketURL(c.bridgeURL, "wc", "1")
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return errors.WrapAndReport(err, "dial relay bridge")
	}
	c.conn = conn
	if err := c.send(&bridgeMessage{Topic: c.clientID, Type: "sub", Silent: true}); err != nil {
		conn.Close()
		return err
	}
	go c.readLoop()
	result, err := c.call(ctx, "wallet_identify")
	if err != nil {
		c.Close()
		return errors.Wrap(err, "identify paired wallet")
	}
	c.detected.Store(result.Bool())
	return nil
}

// Close tears down the bridge connection and fails every in-flight request.
func (c *Client) Close() {
	if !c.closed.CAS(false, true) {
		return
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.failPending(errClientClosed)
}

func (c *Client) Detected() bool {
	return c.detected.Load()
}

func (c *Client) ChainID(ctx context.Context) (string, error) {
	result, err := c.call(ctx, "eth_chainId")
	if err != nil {
		return "", err
	}
	chainID := result.String()
	if _, err := hexutil.DecodeBig(chainID); err != nil {
		return "", errors.WrapfAndReport(err, "malformed chain id %q", chainID)
	}
	return chainID, nil
}

func (c *Client) IsUnlocked(ctx context.Context) (bool, error) {
	result, err := c.call(ctx, "wallet_isUnlocked")
	if err != nil {
		return false, err
	}
	return result.Bool(), nil
}

func (c *Client) Accounts(ctx context.Context) ([]string, error) {
	result, err := c.call(ctx, "eth_accounts")
	if err != nil {
		return nil, err
	}
	return parseAccounts(result), nil
}

func (c *Client) RequestAccounts(ctx context.Context) ([]string, error) {
	result, err := c.call(ctx, "eth_requestAccounts")
	if err != nil {
		return nil, err
	}
	return parseAccounts(result), nil
}

func (c *Client) OnAccountsChanged(fn func(accounts []string)) provider.Subscription {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.nextListener++
	id := c.nextListener
	c.accountListeners[id] = fn
	return &listenerSub{cancel: func() {
		c.listenerMu.Lock()
		defer c.listenerMu.Unlock()
		delete(c.accountListeners, id)
	}}
}

func (c *Client) OnChainChanged(fn func(chainID string)) provider.Subscription {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.nextListener++
	id := c.nextListener
	c.chainListeners[id] = fn
	return &listenerSub{cancel: func() {
		c.listenerMu.Lock()
		defer c.listenerMu.Unlock()
		delete(c.chainListeners, id)
	}}
}

type listenerSub struct {
	once   sync.Once
	cancel func()
}

func (in *listenerSub) Unsubscribe() {
	in.once.Do(in.cancel)
}

// call performs one JSON-RPC round trip over the bridge. Requests are paced
// and capped; the matching response is routed back from the read loop.
func (c *Client) call(ctx context.Context, method string, params ...interface{}) (gjson.Result, error) {
	if c.closed.Load() {
		return gjson.Result{}, errors.WithStack(errClientClosed)
	}
	c.pace.Take()
	c.inflight.Add()
	defer c.inflight.Done()

	id := c.nextID.Inc()
	payload, err := c.encrypt(newJSONRpcRequest(id, method, params...).Marshal())
	if err != nil {
		return gjson.Result{}, err
	}
	outcome := make(chan rpcOutcome, 1)
	c.pendingMu.Lock()
	c.pending[id] = outcome
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.send(&bridgeMessage{
		Topic:   c.sessionTopic,
		Type:    "pub",
		Payload: payload.Marshal(),
		Silent:  true,
	}); err != nil {
		return gjson.Result{}, err
	}
	select {
	case out := <-outcome:
		return out.result, out.err
	case <-time.After(c.conf.RequestTimeout()):
		return gjson.Result{}, errors.Errorf("rpc %v timed out", method)
	case <-ctx.Done():
		return gjson.Result{}, errors.Wrapf(ctx.Err(), "rpc %v", method)
	}
}

func (c *Client) send(msg *bridgeMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, msg.Marshal()); err != nil {
		return errors.WrapAndReport(err, "write bridge message")
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.conf.ReadTimeout())); err != nil {
			c.failPending(errors.WrapAndReport(err, "set bridge read deadline"))
			return
		}
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.failPending(errors.WrapAndReport(err, "read bridge message"))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		msg, err := newBridgeMessageFromBytes(data)
		if err != nil {
			log.Errorf("drop malformed bridge frame:%v", err)
			continue
		}
		if msg.Type != "pub" {
			continue
		}
		if err := c.send(&bridgeMessage{Topic: c.clientID, Type: "ack", Silent: true}); err != nil {
			log.Errorf("ack bridge frame:%v", err)
		}
		jsonRpc, err := c.decrypt(msg.Payload)
		if err != nil {
			log.Error(err)
			continue
		}
		c.route(jsonRpc)
	}
}

// route dispatches one decrypted wallet payload: responses back to their
// pending call, push notifications out to registered listeners.
func (c *Client) route(jsonRpc string) {
	log.Debugf("wallet bridge - receive:%v", jsonRpc)
	if id := gjson.Get(jsonRpc, "id"); id.Exists() && !gjson.Get(jsonRpc, "method").Exists() {
		c.resolvePending(id.Int(), jsonRpc)
		return
	}
	switch method := gjson.Get(jsonRpc, "method").String(); method {
	case "wallet_accountsChanged":
		accounts := parseAccounts(gjson.Get(jsonRpc, "params.0"))
		for _, fn := range c.snapshotAccountListeners() {
			fn(accounts)
		}
	case "wallet_chainChanged":
		chainID := gjson.Get(jsonRpc, "params.0").String()
		for _, fn := range c.snapshotChainListeners() {
			fn(chainID)
		}
	default:
		log.Debugf("wallet bridge - ignore method %v", method)
	}
}

func (c *Client) resolvePending(id int64, jsonRpc string) {
	c.pendingMu.Lock()
	outcome := c.pending[id]
	delete(c.pending, id)
	c.pendingMu.Unlock()
	if outcome == nil {
		log.Debugf("wallet bridge - no pending call for id %v", id)
		return
	}
	if rpcErr := gjson.Get(jsonRpc, "error"); rpcErr.Exists() {
		outcome <- rpcOutcome{err: errors.WithStack(&provider.RPCError{
			Code:    int(rpcErr.Get("code").Int()),
			Message: rpcErr.Get("message").String(),
		})}
		return
	}
	outcome <- rpcOutcome{result: gjson.Get(jsonRpc, "result")}
}

func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, outcome := range c.pending {
		outcome <- rpcOutcome{err: err}
		delete(c.pending, id)
	}
}

func (c *Client) snapshotAccountListeners() []func([]string) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	fns := make([]func([]string), 0, len(c.accountListeners))
	for _, fn := range c.accountListeners {
		fns = append(fns, fn)
	}
	return fns
}

func (c *Client) snapshotChainListeners() []func(string) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	fns := make([]func(string), 0, len(c.chainListeners))
	for _, fn := range c.chainListeners {
		fns = append(fns, fn)
	}
	return fns
}

func (c *Client) encrypt(jsonRpc string) (*encryptedPayload, error) {
	iv, err := relay.GenerateRandomBytes(128 / 8)
	if err != nil {
		return nil, err
	}
	data, err := relay.Aes256Encrypt([]byte(jsonRpc), c.encryptionKey, iv)
	if err != nil {
		return nil, err
	}
	unsigned := append(data, iv...)
	hmac := relay.HmacSha256(unsigned, c.encryptionKey)
	return &encryptedPayload{
		Data: hex.EncodeToString(data),
		IV:   hex.EncodeToString(iv),
		Hmac: hex.EncodeToString(hmac),
	}, nil
}

func (c *Client) decrypt(payload string) (string, error) {
	mp, err := newEncryptedPayloadFromBytes([]byte(payload))
	if err != nil {
		return "", err
	}
	iv, err := hex.DecodeString(mp.IV)
	if err != nil {
		return "", errors.WrapAndReport(err, "decode iv hex")
	}
	cipher, err := hex.DecodeString(mp.Data)
	if err != nil {
		return "", errors.WrapAndReport(err, "decode cipher hex")
	}
	unsigned := append(cipher, iv...)
	hmac := relay.HmacSha256(unsigned, c.encryptionKey)
	if hex.EncodeToString(hmac) != mp.Hmac {
		return "", errors.NewWithReport("inconsistent payload hmac")
	}
	data, err := relay.Aes256Decrypt(cipher, c.encryptionKey, iv)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// parseAccounts keeps well-formed addresses and drops the rest. A wallet
// answering garbage should not corrupt downstream connection state.
func parseAccounts(result gjson.Result) []string {
	raw := result.Array()
	accounts := make([]string, 0, len(raw))
	for _, v := range raw {
		addr := v.String()
		if !common.IsHexAddress(addr) {
			log.Warnf("drop malformed account address %q", addr)
			continue
		}
		accounts = append(accounts, addr)
	}
	return accounts
}
