package remote

import (
	"encoding/json"

	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
)

// bridgeMessage is the relay pub/sub frame exchanged with the bridge server.
type bridgeMessage struct {
	Topic string `json:"topic"`
	// pub, sub or ack
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

func newBridgeMessageFromBytes(data []byte) (*bridgeMessage, error) {
	var msg bridgeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.WrapAndReport(err, "unmarshal bridge message")
	}
	return &msg, nil
}

func (msg *bridgeMessage) Marshal() []byte {
	bytes, _ := json.Marshal(msg)
	return bytes
}

// encryptedPayload is the signed AES envelope carried inside a pub frame.
type encryptedPayload struct {
	Data string `json:"data"`
	Hmac string `json:"hmac"`
	IV   string `json:"iv"`
}

func newEncryptedPayloadFromBytes(data []byte) (*encryptedPayload, error) {
	var payload encryptedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errors.WrapAndReport(err, "unmarshal encrypted payload")
	}
	return &payload, nil
}

func (e *encryptedPayload) Marshal() string {
	s, err := json.Marshal(e)
	if err != nil {
		log.Errorf("marshal encrypted payload:%v", err)
	}
	return string(s)
}

type jsonRpcRequest struct {
	ID      int64         `json:"id"`
	JSONRpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

func newJSONRpcRequest(id int64, method string, params ...interface{}) *jsonRpcRequest {
	r := &jsonRpcRequest{
		ID:      id,
		JSONRpc: "2.0",
		Method:  method,
		Params:  []interface{}{},
	}
	if len(params) > 0 {
		r.Params = params
	}
	return r
}

func (e *jsonRpcRequest) Marshal() string {
	s, err := json.Marshal(e)
	if err != nil {
		log.Errorf("marshal json rpc request:%v", err)
	}
	return string(s)
}
