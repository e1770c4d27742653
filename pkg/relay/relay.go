package relay

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

const (
	alphanumerical  = "abcdefghijklmnopqrstuvwxyz0123456789"
	bridgeURLFormat = "https://%v.bridge.walletconnect.org"
)

// RandomBridgeURL picks one of the public relay bridge shards.
func RandomBridgeURL() string {
	rand.Seed(time.Now().Unix())
	n := rand.Intn(len(alphanumerical))
	c := alphanumerical[n]
	return fmt.Sprintf(bridgeURLFormat, string(c))
}

// WebSocketURL derives the websocket endpoint of a relay bridge URL.
func WebSocketURL(url, protocol, version string) string {
	if strings.HasPrefix(url, "https") {
		url = strings.Replace(url, "https", "wss", 1)
	} else if strings.HasPrefix(url, "http") {
		url = strings.Replace(url, "http", "ws", 1)
	}
	return url + "?protocol=" + protocol + "&version=" + version
}
