package remote

import (
	"encoding/hex"
	"fmt"
	"net/url"

	qrcode "github.com/skip2/go-qrcode"
	"moff.io/wallet-bridge/pkg/errors"
)

// ConnectURI returns the pairing URI the user's wallet consumes to join the
// relay session.
func (c *Client) ConnectURI() string {
	return fmt.Sprintf("wc:%s@1?bridge=%s&key=%s",
		c.sessionTopic, url.QueryEscape(c.bridgeURL), hex.EncodeToString(c.encryptionKey))
}

// QRCode renders the pairing URI as a 256x256 PNG.
func (c *Client) QRCode() ([]byte, error) {
	png, err := qrcode.Encode(c.ConnectURI(), qrcode.Medium, 256)
	if err != nil {
		return nil, errors.WrapAndReport(err, "encode pairing qr code")
	}
	return png, nil
}
