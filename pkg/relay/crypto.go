package relay

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"

	"moff.io/wallet-bridge/pkg/errors"
)

// Envelope crypto of the relay wire protocol: AES-256-CBC payloads signed with
// HMAC-SHA256 over ciphertext||iv.

func Aes256Encrypt(content, encryptionKey, iv []byte) ([]byte, error) {
	padded := pkcs5Padding(content, aes.BlockSize)
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "create cipher block")
	}
	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

func Aes256Decrypt(cipherText, encryptionKey, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "create cipher block")
	}
	if len(cipherText)%aes.BlockSize != 0 {
		return nil, errors.New("cipher text is not block aligned")
	}
	plain := make([]byte, len(cipherText))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plain, cipherText)
	return pkcs5Unpadding(plain)
}

func pkcs5Padding(content []byte, blockSize int) []byte {
	padding := blockSize - len(content)%blockSize
	padText := bytes.Repeat([]byte{byte(padding)}, padding)
	return append(content, padText...)
}

func pkcs5Unpadding(content []byte) ([]byte, error) {
	if len(content) == 0 {
		return nil, errors.New("empty plain text")
	}
	padding := int(content[len(content)-1])
	if padding == 0 || padding > len(content) {
		return nil, errors.New("malformed padding")
	}
	return content[:len(content)-padding], nil
}

func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.Wrap(err, "read random bytes")
	}
	return b, nil
}

func HmacSha256(data, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(data)
	return h.Sum(nil)
}
