// Package cryptoutil 封装 BYOK 密钥的对称加密。
// 密钥由配置口令经 PBKDF2 派生，密文为 base64(nonce || AES-GCM ciphertext)。
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// pbkdf2 参数固定写死：改动会让存量密文无法解密
const (
	keyIterations = 10000
	keyLen        = 32
)

var keySalt = []byte("tgllm-byok-v1")

type Cipher struct {
	aead cipher.AEAD
}

func NewCipher(passphrase string) (*Cipher, error) {
	key := pbkdf2.Key([]byte(passphrase), keySalt, keyIterations, keyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", ErrCiphertextTooShort
	}
	plaintext, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
