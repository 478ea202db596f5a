// Package qrimage renders QR artifacts. The code carries an activation URL
// whose token is the AES-CFB encrypted payload.
package qrimage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"ms-qrinventory/internal/models"

	"github.com/skip2/go-qrcode"
)

type Payload struct {
	QRID         string    `json:"qr_id"`
	SerialNumber string    `json:"serial_number"`
	BundleID     string    `json:"bundle_id"`
	IssuedAt     time.Time `json:"issued_at"`
}

type Generator struct {
	secret            []byte
	activationBaseURL string
	size              int
}

func NewGenerator(secret, activationBaseURL string, size int) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	if size <= 0 {
		size = 256
	}
	return &Generator{
		secret:            hashed[:],
		activationBaseURL: strings.TrimRight(activationBaseURL, "/"),
		size:              size,
	}
}

// ActivationURL is the content encoded into the QR image.
func (g *Generator) ActivationURL(qr *models.QR) (string, error) {
	token, err := g.Encrypt(Payload{
		QRID:         qr.ID,
		SerialNumber: qr.SerialNumber,
		BundleID:     qr.BundleID,
		IssuedAt:     qr.CreatedAt.UTC(),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s?t=%s", g.activationBaseURL, qr.SerialNumber, url.QueryEscape(token)), nil
}

// Render returns the PNG for qr.
func (g *Generator) Render(qr *models.QR) ([]byte, error) {
	content, err := g.ActivationURL(qr)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(content, qrcode.Medium, g.size)
}

func (g *Generator) Encrypt(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return encryptAES(data, g.secret)
}

func (g *Generator) Decrypt(token string) (Payload, error) {
	var p Payload
	data, err := decryptAES(token, g.secret)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("invalid qr token: %w", err)
	}
	return p, nil
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

func decryptAES(token string, key []byte) ([]byte, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid qr token: %w", err)
	}
	if len(ciphertext) <= aes.BlockSize {
		return nil, errors.New("invalid qr token: too short")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv, body := ciphertext[:aes.BlockSize], ciphertext[aes.BlockSize:]
	plain := make([]byte, len(body))
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(plain, body)
	return plain, nil
}
