// Package qr renders the QR codes printed on passes and team cards.
package qr

import (
	"errors"

	"github.com/skip2/go-qrcode"
)

const defaultSize = 300

var ErrEmptyPayload = errors.New("qr payload is empty")

// PNG encodes payload as a PNG image of size pixels (300 when size <= 0).
func PNG(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	if size <= 0 {
		size = defaultSize
	}
	code, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	code.DisableBorder = false
	return code.PNG(size)
}
