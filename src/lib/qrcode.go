package lib

import (
	"crypto/rand"
	"encoding/hex"
	"log"

	"github.com/yeqown/go-qrcode"
)

// NewQRPayload returns a 32-char hex string with 128 bits of entropy,
// used as the scannable identity of a single ticket.
func NewQRPayload() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// rand.Read only fails when the OS entropy source is broken
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// RenderQRCode writes a QR image for the payload to filepath.
func RenderQRCode(payload string, filepath string) error {
	qrc, err := qrcode.New(payload)
	if err != nil {
		return err
	}
	if err = qrc.Save(filepath); err != nil {
		log.Printf("Could not save qrcode to file [%s]: %s\n", filepath, err.Error())
		return err
	}
	return nil
}
