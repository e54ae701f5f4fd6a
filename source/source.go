// Package source retrieves receipt bytes for the parser.
//
// Receipts reach a server either as the binary file StoreKit keeps in the
// application bundle or as the base64 text the application uploads. Both
// forms are accepted and returned as binary PKCS#7 data.
package source

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/takimoto3/iap-receipt/ber"
)

var (
	// ErrNoReceipt indicates there is no receipt to read.
	ErrNoReceipt = errors.New("no receipt data")

	// ErrUnrecognizedFormat indicates data that is neither base64 text nor a
	// BER encoded structure.
	ErrUnrecognizedFormat = errors.New("unrecognized receipt format")
)

// Fetcher provides the binary receipt.
type Fetcher interface {
	ReceiptData(ctx context.Context) ([]byte, error)
}

// Bytes is a Fetcher for a receipt already in memory, in either form.
type Bytes []byte

func (b Bytes) ReceiptData(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, ErrNoReceipt
	}
	return Decode(b)
}

// FileFetcher reads the receipt from a file, such as the one StoreKit stores
// at Bundle.main.appStoreReceiptURL.
type FileFetcher struct {
	Path   string
	Logger *slog.Logger
}

func (f *FileFetcher) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

// ReceiptData returns ErrNoReceipt when the file does not exist or is empty.
func (f *FileFetcher) ReceiptData(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := LoadFile(f.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		f.logger().Warn("receipt file not found", "path", f.Path)
		return nil, fmt.Errorf("%w: %s", ErrNoReceipt, f.Path)
	case errors.Is(err, ErrNoReceipt):
		f.logger().Warn("receipt file is empty", "path", f.Path)
		return nil, err
	case err != nil:
		f.logger().Error("failed to load receipt", "path", f.Path, "error", err)
		return nil, err
	}
	f.logger().Debug("receipt loaded", "path", f.Path, "bytes", len(data))
	return data, nil
}

// LoadFile loads a receipt file. Files ending in .b64 or .txt must hold
// base64 text; for any other name the format is detected.
func LoadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNoReceipt, path)
	}

	switch filepath.Ext(path) {
	case ".b64", ".txt":
		der, err := decodeBase64(data)
		if err != nil {
			return nil, fmt.Errorf("no valid base64 receipt found in %s: %w", path, err)
		}
		return der, nil

	default:
		der, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return der, nil
	}
}

// Decode returns the binary receipt held in data. Base64 text is tried first,
// then data is checked to be a single BER encoded structure.
func Decode(data []byte) ([]byte, error) {
	// Try base64 first
	if der, err := decodeBase64(data); err == nil {
		return der, nil
	}
	// Try binary
	if c, err := ber.Decode(data); err == nil && c.IsConstructed() {
		return data[:c.TotalBytesUsed()], nil
	}
	return nil, ErrUnrecognizedFormat
}

// decodeBase64 decodes standard base64, ignoring line breaks and surrounding
// space. The result must decode as a constructed container.
func decodeBase64(data []byte) ([]byte, error) {
	text := bytes.Join(bytes.Fields(data), nil)
	der := make([]byte, base64.StdEncoding.DecodedLen(len(text)))
	n, err := base64.StdEncoding.Decode(der, text)
	if err != nil {
		return nil, err
	}
	der = der[:n]
	c, err := ber.Decode(der)
	if err != nil {
		return nil, err
	}
	if !c.IsConstructed() {
		return nil, fmt.Errorf("%w: decoded base64 is not a constructed container", ErrUnrecognizedFormat)
	}
	return der, nil
}
