// internal/chains/tron/address.go
package tron

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"recharge-service/internal/domain"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// AddressPrefix is the mainnet account prefix byte (base58 "T...").
	AddressPrefix byte = 0x41

	addressLength  = 21
	checksumLength = 4
)

// HexToBase58 converts a raw hex account (with or without the 0x41 prefix,
// optionally 0x-prefixed) into its checksummed base58 form.
func HexToBase58(raw string) (string, error) {
	payload, err := decodeRawAddress(raw)
	if err != nil {
		return "", err
	}
	return encodeBase58Check(payload), nil
}

// Base58ToHex converts a checksummed base58 address into its 42 char raw hex
// form, verifying prefix and checksum.
func Base58ToHex(addr string) (string, error) {
	payload, err := decodeBase58Check(addr)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(payload), nil
}

// NormalizeHex accepts either representation and returns lowercase raw hex
// with the network prefix. Used to compare addresses from different sources.
func NormalizeHex(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if isBase58Candidate(addr) {
		return Base58ToHex(addr)
	}
	payload, err := decodeRawAddress(addr)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(payload), nil
}

// ValidateAddress reports whether addr is a well-formed base58 TRON address.
func ValidateAddress(addr string) error {
	_, err := decodeBase58Check(addr)
	return err
}

func decodeRawAddress(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	s = strings.ToLower(s)

	switch len(s) {
	case (addressLength - 1) * 2:
		s = "41" + s
	case addressLength * 2:
	default:
		return nil, fmt.Errorf("%w: hex length %d", domain.ErrMalformedAddress, len(s))
	}

	payload, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedAddress, err)
	}
	if payload[0] != AddressPrefix {
		return nil, fmt.Errorf("%w: prefix 0x%02x", domain.ErrMalformedAddress, payload[0])
	}
	return payload, nil
}

func encodeBase58Check(payload []byte) string {
	checksum := chainhash.DoubleHashB(payload)[:checksumLength]
	buf := make([]byte, 0, len(payload)+checksumLength)
	buf = append(buf, payload...)
	buf = append(buf, checksum...)
	return base58.Encode(buf)
}

func decodeBase58Check(addr string) ([]byte, error) {
	decoded := base58.Decode(strings.TrimSpace(addr))
	if len(decoded) != addressLength+checksumLength {
		return nil, fmt.Errorf("%w: %q", domain.ErrMalformedAddress, addr)
	}

	payload := decoded[:addressLength]
	checksum := decoded[addressLength:]
	if !bytes.Equal(chainhash.DoubleHashB(payload)[:checksumLength], checksum) {
		return nil, fmt.Errorf("%w: checksum mismatch", domain.ErrMalformedAddress)
	}
	if payload[0] != AddressPrefix {
		return nil, fmt.Errorf("%w: prefix 0x%02x", domain.ErrMalformedAddress, payload[0])
	}
	return payload, nil
}

func isBase58Candidate(s string) bool {
	return len(s) == 34 && s[0] == 'T'
}
