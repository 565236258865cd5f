package tron

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"testing"

	"recharge-service/internal/domain"

	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	usdtMainnetBase58 = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	usdtMainnetHex    = "41a614f803b6fd780986a42c78ec9c7f77e6ded13c"
)

func TestHexToBase58KnownAddress(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"with prefix", usdtMainnetHex},
		{"without prefix", usdtMainnetHex[2:]},
		{"0x transport prefix", "0x" + usdtMainnetHex},
		{"upper case", strings.ToUpper(usdtMainnetHex)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HexToBase58(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, usdtMainnetBase58, got)
		})
	}
}

func TestHexToBase58Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"short", "41a614f803"},
		{"long", usdtMainnetHex + "00"},
		{"not hex", "41zz14f803b6fd780986a42c78ec9c7f77e6ded13c"},
		{"wrong prefix", "42a614f803b6fd780986a42c78ec9c7f77e6ded13c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := HexToBase58(tt.raw)
			assert.ErrorIs(t, err, domain.ErrMalformedAddress)
		})
	}
}

func TestBase58ToHex(t *testing.T) {
	got, err := Base58ToHex(usdtMainnetBase58)
	require.NoError(t, err)
	assert.Equal(t, usdtMainnetHex, got)

	// flip one character to break the checksum
	broken := usdtMainnetBase58[:10] + "X" + usdtMainnetBase58[11:]
	_, err = Base58ToHex(broken)
	assert.ErrorIs(t, err, domain.ErrMalformedAddress)

	_, err = Base58ToHex("T123")
	assert.ErrorIs(t, err, domain.ErrMalformedAddress)
}

func TestAddressRoundTripMatchesSDK(t *testing.T) {
	for i := 0; i < 200; i++ {
		payload := make([]byte, addressLength)
		payload[0] = AddressPrefix
		_, err := rand.Read(payload[1:])
		require.NoError(t, err)
		raw := hex.EncodeToString(payload)

		encoded, err := HexToBase58(raw)
		require.NoError(t, err)
		assert.Equal(t, address.Address(payload).String(), encoded)

		back, err := Base58ToHex(encoded)
		require.NoError(t, err)
		assert.Equal(t, raw, back)

		parsed, err := address.Base58ToAddress(encoded)
		require.NoError(t, err)
		assert.Equal(t, payload, []byte(parsed))
	}
}

func TestNormalizeHex(t *testing.T) {
	for _, in := range []string{usdtMainnetBase58, usdtMainnetHex, "0x" + usdtMainnetHex[2:]} {
		got, err := NormalizeHex(in)
		require.NoError(t, err, in)
		assert.Equal(t, usdtMainnetHex, got)
	}
}
