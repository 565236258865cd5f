// internal/chains/tron/abi_helper.go
package tron

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// TRC20 function signatures
const (
	TransferSignature = "transfer(address,uint256)"
	TransferMethodID  = "a9059cbb"

	// selector + address word + amount word
	transferCallHexLen = 8 + 64 + 64
)

// MethodID returns the 4-byte selector of a solidity signature as hex.
func MethodID(signature string) string {
	return hex.EncodeToString(crypto.Keccak256([]byte(signature))[:4])
}

// EncodeTransferData builds transfer(address,uint256) call data. to may be
// base58 or raw hex.
func EncodeTransferData(to string, amount *big.Int) (string, error) {
	toHex, err := NormalizeHex(to)
	if err != nil {
		return "", err
	}
	if amount == nil || amount.Sign() < 0 {
		return "", fmt.Errorf("invalid transfer amount")
	}

	// ABI addresses are the 20 bytes after the network prefix
	toParam := common.LeftPadBytes(common.FromHex(toHex[2:]), 32)
	amountParam := common.LeftPadBytes(amount.Bytes(), 32)

	return TransferMethodID + hex.EncodeToString(toParam) + hex.EncodeToString(amountParam), nil
}

// transferCall is a decoded transfer(address,uint256) payload.
type transferCall struct {
	ToHex  string
	Amount *big.Int
}

// decodeTransferCall parses the fixed-offset ABI layout. Any deviation
// (short payload, other selector, dirty address padding) is reported as ok=false.
func decodeTransferCall(dataHex string) (*transferCall, bool) {
	data := strings.ToLower(strings.TrimPrefix(dataHex, "0x"))
	if len(data) < transferCallHexLen {
		return nil, false
	}
	if data[:8] != TransferMethodID {
		return nil, false
	}

	addrWord := data[8:72]
	if strings.Trim(addrWord[:24], "0") != "" {
		return nil, false
	}
	if _, err := hex.DecodeString(addrWord[24:]); err != nil {
		return nil, false
	}

	amountBytes, err := hex.DecodeString(data[72:136])
	if err != nil {
		return nil, false
	}

	return &transferCall{
		ToHex:  "41" + addrWord[24:],
		Amount: new(big.Int).SetBytes(amountBytes),
	}, true
}
