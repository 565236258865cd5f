// internal/chains/tron/decoder.go
package tron

import (
	"fmt"
	"math/big"
	"strings"

	"recharge-service/internal/domain"

	"github.com/shopspring/decimal"
)

// Decoder extracts incoming payments to one receiving wallet from raw
// transactions. It holds no mutable state and is safe for concurrent use.
type Decoder struct {
	walletHex string
	tokenHex  string
}

// NewDecoder accepts wallet and token contract in base58 or raw hex form.
func NewDecoder(wallet, tokenContract string) (*Decoder, error) {
	walletHex, err := NormalizeHex(wallet)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet address: %w", err)
	}
	tokenHex, err := NormalizeHex(tokenContract)
	if err != nil {
		return nil, fmt.Errorf("invalid token contract: %w", err)
	}
	return &Decoder{walletHex: walletHex, tokenHex: tokenHex}, nil
}

// DecodeBlock returns every matching transfer in the block, in order.
func (d *Decoder) DecodeBlock(block *domain.Block) []*domain.Transfer {
	var transfers []*domain.Transfer
	for i := range block.Transactions {
		transfers = append(transfers, d.DecodeTransaction(&block.Transactions[i], block.Number)...)
	}
	return transfers
}

// DecodeTransaction skips transactions that did not execute successfully.
func (d *Decoder) DecodeTransaction(tx *domain.RawTransaction, blockNumber int64) []*domain.Transfer {
	if tx.Result != "" && tx.Result != domain.ContractResultSuccess {
		return nil
	}

	var transfers []*domain.Transfer
	for i := range tx.Contracts {
		var (
			tr *domain.Transfer
			ok bool
		)
		switch tx.Contracts[i].Type {
		case domain.ContractTypeTransfer:
			tr, ok = d.DecodeNative(&tx.Contracts[i])
		case domain.ContractTypeTriggerSmart:
			tr, ok = d.DecodeToken(&tx.Contracts[i])
		}
		if !ok {
			continue
		}
		tr.TxID = tx.TxID
		tr.BlockNumber = blockNumber
		transfers = append(transfers, tr)
	}
	return transfers
}

// DecodeNative matches a TRX transfer to the wallet.
func (d *Decoder) DecodeNative(c *domain.RawContract) (*domain.Transfer, bool) {
	if !d.sameAddress(c.ToAddress, d.walletHex) {
		return nil, false
	}
	if c.Amount <= 0 {
		return nil, false
	}
	raw := big.NewInt(c.Amount)
	return &domain.Transfer{
		Currency:  domain.CurrencyTRX,
		From:      displayAddress(c.OwnerAddress),
		To:        displayAddress(c.ToAddress),
		Amount:    toDisplayAmount(raw, domain.CurrencyTRX),
		RawAmount: raw,
	}, true
}

// DecodeToken matches a transfer(address,uint256) call on the token contract
// whose recipient is the wallet.
func (d *Decoder) DecodeToken(c *domain.RawContract) (*domain.Transfer, bool) {
	if !d.sameAddress(c.ContractAddress, d.tokenHex) {
		return nil, false
	}
	call, ok := decodeTransferCall(c.Data)
	if !ok {
		return nil, false
	}
	if call.ToHex != d.walletHex || call.Amount.Sign() <= 0 {
		return nil, false
	}
	return &domain.Transfer{
		Currency:  domain.CurrencyUSDT,
		From:      displayAddress(c.OwnerAddress),
		To:        displayAddress(call.ToHex),
		Amount:    toDisplayAmount(call.Amount, domain.CurrencyUSDT),
		RawAmount: call.Amount,
	}, true
}

func (d *Decoder) sameAddress(raw, want string) bool {
	got, err := NormalizeHex(raw)
	return err == nil && got == want
}

// toDisplayAmount divides by the currency's decimals and rounds to
// SettlementPrecision, the same precision decorated amounts are minted with.
func toDisplayAmount(raw *big.Int, c domain.Currency) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -c.Decimals()).Round(domain.SettlementPrecision)
}

func displayAddress(raw string) string {
	if addr, err := HexToBase58(raw); err == nil {
		return addr
	}
	return strings.ToLower(raw)
}
