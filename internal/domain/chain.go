// internal/domain/chain.go
package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger is the block-by-number RPC surface the scanner needs.
type Ledger interface {
	// LatestBlockNumber returns the current tip height.
	LatestBlockNumber(ctx context.Context) (int64, error)

	// BlockByNumber returns the block body at height n.
	BlockByNumber(ctx context.Context, n int64) (*Block, error)
}

// Block is a ledger block normalised away from the RPC transport.
type Block struct {
	Number       int64
	Timestamp    time.Time
	Transactions []RawTransaction
}

type ContractType string

const (
	ContractTypeTransfer     ContractType = "TransferContract"
	ContractTypeTriggerSmart ContractType = "TriggerSmartContract"
)

// ContractResultSuccess is the only execution result that can settle an order.
const ContractResultSuccess = "SUCCESS"

// RawTransaction carries hex-encoded contract fields exactly as the ledger
// reports them. Result is the contract execution result, empty when unknown.
type RawTransaction struct {
	TxID      string
	Result    string
	Contracts []RawContract
}

type RawContract struct {
	Type            ContractType
	OwnerAddress    string
	ToAddress       string
	Amount          int64
	ContractAddress string
	Data            string
}

// Transfer is a decoded incoming payment to the receiving wallet.
type Transfer struct {
	TxID        string
	BlockNumber int64
	Currency    Currency
	From        string
	To          string
	// Amount is in display units, rounded to SettlementPrecision.
	Amount    decimal.Decimal
	RawAmount *big.Int
}
