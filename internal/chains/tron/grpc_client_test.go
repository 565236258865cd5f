package tron

import (
	"encoding/hex"
	"math/big"
	"testing"

	"recharge-service/internal/domain"

	"github.com/fbsobreira/gotron-sdk/pkg/proto/api"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func contractOf(t *testing.T, typ core.Transaction_Contract_ContractType, msg proto.Message) *core.Transaction_Contract {
	t.Helper()
	param, err := anypb.New(msg)
	require.NoError(t, err)
	return &core.Transaction_Contract{Type: typ, Parameter: param}
}

func TestNormalizeBlock(t *testing.T) {
	data, err := EncodeTransferData(walletHex, big.NewInt(50_120_000))
	require.NoError(t, err)

	block := &api.BlockExtention{
		BlockHeader: &core.BlockHeader{RawData: &core.BlockHeaderRaw{Number: 9, Timestamp: 1700000000000}},
		Transactions: []*api.TransactionExtention{
			{
				Txid: []byte{0xab, 0xcd},
				Transaction: &core.Transaction{
					RawData: &core.TransactionRaw{Contract: []*core.Transaction_Contract{
						contractOf(t, core.Transaction_Contract_TransferContract, &core.TransferContract{
							OwnerAddress: mustHex(t, payerHex),
							ToAddress:    mustHex(t, walletHex),
							Amount:       1_230_000,
						}),
					}},
					Ret: []*core.Transaction_Result{{ContractRet: core.Transaction_Result_SUCCESS}},
				},
			},
			{
				Txid: []byte{0x01},
				Transaction: &core.Transaction{
					RawData: &core.TransactionRaw{Contract: []*core.Transaction_Contract{
						contractOf(t, core.Transaction_Contract_TriggerSmartContract, &core.TriggerSmartContract{
							OwnerAddress:    mustHex(t, payerHex),
							ContractAddress: mustHex(t, usdtMainnetHex),
							Data:            mustHex(t, data),
						}),
					}},
				},
			},
			{Txid: []byte{0x02}},
		},
	}

	got, err := normalizeBlock(block, 9, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.Number)
	require.Len(t, got.Transactions, 2)

	first := got.Transactions[0]
	assert.Equal(t, "abcd", first.TxID)
	assert.Equal(t, "SUCCESS", first.Result)
	assert.Equal(t, walletHex, first.Contracts[0].ToAddress)

	second := got.Transactions[1]
	assert.Equal(t, "", second.Result)
	assert.Equal(t, domain.ContractTypeTriggerSmart, second.Contracts[0].Type)
	assert.Equal(t, data, second.Contracts[0].Data)

	d, err := NewDecoder(walletHex, usdtMainnetHex)
	require.NoError(t, err)
	transfers := d.DecodeBlock(got)
	require.Len(t, transfers, 2)
	assert.Equal(t, "1.23", transfers[0].Amount.StringFixed(2))
	assert.Equal(t, "50.12", transfers[1].Amount.StringFixed(2))
}

func TestNormalizeBlockEmpty(t *testing.T) {
	_, err := normalizeBlock(&api.BlockExtention{}, 5, zap.NewNop())
	assert.ErrorIs(t, err, domain.ErrBlockUnavailable)
}
