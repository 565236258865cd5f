// internal/chains/tron/grpc_client.go
package tron

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"recharge-service/internal/domain"

	"github.com/fbsobreira/gotron-sdk/pkg/client"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/api"
	"github.com/fbsobreira/gotron-sdk/pkg/proto/core"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
)

// TronGRPCClient reads blocks from a full node over gRPC.
type TronGRPCClient struct {
	grpcClient *client.GrpcClient
	logger     *zap.Logger
}

func NewTronGRPCClient(grpcURL, apiKey string, timeout time.Duration, logger *zap.Logger) (*TronGRPCClient, error) {
	grpcClient := client.NewGrpcClientWithTimeout(grpcURL, timeout)
	if apiKey != "" {
		grpcClient.SetAPIKey(apiKey)
	}

	if err := grpcClient.Start(grpc.WithTransportCredentials(insecure.NewCredentials())); err != nil {
		return nil, fmt.Errorf("failed to start TRON gRPC client: %w", err)
	}

	logger.Info("TRON gRPC client started", zap.String("grpc_url", grpcURL))

	return &TronGRPCClient{
		grpcClient: grpcClient,
		logger:     logger,
	}, nil
}

func (c *TronGRPCClient) Stop() {
	c.grpcClient.Stop()
	c.logger.Info("TRON gRPC client stopped")
}

// LatestBlockNumber returns the tip height. The SDK applies its own timeout.
func (c *TronGRPCClient) LatestBlockNumber(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	block, err := c.grpcClient.GetNowBlock()
	if err != nil {
		return 0, fmt.Errorf("failed to get now block: %w", err)
	}
	if block.GetBlockHeader().GetRawData() == nil {
		return 0, fmt.Errorf("%w: empty now block", domain.ErrBlockUnavailable)
	}
	return block.GetBlockHeader().GetRawData().GetNumber(), nil
}

func (c *TronGRPCClient) BlockByNumber(ctx context.Context, n int64) (*domain.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	block, err := c.grpcClient.GetBlockByNum(n)
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", n, err)
	}
	return normalizeBlock(block, n, c.logger)
}

// normalizeBlock converts the protobuf block into the transport neutral form,
// hex encoding addresses and call data the same way the HTTP API does.
func normalizeBlock(b *api.BlockExtention, n int64, logger *zap.Logger) (*domain.Block, error) {
	raw := b.GetBlockHeader().GetRawData()
	if raw == nil {
		return nil, fmt.Errorf("%w: %d", domain.ErrBlockUnavailable, n)
	}

	block := &domain.Block{
		Number:       raw.GetNumber(),
		Timestamp:    time.UnixMilli(raw.GetTimestamp()),
		Transactions: make([]domain.RawTransaction, 0, len(b.GetTransactions())),
	}

	for _, txe := range b.GetTransactions() {
		tx := txe.GetTransaction()
		if tx == nil {
			continue
		}
		out := domain.RawTransaction{TxID: hex.EncodeToString(txe.GetTxid())}
		if ret := tx.GetRet(); len(ret) > 0 && ret[0].GetContractRet() != core.Transaction_Result_DEFAULT {
			out.Result = ret[0].GetContractRet().String()
		}

		for _, contract := range tx.GetRawData().GetContract() {
			rc, ok := normalizeContract(contract, logger)
			if ok {
				out.Contracts = append(out.Contracts, rc)
			}
		}
		block.Transactions = append(block.Transactions, out)
	}
	return block, nil
}

func normalizeContract(contract *core.Transaction_Contract, logger *zap.Logger) (domain.RawContract, bool) {
	param := contract.GetParameter()
	if param == nil {
		return domain.RawContract{}, false
	}

	switch contract.GetType() {
	case core.Transaction_Contract_TransferContract:
		var transfer core.TransferContract
		if err := proto.Unmarshal(param.GetValue(), &transfer); err != nil {
			logger.Warn("failed to unmarshal transfer contract", zap.Error(err))
			return domain.RawContract{}, false
		}
		return domain.RawContract{
			Type:         domain.ContractTypeTransfer,
			OwnerAddress: hex.EncodeToString(transfer.GetOwnerAddress()),
			ToAddress:    hex.EncodeToString(transfer.GetToAddress()),
			Amount:       transfer.GetAmount(),
		}, true

	case core.Transaction_Contract_TriggerSmartContract:
		var trigger core.TriggerSmartContract
		if err := proto.Unmarshal(param.GetValue(), &trigger); err != nil {
			logger.Warn("failed to unmarshal trigger contract", zap.Error(err))
			return domain.RawContract{}, false
		}
		return domain.RawContract{
			Type:            domain.ContractTypeTriggerSmart,
			OwnerAddress:    hex.EncodeToString(trigger.GetOwnerAddress()),
			ContractAddress: hex.EncodeToString(trigger.GetContractAddress()),
			Data:            hex.EncodeToString(trigger.GetData()),
		}, true

	default:
		return domain.RawContract{Type: domain.ContractType(contract.GetType().String())}, true
	}
}
