// Package treasury moves settlement funds on chain: the platform fee sweep
// on every split execution and the payout side of balance claims. Both run
// as ERC-20 token transfers signed by the relayer key. A recording
// implementation backs development and tests.
package treasury

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mbd888/splitpay/internal/money"
)

var (
	ErrInvalidPrivateKey = errors.New("treasury: invalid private key")
	ErrInvalidAmount     = errors.New("treasury: invalid amount")
	ErrRPCConnection     = errors.New("treasury: RPC connection failed")
)

// TransferError wraps transfer failures with context.
type TransferError struct {
	Op     string
	TxHash string
	Err    error
}

func (e *TransferError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("treasury: %s failed (tx: %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("treasury: %s failed: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// TransferResult contains details of a submitted transfer.
type TransferResult struct {
	TxHash    string
	From      string
	To        string
	Amount    string
	AmountRaw *big.Int
	Nonce     uint64
}

// Transferor executes settlement transfers. The ledger depends only on this
// interface; the chain-backed wallet and the dev recorder both satisfy it.
type Transferor interface {
	Transfer(ctx context.Context, to string, amount *big.Int) (*TransferResult, error)
	Address() string
}

// ERC20 minimal ABI for transfer and balanceOf.
const erc20ABI = `[
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

// DefaultGasLimit for ERC20 transfers when estimation fails.
const DefaultGasLimit = uint64(100_000)

// EthClient abstracts the go-ethereum client for testing.
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// Config for creating a chain-backed treasury.
type Config struct {
	RPCURL        string
	PrivateKey    string // hex, 0x prefix optional
	ChainID       int64
	TokenContract string
}

// Option configures the wallet.
type Option func(*Wallet)

// WithClient sets a custom Ethereum client (useful for testing).
func WithClient(client EthClient) Option {
	return func(w *Wallet) { w.client = client }
}

// Wallet signs and submits ERC-20 transfers from the relayer key.
type Wallet struct {
	client        EthClient
	privateKey    *ecdsa.PrivateKey
	address       common.Address
	chainID       *big.Int
	tokenContract common.Address
	tokenABI      abi.ABI
}

var _ Transferor = (*Wallet)(nil)

// New creates a chain-backed treasury wallet.
func New(cfg Config, opts ...Option) (*Wallet, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: failed to derive public key", ErrInvalidPrivateKey)
	}
	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	w := &Wallet{
		privateKey:    privateKey,
		address:       crypto.PubkeyToAddress(*publicKey),
		chainID:       big.NewInt(cfg.ChainID),
		tokenContract: common.HexToAddress(cfg.TokenContract),
		tokenABI:      parsedABI,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.client == nil {
		client, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRPCConnection, err)
		}
		w.client = client
	}
	return w, nil
}

func validateConfig(cfg Config) error {
	if cfg.RPCURL == "" {
		return fmt.Errorf("%w: RPC URL required", ErrRPCConnection)
	}
	key := strings.TrimPrefix(cfg.PrivateKey, "0x")
	if len(key) != 64 {
		return fmt.Errorf("%w: must be 64 hex characters", ErrInvalidPrivateKey)
	}
	if cfg.ChainID == 0 {
		return errors.New("treasury: chain ID required")
	}
	if cfg.TokenContract == "" {
		return errors.New("treasury: token contract address required")
	}
	return nil
}

// Address returns the signer address.
func (w *Wallet) Address() string {
	return w.address.Hex()
}

// BalanceOf returns the token balance of an address.
func (w *Wallet) BalanceOf(ctx context.Context, addr string) (*big.Int, error) {
	data, err := w.tokenABI.Pack("balanceOf", common.HexToAddress(addr))
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}
	result, err := w.client.CallContract(ctx, ethereum.CallMsg{
		To:   &w.tokenContract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}
	return new(big.Int).SetBytes(result), nil
}

// Transfer sends tokens to a recipient. The amount is in micro-units.
func (w *Wallet) Transfer(ctx context.Context, to string, amount *big.Int) (*TransferResult, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	toAddr := common.HexToAddress(to)

	data, err := w.tokenABI.Pack("transfer", toAddr, amount)
	if err != nil {
		return nil, &TransferError{Op: "pack", Err: err}
	}
	nonce, err := w.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return nil, &TransferError{Op: "nonce", Err: err}
	}
	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, &TransferError{Op: "gas_price", Err: err}
	}
	gasLimit, err := w.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  w.address,
		To:    &w.tokenContract,
		Value: big.NewInt(0),
		Data:  data,
	})
	if err != nil {
		gasLimit = DefaultGasLimit
	}

	tx := types.NewTransaction(nonce, w.tokenContract, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(w.chainID), w.privateKey)
	if err != nil {
		return nil, &TransferError{Op: "sign", Err: err}
	}
	if err := w.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, &TransferError{Op: "send", TxHash: signedTx.Hash().Hex(), Err: err}
	}

	return &TransferResult{
		TxHash:    signedTx.Hash().Hex(),
		From:      w.address.Hex(),
		To:        toAddr.Hex(),
		Amount:    money.Format(amount),
		AmountRaw: amount,
		Nonce:     nonce,
	}, nil
}

// Close releases the RPC connection.
func (w *Wallet) Close() error {
	if w.client != nil {
		w.client.Close()
	}
	return nil
}
