// Package chain wraps the RPC access the bot needs: head block time, view
// reads for market data, own balances, and the liquidate entrypoint.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

const (
	oracleABIJSON = `[{"inputs":[],"name":"getPrice","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`
	engineABIJSON = `[{"inputs":[],"name":"compoundInterestRate","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},{"inputs":[{"internalType":"address","name":"vaultOwner","type":"address"},{"internalType":"uint256","name":"tokenAmount","type":"uint256"}],"name":"liquidate","outputs":[],"stateMutability":"nonpayable","type":"function"}]`
	tokenABIJSON  = `[{"inputs":[{"internalType":"address","name":"account","type":"address"},{"internalType":"uint256","name":"id","type":"uint256"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`
)

var (
	oracleABI abi.ABI
	engineABI abi.ABI
	tokenABI  abi.ABI
)

func init() {
	for _, entry := range []struct {
		name string
		json string
		dst  *abi.ABI
	}{
		{"oracle", oracleABIJSON, &oracleABI},
		{"engine", engineABIJSON, &engineABI},
		{"token", tokenABIJSON, &tokenABI},
	} {
		parsed, err := abi.JSON(strings.NewReader(entry.json))
		if err != nil {
			panic("failed to parse " + entry.name + " ABI: " + err.Error())
		}
		*entry.dst = parsed
	}
}

// Options parameterise the chain client.
type Options struct {
	RPCURL         string
	ChainID        int64
	PrivateKey     string
	EngineAddress  string
	OracleAddress  string
	TokenAddress   string
	TokenID        int64
	RequestTimeout time.Duration
	ConfirmTimeout time.Duration
}

// Client talks to the chain over a lazily-dialled RPC connection.
type Client struct {
	opts      Options
	logger    zerolog.Logger
	key       *ecdsa.PrivateKey
	own       common.Address
	engine    common.Address
	oracle    common.Address
	token     common.Address
	client    *ethclient.Client
	clientMux sync.Mutex
}

// New validates the connection and signing parameters up front; a bot must
// not start with an ambiguous chain identity.
func New(opts Options, logger zerolog.Logger) (*Client, error) {
	if opts.RPCURL == "" {
		return nil, errors.New("chain rpc url not configured")
	}
	if opts.ChainID <= 0 {
		return nil, errors.New("chain id not configured")
	}
	for name, addr := range map[string]string{
		"engine": opts.EngineAddress,
		"oracle": opts.OracleAddress,
		"token":  opts.TokenAddress,
	} {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("%s address %q is not a valid address", name, addr)
		}
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(opts.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &Client{
		opts:   opts,
		logger: logger.With().Str("component", "chain_client").Logger(),
		key:    key,
		own:    crypto.PubkeyToAddress(key.PublicKey),
		engine: common.HexToAddress(opts.EngineAddress),
		oracle: common.HexToAddress(opts.OracleAddress),
		token:  common.HexToAddress(opts.TokenAddress),
	}, nil
}

// OwnAddress returns the account the bot signs with.
func (c *Client) OwnAddress() string {
	return c.own.Hex()
}

// HeadTime returns the timestamp of the latest block.
func (c *Client) HeadTime(ctx context.Context) (time.Time, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return time.Time{}, err
	}

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("fetch head header: %w", err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// OraclePrice reads the oracle's fixed-point price via a view call. The
// result is in the oracle's own decimal scale.
func (c *Client) OraclePrice(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, oracleABI, c.oracle, "getPrice")
}

// CompoundInterestRate reads the engine's multiplicative accrual factor.
func (c *Client) CompoundInterestRate(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, engineABI, c.engine, "compoundInterestRate")
}

// TokenBalance reads the bot's synthetic-token balance from the token ledger.
func (c *Client) TokenBalance(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, tokenABI, c.token, "balanceOf", c.own, big.NewInt(c.opts.TokenID))
}

// NativeBalance reads the bot's native-currency balance.
func (c *Client) NativeBalance(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	balance, err := client.BalanceAt(ctx, c.own, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch native balance: %w", err)
	}
	return balance, nil
}

// Liquidate submits liquidate(vaultOwner, amount) against the engine and
// waits for the transaction to be mined. The hash of the mined transaction is
// returned on success.
func (c *Client) Liquidate(ctx context.Context, vaultOwner string, amount *big.Int) (string, error) {
	if !common.IsHexAddress(vaultOwner) {
		return "", fmt.Errorf("vault owner %q is not a valid address", vaultOwner)
	}

	client, err := c.getClient(ctx)
	if err != nil {
		return "", err
	}

	auth, err := bind.NewKeyedTransactorWithChainID(c.key, big.NewInt(c.opts.ChainID))
	if err != nil {
		return "", fmt.Errorf("build transactor: %w", err)
	}
	auth.Context = ctx

	contract := bind.NewBoundContract(c.engine, engineABI, client, client, client)
	tx, err := contract.Transact(auth, "liquidate", common.HexToAddress(vaultOwner), amount)
	if err != nil {
		return "", fmt.Errorf("submit liquidate: %w", err)
	}

	confirmTimeout := c.opts.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = 2 * time.Minute
	}
	waitCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, client, tx)
	if err != nil {
		return "", fmt.Errorf("await confirmation of %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}

	c.logger.Debug().
		Str("tx", tx.Hash().Hex()).
		Str("vault_owner", vaultOwner).
		Str("amount", amount.String()).
		Msg("liquidation mined")
	return tx.Hash().Hex(), nil
}

func (c *Client) callUint(ctx context.Context, contractABI abi.ABI, to common.Address, method string, args ...interface{}) (*big.Int, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	outputs, err := contractABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("unexpected %s response", method)
	}

	value, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to decode %s output", method)
	}
	return value, nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Client) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}
