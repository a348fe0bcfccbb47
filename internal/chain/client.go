package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client reads from the chain that hosts the AMM's tokens. The AMM itself runs
// in-process; the chain is only consulted for token metadata.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

// NewClient dials rpcURL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

func (c *Client) Close() {
	if c != nil && c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the id of the chain behind the RPC endpoint.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	id, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("get chain id: %w", err)
	}
	if !id.IsUint64() {
		return 0, fmt.Errorf("chain id out of range: %s", id)
	}
	return id.Uint64(), nil
}

// CallContract executes a read-only call at the given block (nil for latest).
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}
