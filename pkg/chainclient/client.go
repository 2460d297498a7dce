package chainclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/retriever"
	regstate "github.com/centrifuge/go-substrate-rpc-client/v4/registry/state"
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/ethereum/go-ethereum/event"
	"github.com/speedrun-hq/spacewalk-tester/pkg/blockchain"
	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
)

const (
	// DefaultSS58Format is used when the chain does not report one
	DefaultSS58Format uint16 = 42

	runtimeTTL = 10 * time.Minute
)

// Client is a substrate ledger client for one network
type Client struct {
	network models.NetworkConfig
	api     *gsrpc.SubstrateAPI
	ss58    uint16
	runtime *runtimeCache
	events  retriever.EventRetriever
	cursor  *finalizedCursor
	logger  logger.Logger

	feed event.Feed
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// Dial returns a blockchain.Dialer backed by this package
func Dial(log logger.Logger) blockchain.Dialer {
	return func(ctx context.Context, network models.NetworkConfig) (blockchain.Client, error) {
		return New(ctx, network, log)
	}
}

// New connects to the network's websocket endpoint and starts following
// finalized blocks
func New(ctx context.Context, network models.NetworkConfig, log logger.Logger) (*Client, error) {
	type dialResult struct {
		api *gsrpc.SubstrateAPI
		err error
	}
	// NewSubstrateAPI has no context, so the dial is raced against ctx
	done := make(chan dialResult, 1)
	go func() {
		api, err := gsrpc.NewSubstrateAPI(network.WSS)
		done <- dialResult{api, err}
	}()

	var api *gsrpc.SubstrateAPI
	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %v", network.WSS, res.err)
		}
		api = res.api
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ss58 := DefaultSS58Format
	props, err := api.RPC.System.Properties()
	if err != nil {
		log.ErrorWithNetwork(network.Name, "Failed to read chain properties, using SS58 format %d: %v", ss58, err)
	} else if props.IsSS58Format {
		ss58 = uint16(props.AsSS58Format)
	}

	events, err := retriever.NewDefaultEventRetriever(regstate.NewEventProvider(api.RPC.State), api.RPC.State)
	if err != nil {
		api.Client.Close()
		return nil, fmt.Errorf("failed to create event retriever: %v", err)
	}

	c := &Client{
		network: network,
		api:     api,
		ss58:    ss58,
		events:  events,
		logger:  log,
		quit:    make(chan struct{}),
	}
	c.runtime = newRuntimeCache(runtimeTTL, c.loadRuntime)
	c.cursor = newFinalizedCursor(c, func(batch []models.Event) { c.feed.Send(batch) }, network.Name, log)

	if _, err := c.runtime.Get(); err != nil {
		api.Client.Close()
		return nil, err
	}

	c.wg.Add(1)
	go c.followFinalized()

	log.InfoWithNetwork(network.Name, "Connected to %s (SS58 format %d)", network.WSS, ss58)
	return c, nil
}

func (c *Client) loadRuntime() (*runtimeInfo, error) {
	meta, err := c.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %v", err)
	}
	version, err := c.api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		return nil, fmt.Errorf("failed to get runtime version: %v", err)
	}
	genesis, err := c.api.RPC.Chain.GetBlockHash(0)
	if err != nil {
		return nil, fmt.Errorf("failed to get genesis hash: %v", err)
	}
	return &runtimeInfo{meta: meta, version: version, genesis: genesis}, nil
}

// SS58Format returns the address format of the chain
func (c *Client) SS58Format() uint16 {
	return c.ss58
}

// Signer resolves a secret URI into a signing account
func (c *Client) Signer(uri string) (blockchain.Signer, error) {
	kp, err := signature.KeyringPairFromSecret(uri, c.ss58)
	if err != nil {
		return blockchain.Signer{}, fmt.Errorf("invalid signer secret: %v", err)
	}
	var pk models.AccountID
	copy(pk[:], kp.PublicKey)
	return blockchain.Signer{Address: kp.Address, PublicKey: pk, URI: uri}, nil
}

// AccountNextIndex returns the next nonce, including pending pool transactions
func (c *Client) AccountNextIndex(_ context.Context, signer blockchain.Signer) (uint32, error) {
	n, err := c.api.RPC.System.AccountNextIndex(signer.Address)
	if err != nil {
		return 0, fmt.Errorf("failed to get next index of %s: %v", signer.Address, err)
	}
	return uint32(n), nil
}

// SubscribeEvents delivers the decoded events of every finalized block
func (c *Client) SubscribeEvents(ch chan<- []models.Event) event.Subscription {
	return c.feed.Subscribe(ch)
}

// Close stops following blocks and closes the websocket
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.quit)
		c.wg.Wait()
		c.api.Client.Close()
	})
}
