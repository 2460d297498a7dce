package chainclient

import (
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
)

// maxCatchUp bounds how many blocks are walked after a long outage. Older
// confirmations would have timed out their waiters anyway.
const maxCatchUp = 1000

// blockSource reads finalized blocks by number
type blockSource interface {
	BlockHash(number uint64) (types.Hash, error)
	BlockEvents(hash types.Hash) ([]models.Event, error)
}

// finalizedCursor turns finalized head notifications into one event batch per
// block. A single notification can finalize several blocks at once, so every
// block since the last published one is read in order.
type finalizedCursor struct {
	source  blockSource
	publish func([]models.Event)
	network string
	logger  logger.Logger

	started       bool
	lastProcessed uint64
}

func newFinalizedCursor(source blockSource, publish func([]models.Event), network string, log logger.Logger) *finalizedCursor {
	return &finalizedCursor{source: source, publish: publish, network: network, logger: log}
}

// advance publishes every block up to and including head. On error the
// cursor stays on the last published block so the next head retries it.
func (f *finalizedCursor) advance(head uint64) error {
	from := head
	if f.started {
		if head <= f.lastProcessed {
			return nil
		}
		from = f.lastProcessed + 1
	}
	if head-from >= maxCatchUp {
		f.logger.ErrorWithNetwork(f.network, "Skipping finalized blocks %d to %d", from, head-maxCatchUp)
		from = head - maxCatchUp + 1
	}

	for n := from; n <= head; n++ {
		hash, err := f.source.BlockHash(n)
		if err != nil {
			return fmt.Errorf("failed to get hash of block %d: %v", n, err)
		}
		batch, err := f.source.BlockEvents(hash)
		if err != nil {
			return fmt.Errorf("failed to decode events of block %d: %v", n, err)
		}
		f.publish(batch)
		f.started = true
		f.lastProcessed = n
	}
	return nil
}

// BlockHash returns the hash of a block by number
func (c *Client) BlockHash(number uint64) (types.Hash, error) {
	return c.api.RPC.Chain.GetBlockHash(number)
}

// BlockEvents decodes the events of a block
func (c *Client) BlockEvents(hash types.Hash) ([]models.Event, error) {
	raw, err := c.events.GetEvents(hash)
	if err != nil {
		return nil, err
	}
	batch := make([]models.Event, 0, len(raw))
	for _, ev := range raw {
		batch = append(batch, toEvent(ev))
	}
	return batch, nil
}
