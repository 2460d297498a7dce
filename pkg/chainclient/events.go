package chainclient

import (
	"fmt"
	"time"

	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/parser"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/speedrun-hq/spacewalk-tester/pkg/blockchain"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
)

const resubscribeDelay = 5 * time.Second

// followFinalized publishes the events of every finalized block, resubscribing
// when the head subscription drops. The cursor survives resubscribes, so
// blocks finalized while the subscription was down are read on the next head.
func (c *Client) followFinalized() {
	defer c.wg.Done()

	for {
		err := c.streamFinalized()
		if err == nil {
			return
		}
		c.logger.ErrorWithNetwork(c.network.Name, "Finalized head subscription failed: %v", err)

		select {
		case <-time.After(resubscribeDelay):
		case <-c.quit:
			return
		}
	}
}

// streamFinalized returns nil only when the client is closed
func (c *Client) streamFinalized() error {
	sub, err := c.api.RPC.Chain.SubscribeFinalizedHeads()
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case head := <-sub.Chan():
			if err := c.cursor.advance(uint64(head.Number)); err != nil {
				c.logger.ErrorWithNetwork(c.network.Name, "Failed to read finalized blocks: %v", err)
			}
		case err := <-sub.Err():
			if err == nil {
				err = fmt.Errorf("subscription closed")
			}
			return err
		case <-c.quit:
			return nil
		}
	}
}

// extrinsicEvents returns the events emitted by the extrinsic at index
func extrinsicEvents(raw []*parser.Event, index uint32) []*parser.Event {
	var out []*parser.Event
	for _, ev := range raw {
		if ev.Phase != nil && ev.Phase.IsApplyExtrinsic && ev.Phase.AsApplyExtrinsic == index {
			out = append(out, ev)
		}
	}
	return out
}

// dispatchError reads the dispatch_error field of a System.ExtrinsicFailed event
func dispatchError(meta *types.Metadata, failed models.Event) *blockchain.DispatchError {
	raw, ok := failed.Field("dispatch_error")
	if !ok {
		return &blockchain.DispatchError{Other: "Unknown"}
	}

	switch v := raw.(type) {
	case string:
		return &blockchain.DispatchError{Other: v}
	case map[string]any:
		fields, _ := models.ToMap(v)
		if module, ok := fields["module"]; ok {
			section, method := moduleError(meta, module)
			return &blockchain.DispatchError{Module: &blockchain.ModuleError{Section: section, Method: method}}
		}
		for name := range v {
			return &blockchain.DispatchError{Other: name}
		}
	}
	return &blockchain.DispatchError{Other: fmt.Sprint(raw)}
}

// moduleError resolves {index, error} to pallet and error names using the
// V14 metadata type registry
func moduleError(meta *types.Metadata, module any) (string, string) {
	fields, ok := models.ToMap(module)
	if !ok {
		return "Unknown", "Unknown"
	}
	palletIndex, err := models.ToBigInt(fields["index"])
	if err != nil {
		return "Unknown", "Unknown"
	}

	var errorIndex uint64
	if b, err := models.ToBytes(fields["error"]); err == nil && len(b) > 0 {
		errorIndex = uint64(b[0])
	} else if n, err := models.ToBigInt(fields["error"]); err == nil {
		errorIndex = n.Uint64()
	}

	if meta == nil || meta.Version < 14 {
		return fmt.Sprintf("Pallet%d", palletIndex.Uint64()), fmt.Sprintf("Error%d", errorIndex)
	}

	for _, pallet := range meta.AsMetadataV14.Pallets {
		if uint64(pallet.Index) != palletIndex.Uint64() {
			continue
		}
		section := string(pallet.Name)
		if !pallet.HasErrors {
			return section, "Unknown"
		}
		def, ok := meta.AsMetadataV14.EfficientLookup[pallet.Errors.Type.Int64()]
		if !ok || !def.Def.IsVariant {
			return section, "Unknown"
		}
		for _, variant := range def.Def.Variant.Variants {
			if uint64(variant.Index) == errorIndex {
				return section, string(variant.Name)
			}
		}
		return section, "Unknown"
	}
	return "Unknown", "Unknown"
}
