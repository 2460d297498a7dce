package chainclient

import (
	"context"
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/speedrun-hq/spacewalk-tester/pkg/blockchain"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
)

// SubmitAndWatch signs the call with the signer's key and the given nonce,
// submits it and waits until its block is finalized
func (c *Client) SubmitAndWatch(ctx context.Context, call blockchain.Call, signer blockchain.Signer, nonce uint32) (*blockchain.Finalized, error) {
	rt, err := c.runtime.Get()
	if err != nil {
		return nil, err
	}

	kp, err := signature.KeyringPairFromSecret(signer.URI, c.ss58)
	if err != nil {
		return nil, fmt.Errorf("invalid signer secret: %v", err)
	}

	args, err := encodeArgs(call.Args)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", call.Name, err)
	}
	gsCall, err := types.NewCall(rt.meta, call.Name, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s: %v", call.Name, err)
	}

	ext := types.NewExtrinsic(gsCall)
	opts := types.SignatureOptions{
		BlockHash:          rt.genesis,
		Era:                types.ExtrinsicEra{IsMortalEra: false},
		GenesisHash:        rt.genesis,
		Nonce:              types.NewUCompactFromUInt(uint64(nonce)),
		SpecVersion:        rt.version.SpecVersion,
		Tip:                types.NewUCompactFromUInt(0),
		TransactionVersion: rt.version.TransactionVersion,
	}
	if err := ext.Sign(kp, opts); err != nil {
		return nil, fmt.Errorf("failed to sign %s: %v", call.Name, err)
	}

	sub, err := c.api.RPC.Author.SubmitAndWatchExtrinsic(ext)
	if err != nil {
		// a runtime upgrade invalidates the cached spec version
		if blockchain.IsBadSignature(err) {
			c.runtime.Invalidate()
		}
		return nil, err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case status := <-sub.Chan():
			switch {
			case status.IsInBlock:
				c.logger.DebugWithNetwork(c.network.Name, "%s from %s included in block %s", call.Name, signer.Address, status.AsInBlock.Hex())
			case status.IsFinalized:
				return c.finalized(rt.meta, status.AsFinalized, ext)
			case status.IsDropped, status.IsInvalid, status.IsUsurped, status.IsFinalityTimeout:
				return nil, fmt.Errorf("%s from %s was not finalized: %s", call.Name, signer.Address, statusName(status))
			}
		case err := <-sub.Err():
			return nil, err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func statusName(s types.ExtrinsicStatus) string {
	switch {
	case s.IsDropped:
		return "dropped"
	case s.IsInvalid:
		return "invalid"
	case s.IsUsurped:
		return "usurped"
	case s.IsFinalityTimeout:
		return "finality timeout"
	}
	return "unknown"
}

// finalized collects the events of the submitted extrinsic from its block
func (c *Client) finalized(meta *types.Metadata, blockHash types.Hash, ext types.Extrinsic) (*blockchain.Finalized, error) {
	block, err := c.api.RPC.Chain.GetBlock(blockHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get finalized block %s: %v", blockHash.Hex(), err)
	}

	want, err := codec.EncodeToHex(ext)
	if err != nil {
		return nil, err
	}
	index := -1
	for i, candidate := range block.Block.Extrinsics {
		got, err := codec.EncodeToHex(candidate)
		if err == nil && got == want {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, fmt.Errorf("extrinsic not found in finalized block %s", blockHash.Hex())
	}

	raw, err := c.events.GetEvents(blockHash)
	if err != nil {
		return nil, fmt.Errorf("failed to decode events of block %s: %v", blockHash.Hex(), err)
	}

	result := &blockchain.Finalized{BlockHash: models.Hash(blockHash)}
	for _, ev := range extrinsicEvents(raw, uint32(index)) {
		decoded := toEvent(ev)
		result.Events = append(result.Events, decoded)
		if models.NormalizeName(decoded.Section) == "system" && models.NormalizeName(decoded.Method) == "extrinsicfailed" {
			result.DispatchError = dispatchError(meta, decoded)
		}
	}
	return result, nil
}
