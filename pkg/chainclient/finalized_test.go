package chainclient

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBlocks stores the block number in the first bytes of its hash and emits one
// event per block carrying that number
type fakeBlocks struct {
	failAt map[uint64]bool
	reads  []uint64
}

func (f *fakeBlocks) BlockHash(number uint64) (types.Hash, error) {
	if f.failAt[number] {
		return types.Hash{}, errors.New("rpc unavailable")
	}
	var h types.Hash
	binary.BigEndian.PutUint64(h[:8], number)
	return h, nil
}

func (f *fakeBlocks) BlockEvents(hash types.Hash) ([]models.Event, error) {
	n := binary.BigEndian.Uint64(hash[:8])
	f.reads = append(f.reads, n)
	return []models.Event{{Section: "issue", Method: "ExecuteIssue", Fields: map[string]any{"block": n}}}, nil
}

func newTestCursor(source blockSource) (*finalizedCursor, *[]uint64) {
	published := []uint64{}
	cursor := newFinalizedCursor(source, func(batch []models.Event) {
		published = append(published, batch[0].Fields["block"].(uint64))
	}, "pendulum", &logger.EmptyLogger{})
	return cursor, &published
}

func TestFinalizedCursorWalksGaps(t *testing.T) {
	cursor, published := newTestCursor(&fakeBlocks{})

	require.NoError(t, cursor.advance(100))
	assert.Equal(t, []uint64{100}, *published, "first head seeds the cursor")

	require.NoError(t, cursor.advance(103))
	assert.Equal(t, []uint64{100, 101, 102, 103}, *published)

	require.NoError(t, cursor.advance(103))
	require.NoError(t, cursor.advance(102))
	assert.Len(t, *published, 4, "repeated or older heads publish nothing")
}

func TestFinalizedCursorRetriesFailedBlock(t *testing.T) {
	source := &fakeBlocks{failAt: map[uint64]bool{12: true}}
	cursor, published := newTestCursor(source)

	require.NoError(t, cursor.advance(10))
	assert.Error(t, cursor.advance(13))
	assert.Equal(t, []uint64{10, 11}, *published)
	assert.Equal(t, uint64(11), cursor.lastProcessed)

	source.failAt = nil
	require.NoError(t, cursor.advance(14))
	assert.Equal(t, []uint64{10, 11, 12, 13, 14}, *published)
}

func TestFinalizedCursorBoundsCatchUp(t *testing.T) {
	source := &fakeBlocks{}
	cursor, published := newTestCursor(source)

	require.NoError(t, cursor.advance(1))
	require.NoError(t, cursor.advance(1+maxCatchUp+50))

	assert.Len(t, *published, 1+maxCatchUp)
	assert.Equal(t, uint64(1+maxCatchUp+50), cursor.lastProcessed)
}
