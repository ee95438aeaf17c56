package erc4337

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LogFilterer is the minimal chain-read surface the log-replay helpers need:
// current block height and a bounded eth_getLogs scan.
type LogFilterer interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, address common.Address, fromBlock *big.Int) ([]Log, error)
}

// CalculateFromBlock bounds a log scan to the last MaxBlockRange blocks,
// saturating at zero so a chain shorter than the range never underflows.
func CalculateFromBlock(currentBlock uint64) uint64 {
	if currentBlock < MaxBlockRange {
		return 0
	}
	return currentBlock - MaxBlockRange
}

// FetchBoundedLogs reads every log emitted by address over the last
// MaxBlockRange blocks, the shared scan every session/guardian state
// reconstruction starts from.
func FetchBoundedLogs(ctx context.Context, reader LogFilterer, address common.Address) ([]Log, error) {
	current, err := reader.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	fromBlock := new(big.Int).SetUint64(CalculateFromBlock(current))
	return reader.FilterLogs(ctx, address, fromBlock)
}

// ParseAddRemoveEvents replays a bounded log window into a set of currently
// "added" items, using two topic0 hashes to recognize add/remove events and
// caller-supplied extractors to turn a matching log into an item or a removal
// key. It does not itself compute a final add-minus-remove result: callers
// that need that (active sessions, guardian lists) combine the two returned
// collections however their item/key relationship requires.
func ParseAddRemoveEvents[AddItem any, RemoveKey comparable](
	logs []Log,
	addTopic, removeTopic common.Hash,
	extractAdd func(Log) (AddItem, bool),
	extractRemove func(Log) (RemoveKey, bool),
) (added []AddItem, removed map[RemoveKey]struct{}) {
	removed = make(map[RemoveKey]struct{})

	for _, log := range logs {
		if len(log.Topics) == 0 {
			continue
		}
		switch log.Topics[0] {
		case addTopic:
			if item, ok := extractAdd(log); ok {
				added = append(added, item)
			}
		case removeTopic:
			if key, ok := extractRemove(log); ok {
				removed[key] = struct{}{}
			}
		}
	}

	return added, removed
}
