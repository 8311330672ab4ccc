package recordstore

import (
	"fmt"

	"github.com/fystack/lotto-indexer/pkg/common/constant"
	"github.com/fystack/lotto-indexer/pkg/common/types"
)

func gamePrefix(game string) string {
	return fmt.Sprintf("%s/%s/", constant.KVPrefixCombo, game)
}

func recordPrefix(game string) string {
	return fmt.Sprintf("%s/%s/%s/", constant.KVPrefixCombo, game, constant.KVPrefixRecord)
}

func recordKey(game string, c types.Combination) string {
	return recordPrefix(game) + c.Key()
}

func sigPrefix(game string, sig types.Signature) string {
	return fmt.Sprintf("%s/%s/%s/%s/", constant.KVPrefixCombo, game, constant.KVPrefixSig, sig.Key())
}

func sigIndexKey(game string, sig types.Signature, c types.Combination) string {
	return sigPrefix(game, sig) + c.Key()
}

func bucketPrefix(game string) string {
	return fmt.Sprintf("%s/%s/%s/", constant.KVPrefixCombo, game, constant.KVPrefixBucket)
}

func bucketKey(game string, sig types.Signature) string {
	return bucketPrefix(game) + sig.Key()
}

func cursorKey(game string) string {
	return fmt.Sprintf("%s/%s/%s", constant.KVPrefixCombo, game, constant.KVPrefixCursor)
}

func seqKey(game string) string {
	return fmt.Sprintf("%s/%s/%s", constant.KVPrefixCombo, game, constant.KVPrefixSeq)
}
