package index

import (
	"fmt"

	"github.com/google/uuid"
)

// fragmentNamespace 派生 Fragment ID 的固定命名空间，修改会导致全部 ID 变化
var fragmentNamespace = uuid.MustParse("4f1c7a52-9d3e-5b8a-a6e2-31c0d9b7e845")

// FragmentID 由自然键派生稳定的 UUIDv5：相同键总是得到相同 ID
func FragmentID(naturalKey string) string {
	return uuid.NewSHA1(fragmentNamespace, []byte(naturalKey)).String()
}

// ArticleKey 文章分块的自然键
func ArticleKey(documentID string, part int) string {
	return fmt.Sprintf("%s_part%d", documentID, part)
}

// NewsItemKey 周报条目的自然键
func NewsItemKey(editionID, itemID string) string {
	return editionID + "_" + itemID
}
