package vectorindex

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// Key identifies one document's index.
type Key struct {
	UserID     uint
	DocumentID uint
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.UserID, k.DocumentID)
}

func (k Key) dir(root string) string {
	return filepath.Join(root, strconv.FormatUint(uint64(k.UserID), 10), strconv.FormatUint(uint64(k.DocumentID), 10))
}

func (k Key) path(root string) string {
	return filepath.Join(k.dir(root), indexFileName)
}
