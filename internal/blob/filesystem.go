package blob

import (
	"inmoelegance/internal/infra/blob/fs"
)

// NewFilesystem constructs a filesystem-backed Store rooted at root.
func NewFilesystem(root, urlPrefix string) (Store, error) {
	return fs.New(root, urlPrefix)
}
