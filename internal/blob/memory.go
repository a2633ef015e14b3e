package blob

import (
	memorystore "inmoelegance/internal/infra/blob/memory"
)

// NewMemory returns an in-memory Store.
func NewMemory(urlPrefix string) Store { return memorystore.New(urlPrefix) }
