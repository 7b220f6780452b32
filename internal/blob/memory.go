package blob

import (
	memorystore "freshcore/internal/infra/blob/memory"
)

// NewMemory returns a process-local store. Contents vanish with the process.
func NewMemory() Store { return memorystore.New() }
