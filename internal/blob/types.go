// Package blob is the entry point to blob storage. Callers depend on Store and
// Open; the drivers under internal/infra/blob stay private to this package.
package blob

import (
	"freshcore/internal/blob/core"
)

type (
	Driver     = core.Driver
	PutOptions = core.PutOptions
	Info       = core.Info
	Store      = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// ErrNotFound is wrapped by every driver for a missing key.
var ErrNotFound = core.ErrNotFound
