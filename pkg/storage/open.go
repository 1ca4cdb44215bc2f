package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Drivers accepted by Open.
const (
	DriverS3    = "s3"
	DriverLocal = "local"
)

// Options selects and configures a blob store.
type Options struct {
	Driver       string
	LocalRoot    string
	LocalBaseURL string
	S3           S3Config
}

// Open builds the configured store. dir is the directory to serve under /uploads for the
// local driver, empty otherwise.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (store BlobStore, dir string, err error) {
	switch opts.Driver {
	case DriverLocal:
		local, err := NewLocal(opts.LocalRoot, opts.LocalBaseURL, logger)
		if err != nil {
			return nil, "", err
		}
		return local, local.Dir(), nil
	case DriverS3, "":
		s3Store, err := NewS3(ctx, opts.S3, logger)
		if err != nil {
			return nil, "", err
		}
		return s3Store, "", nil
	}
	return nil, "", fmt.Errorf("unknown storage driver %q", opts.Driver)
}
