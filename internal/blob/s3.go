package blob

import (
	"context"

	infraS3 "inmoelegance/internal/infra/blob/s3"
)

// S3Config re-exports the S3 driver configuration.
type S3Config = infraS3.Config

// NewS3 constructs an S3-backed Store from cfg.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3 returns an S3 store wired to an in-process fake endpoint.
func NewMockS3() Store { return infraS3.NewMock() }
