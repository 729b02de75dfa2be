// Package blobtest provides blob stores for tests outside the blob tree.
package blobtest

import (
	"chebi2gene/internal/blob"
	s3store "chebi2gene/internal/infra/blob/s3"
)

// NewS3 returns an S3 store backed by an in-process fake bucket, together
// with the bucket so callers can inspect the requests it served.
func NewS3(bucket string) (blob.Store, *s3store.MockBucket) {
	return s3store.NewMock(bucket)
}
