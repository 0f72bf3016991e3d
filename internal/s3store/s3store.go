// Package s3store talks to the public bucket that publishes radar volume scans.
// The bucket allows anonymous reads, so no credentials are ever resolved.
package s3store

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/banshee-data/radarloop/internal/catalog"
	"github.com/banshee-data/radarloop/internal/fsutil"
)

// API is the slice of the S3 client used here; tests substitute a fake.
type API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store lists and fetches objects from a single bucket.
type Store struct {
	api    API
	bucket string
	fs     fsutil.FileSystem
}

// NewAnonymousClient builds an unsigned S3 client for region.
func NewAnonymousClient(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// New wraps api for bucket. Downloads are written through fsys.
func New(api API, bucket string, fsys fsutil.FileSystem) *Store {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &Store{api: api, bucket: bucket, fs: fsys}
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string { return s.bucket }

// List returns every object under prefix. All pages are drained before
// returning; a failure on any page fails the whole listing.
func (s *Store) List(ctx context.Context, prefix string) ([]catalog.Entry, error) {
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var entries []catalog.Entry
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			entries = append(entries, catalog.Entry{
				Name:      aws.ToString(obj.Key),
				SizeBytes: aws.ToInt64(obj.Size),
			})
		}
	}
	return entries, nil
}

// Fetch copies the object at key to dest byte for byte. A failed copy removes
// whatever was written so no truncated scan is left behind.
func (s *Store) Fetch(ctx context.Context, key, dest string) (err error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	w, err := s.fs.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", dest, cerr)
		}
		if err != nil {
			_ = s.fs.Remove(dest)
		}
	}()

	if _, err = io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("copy s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}
