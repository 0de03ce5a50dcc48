package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// DeleteObjects accepts at most this many keys per request.
const maxDeleteBatch = 1000

// Reader lists, restores and prunes snapshot archives.
type Reader struct {
	client *s3.Client
	bucket string
}

// NewReader reads from the client's bucket.
func NewReader(c *Client) *Reader {
	return &Reader{client: c.S3(), bucket: c.Bucket()}
}

// Get opens the archive at key together with the metadata it was uploaded
// with. The caller closes the body. A missing key yields domain.ErrNotFound.
func (r *Reader) Get(ctx context.Context, key string) (io.ReadCloser, domain.ObjectMeta, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ObjectMeta{}, fmt.Errorf("s3blob: get %s: %w", key, domain.ErrNotFound)
		}
		return nil, domain.ObjectMeta{}, fmt.Errorf("s3blob: get %s: %w", key, err)
	}
	return out.Body, decodeMeta(out.ContentType, out.ContentEncoding, out.Metadata), nil
}

// List returns the archives under prefix sorted by key. Archive keys embed
// the date and upload time, so key order is chronological per device.
// Folder placeholder keys ending in "/" are skipped.
func (r *Reader) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	pages := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			info := domain.BlobInfo{Path: key, Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

// Delete removes keys in batches of DeleteObjects requests. It stops at the
// first batch that reports a per-key failure.
func (r *Reader) Delete(ctx context.Context, keys ...string) (int, error) {
	removed := 0
	for start := 0; start < len(keys); start += maxDeleteBatch {
		batch := keys[start:min(start+maxDeleteBatch, len(keys))]
		ids := make([]types.ObjectIdentifier, len(batch))
		for i, k := range batch {
			ids[i] = types.ObjectIdentifier{Key: aws.String(k)}
		}
		out, err := r.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(r.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return removed, fmt.Errorf("s3blob: delete %d archives: %w", len(batch), err)
		}
		removed += len(batch) - len(out.Errors)
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return removed, fmt.Errorf("s3blob: delete %s: %s: %s",
				aws.ToString(first.Key), aws.ToString(first.Code), aws.ToString(first.Message))
		}
	}
	return removed, nil
}

// isNotFound matches NoSuchKey, the generic NotFound HEAD error, and plain
// 404 responses from S3-compatible providers.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound
}

var _ domain.BlobReader = (*Reader)(nil)
