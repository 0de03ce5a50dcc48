package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// S3 rejects multipart parts under 5 MiB.
const minPartSize int64 = 5 << 20

// User metadata keys. S3 lowercases them and adds the x-amz-meta- prefix.
const (
	metaDeviceID   = "device-id"
	metaSequence   = "sequence"
	metaCapturedAt = "captured-at"
)

// WriterOptions tunes how snapshot archives are uploaded.
type WriterOptions struct {
	// MultipartThreshold is the body size from which uploads go through
	// the multipart manager.
	MultipartThreshold int64
	PartSize           int64
	Concurrency        int
}

// DefaultWriterOptions suits snapshots of a few MiB.
func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		MultipartThreshold: 8 << 20,
		PartSize:           minPartSize,
		Concurrency:        manager.DefaultUploadConcurrency,
	}
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type multipartUploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Writer uploads snapshot archives. Small archives use one PutObject call;
// archives at or above the threshold are split by the multipart manager.
// Both paths send the same headers and metadata.
type Writer struct {
	bucket    string
	single    objectPutter
	multi     multipartUploader
	threshold int64
}

// NewWriter uploads into the client's bucket. Zero option fields take their
// defaults.
func NewWriter(c *Client, opts WriterOptions) *Writer {
	def := DefaultWriterOptions()
	if opts.MultipartThreshold <= 0 {
		opts.MultipartThreshold = def.MultipartThreshold
	}
	if opts.PartSize < minPartSize {
		opts.PartSize = minPartSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	return &Writer{
		bucket: c.Bucket(),
		single: c.S3(),
		multi: manager.NewUploader(c.S3(), func(u *manager.Uploader) {
			u.PartSize = opts.PartSize
			u.Concurrency = opts.Concurrency
		}),
		threshold: opts.MultipartThreshold,
	}
}

// Upload stores body at key with meta.
func (w *Writer) Upload(ctx context.Context, key string, body []byte, meta domain.ObjectMeta) error {
	in := w.objectInput(key, body, meta)
	var err error
	if int64(len(body)) >= w.threshold {
		_, err = w.multi.Upload(ctx, in)
	} else {
		_, err = w.single.PutObject(ctx, in)
	}
	if err != nil {
		return fmt.Errorf("s3blob: upload %s (seq %d): %w", key, meta.Sequence, err)
	}
	return nil
}

func (w *Writer) objectInput(key string, body []byte, meta domain.ObjectMeta) *s3.PutObjectInput {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(w.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata:      encodeMeta(meta),
	}
	if meta.ContentType != "" {
		in.ContentType = aws.String(meta.ContentType)
	}
	if meta.ContentEncoding != "" {
		in.ContentEncoding = aws.String(meta.ContentEncoding)
	}
	return in
}

func encodeMeta(m domain.ObjectMeta) map[string]string {
	out := map[string]string{metaSequence: strconv.FormatUint(m.Sequence, 10)}
	if m.DeviceID != "" {
		out[metaDeviceID] = m.DeviceID
	}
	if !m.CapturedAt.IsZero() {
		out[metaCapturedAt] = m.CapturedAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// decodeMeta rebuilds ObjectMeta from a GetObject response. Unparseable
// values are left zero.
func decodeMeta(contentType, contentEncoding *string, md map[string]string) domain.ObjectMeta {
	m := domain.ObjectMeta{
		ContentType:     aws.ToString(contentType),
		ContentEncoding: aws.ToString(contentEncoding),
		DeviceID:        md[metaDeviceID],
	}
	if v, err := strconv.ParseUint(md[metaSequence], 10, 64); err == nil {
		m.Sequence = v
	}
	if v, err := time.Parse(time.RFC3339Nano, md[metaCapturedAt]); err == nil {
		m.CapturedAt = v
	}
	return m
}

var _ domain.BlobWriter = (*Writer)(nil)
