package s3blob

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/simlink/internal/domain"
)

type captured struct {
	in   *s3.PutObjectInput
	body []byte
}

type fakePutter struct {
	calls []captured
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(in.Body)
	f.calls = append(f.calls, captured{in: in, body: body})
	return &s3.PutObjectOutput{}, f.err
}

type fakeUploader struct {
	calls []captured
}

func (f *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	body, _ := io.ReadAll(in.Body)
	f.calls = append(f.calls, captured{in: in, body: body})
	return &manager.UploadOutput{}, nil
}

func TestWriterCarriesMetaOnBothPaths(t *testing.T) {
	single, multi := &fakePutter{}, &fakeUploader{}
	w := &Writer{bucket: "archive", single: single, multi: multi, threshold: 16}
	at := time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC)
	meta := domain.ObjectMeta{
		ContentType:     "application/json",
		ContentEncoding: "gzip",
		DeviceID:        "dev-1",
		Sequence:        42,
		CapturedAt:      at,
	}
	ctx := context.Background()

	require.NoError(t, w.Upload(ctx, "small.json.gz", []byte("tiny"), meta))
	require.NoError(t, w.Upload(ctx, "large.json.gz", make([]byte, 16), meta))
	require.Len(t, single.calls, 1)
	require.Len(t, multi.calls, 1, "bodies at the threshold go multipart")

	wantMeta := map[string]string{"device-id": "dev-1", "sequence": "42", "captured-at": "2026-03-04T05:06:07.000000008Z"}
	for _, c := range []captured{single.calls[0], multi.calls[0]} {
		key := aws.ToString(c.in.Key)
		assert.Equal(t, "archive", aws.ToString(c.in.Bucket), key)
		assert.Equal(t, "application/json", aws.ToString(c.in.ContentType), key)
		assert.Equal(t, "gzip", aws.ToString(c.in.ContentEncoding), key)
		assert.Equal(t, wantMeta, c.in.Metadata, key)
		assert.Equal(t, int64(len(c.body)), aws.ToInt64(c.in.ContentLength), key)
	}
	assert.Equal(t, []byte("tiny"), single.calls[0].body)

	got := decodeMeta(single.calls[0].in.ContentType, single.calls[0].in.ContentEncoding, single.calls[0].in.Metadata)
	assert.Equal(t, meta, got)
}

func TestWriterWrapsUploadError(t *testing.T) {
	w := &Writer{bucket: "b", single: &fakePutter{err: errors.New("denied")}, multi: &fakeUploader{}, threshold: 1 << 20}
	err := w.Upload(context.Background(), "k", []byte("x"), domain.ObjectMeta{Sequence: 7})
	assert.ErrorContains(t, err, "upload k (seq 7): denied")
}

func TestWithScheme(t *testing.T) {
	assert.Equal(t, "http://minio:9000", withScheme("minio:9000", false))
	assert.Equal(t, "https://r2.example.com", withScheme("r2.example.com", true))
	assert.Equal(t, "http://localhost:9000", withScheme("http://localhost:9000", true))
}
