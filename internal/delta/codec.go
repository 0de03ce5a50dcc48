package delta

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/alanyoungcy/simlink/internal/domain"
)

// maxDecodedSize bounds a single decompressed payload.
const maxDecodedSize = 64 << 20

// Supported algorithm tags.
const (
	AlgGzip    = "gzip"
	AlgDeflate = "deflate"
	AlgZstd    = "zstd"
	AlgSnappy  = "snappy"
	AlgLZ4     = "lz4"
)

// compressedEnvelope is the shape of data when a frame is flagged compressed.
type compressedEnvelope struct {
	Algorithm string `json:"algorithm"`
	Payload   string `json:"payload"`
}

type codec struct {
	decode func([]byte) ([]byte, error)
	encode func([]byte) ([]byte, error)
}

var codecs = map[string]codec{
	AlgGzip:    {decode: gunzip, encode: gzipBytes},
	AlgDeflate: {decode: inflate, encode: deflateBytes},
	AlgZstd:    {decode: unzstd, encode: zstdBytes},
	AlgSnappy:  {decode: unsnappy, encode: snappyBytes},
	AlgLZ4:     {decode: unlz4, encode: lz4Bytes},
}

// Algorithms lists the supported compression tags.
func Algorithms() []string {
	out := make([]string, 0, len(codecs))
	for k := range codecs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Decompress unwraps a compressed data envelope into the raw JSON it carries.
func Decompress(raw json.RawMessage) ([]byte, error) {
	var env compressedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("delta: compressed envelope: %w", domain.ErrDecompress)
	}
	c, ok := codecs[env.Algorithm]
	if !ok {
		return nil, fmt.Errorf("delta: algorithm %q: %w", env.Algorithm, domain.ErrUnknownCodec)
	}
	blob, err := base64.StdEncoding.DecodeString(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("delta: base64: %v: %w", err, domain.ErrDecompress)
	}
	out, err := c.decode(blob)
	if err != nil {
		return nil, fmt.Errorf("delta: %s: %v: %w", env.Algorithm, err, domain.ErrDecompress)
	}
	return out, nil
}

// Compress builds a compressed data envelope. It is the inverse of Decompress.
func Compress(algorithm string, plain []byte) (json.RawMessage, error) {
	c, ok := codecs[algorithm]
	if !ok {
		return nil, fmt.Errorf("delta: algorithm %q: %w", algorithm, domain.ErrUnknownCodec)
	}
	blob, err := c.encode(plain)
	if err != nil {
		return nil, fmt.Errorf("delta: %s encode: %w", algorithm, err)
	}
	return json.Marshal(compressedEnvelope{
		Algorithm: algorithm,
		Payload:   base64.StdEncoding.EncodeToString(blob),
	})
}

func readLimited(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, maxDecodedSize+1))
	if err != nil {
		return nil, err
	}
	if len(out) > maxDecodedSize {
		return nil, fmt.Errorf("payload exceeds %d bytes", maxDecodedSize)
	}
	return out, nil
}

func gunzip(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return readLimited(zr)
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return readLimited(zr)
}

func deflateBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var (
	zstdOnce sync.Once
	zstdDec  *zstd.Decoder
	zstdEnc  *zstd.Encoder
	zstdErr  error
)

func zstdCodec() (*zstd.Decoder, *zstd.Encoder, error) {
	zstdOnce.Do(func() {
		zstdDec, zstdErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
		if zstdErr != nil {
			return
		}
		zstdEnc, zstdErr = zstd.NewWriter(nil)
	})
	return zstdDec, zstdEnc, zstdErr
}

func unzstd(b []byte) ([]byte, error) {
	dec, _, err := zstdCodec()
	if err != nil {
		return nil, err
	}
	return dec.DecodeAll(b, nil)
}

func zstdBytes(b []byte) ([]byte, error) {
	_, enc, err := zstdCodec()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(b, nil), nil
}

func unsnappy(b []byte) ([]byte, error) {
	n, err := snappy.DecodedLen(b)
	if err != nil {
		return nil, err
	}
	if n > maxDecodedSize {
		return nil, fmt.Errorf("payload exceeds %d bytes", maxDecodedSize)
	}
	return snappy.Decode(nil, b)
}

func snappyBytes(b []byte) ([]byte, error) {
	return snappy.Encode(nil, b), nil
}

func unlz4(b []byte) ([]byte, error) {
	return readLimited(lz4.NewReader(bytes.NewReader(b)))
}

func lz4Bytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
