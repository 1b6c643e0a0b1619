package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

const zstdContentType = "application/zstd"

// ZstdBlobs stores small blobs zstd-compressed in a single bucket.
type ZstdBlobs struct {
	store  ObjectStorage
	bucket string
	enc    *zstd.Encoder
	dec    *zstd.Decoder
}

func NewZstdBlobs(store ObjectStorage, bucket string) (*ZstdBlobs, error) {
	if store == nil {
		return nil, fmt.Errorf("object storage is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder failed: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder failed: %w", err)
	}
	return &ZstdBlobs{store: store, bucket: bucket, enc: enc, dec: dec}, nil
}

// Put compresses data and uploads it under key.
func (z *ZstdBlobs) Put(ctx context.Context, key string, data []byte) error {
	compressed := z.enc.EncodeAll(data, make([]byte, 0, len(data)/2))
	return z.store.PutObject(ctx, z.bucket, key, bytes.NewReader(compressed), int64(len(compressed)), zstdContentType)
}

// Get downloads and decompresses the blob under key.
func (z *ZstdBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	rc, err := z.store.GetObject(ctx, z.bucket, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	compressed, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read object failed: %w", err)
	}
	data, err := z.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode failed: %w", err)
	}
	return data, nil
}
