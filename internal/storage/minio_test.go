package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sclint/support-desk/internal/clock"
	"github.com/sclint/support-desk/internal/config"
	"github.com/sclint/support-desk/internal/service"
)

type fakePutter struct {
	bucket, key string
	size        int64
	opts        minio.PutObjectOptions
	body        string
	err         error
	removed     []string
}

func (f *fakePutter) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	data, _ := io.ReadAll(r)
	f.bucket, f.key, f.size, f.opts, f.body = bucket, key, size, opts, string(data)
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: int64(len(data))}, nil
}

func (f *fakePutter) RemoveObject(_ context.Context, bucket, key string, _ minio.RemoveObjectOptions) error {
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, bucket+"/"+key)
	return nil
}

func TestMinioStoreStore(t *testing.T) {
	putter := &fakePutter{}
	cfg := config.StorageConfig{Endpoint: "s3.local:9000", Bucket: "desk", BaseFolder: "/tickets/", UseSSL: true}
	store := newMinioStore(putter, cfg, clock.NewFake(time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)))

	url, err := store.Store(context.Background(), service.Upload{
		FileName:    "screen shot.PNG",
		ContentType: "image/png",
		Size:        5,
		Body:        strings.NewReader("hello"),
	})
	require.NoError(t, err)

	assert.Equal(t, "desk", putter.bucket)
	assert.True(t, strings.HasPrefix(putter.key, "tickets/2024/03/"), putter.key)
	assert.True(t, strings.HasSuffix(putter.key, ".png"), putter.key)
	assert.Equal(t, int64(5), putter.size)
	assert.Equal(t, "image/png", putter.opts.ContentType)
	assert.Equal(t, "hello", putter.body)
	assert.Equal(t, "https://s3.local:9000/desk/"+putter.key, url)
}

func TestMinioStorePublicBaseURLAndFailure(t *testing.T) {
	putter := &fakePutter{}
	cfg := config.StorageConfig{Endpoint: "s3.local:9000", Bucket: "desk", PublicBaseURL: "https://cdn.example.com/"}
	store := newMinioStore(putter, cfg, clock.NewFake(time.Now()))

	url, err := store.Store(context.Background(), service.Upload{FileName: "a", Body: strings.NewReader("x")})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://cdn.example.com/"), url)
	assert.Equal(t, int64(-1), putter.size)
	assert.Equal(t, "application/octet-stream", putter.opts.ContentType)

	putter.err = errors.New("bucket gone")
	_, err = store.Store(context.Background(), service.Upload{FileName: "a", Body: strings.NewReader("x")})
	assert.ErrorContains(t, err, "bucket gone")
}

func TestMinioStoreRemove(t *testing.T) {
	putter := &fakePutter{}
	cfg := config.StorageConfig{Endpoint: "s3.local:9000", Bucket: "desk", BaseFolder: "tickets"}
	store := newMinioStore(putter, cfg, clock.NewFake(time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)))

	url, err := store.Store(context.Background(), service.Upload{FileName: "log.txt", Body: strings.NewReader("x")})
	require.NoError(t, err)
	require.NoError(t, store.Remove(context.Background(), url))
	assert.Equal(t, []string{"desk/" + putter.key}, putter.removed)

	assert.Error(t, store.Remove(context.Background(), "https://elsewhere.example.com/x.png"))

	putter.err = errors.New("bucket gone")
	assert.ErrorContains(t, store.Remove(context.Background(), url), "bucket gone")
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".pdf", extension("report.PDF"))
	assert.Equal(t, "", extension("noext"))
	assert.Equal(t, "", extension("weird.p$f"))
}
