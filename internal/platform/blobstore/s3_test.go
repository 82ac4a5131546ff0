package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	getErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	k := *in.Bucket + "/" + *in.Key
	f.objects[k] = data
	f.types[k] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_PutThenGet(t *testing.T) {
	fake := newFakeS3()
	store := NewS3Store(fake, "media", "assets/")
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "logo.png", "image/png", []byte{0x89, 'P', 'N', 'G'}))
	assert.Equal(t, "image/png", fake.types["media/assets/logo.png"])

	got, err := store.Get(ctx, "logo.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, got)
}

func TestS3Store_GetMissingKey(t *testing.T) {
	store := NewS3Store(newFakeS3(), "media", "")

	_, err := store.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3Store_GetWrapsClientErrors(t *testing.T) {
	fake := newFakeS3()
	fake.getErr = errors.New("access denied")
	store := NewS3Store(fake, "media", "")

	_, err := store.Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "access denied")
}
