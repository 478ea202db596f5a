package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.PutObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestS3UploaderPutsObject(t *testing.T) {
	client := new(mockS3)
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		body, _ := io.ReadAll(in.Body)
		return *in.Bucket == "qr-images" &&
			strings.HasPrefix(*in.Key, "bundles/BND-000001/") &&
			strings.HasSuffix(*in.Key, ".png") &&
			*in.ContentType == "image/png" &&
			string(body) == "png-bytes"
	})).Return(&s3.PutObjectOutput{}, nil)

	u := &S3Uploader{client: client, bucket: "qr-images", publicBaseURL: "https://cdn.example"}
	url, err := u.Upload(context.Background(), []byte("png-bytes"), "bundles/BND-000001", "image")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://cdn.example/bundles/BND-000001/"))
	client.AssertExpectations(t)
}

func TestS3UploaderWrapsError(t *testing.T) {
	client := new(mockS3)
	client.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

	u := &S3Uploader{client: client, bucket: "qr-images", publicBaseURL: "https://cdn.example"}
	_, err := u.Upload(context.Background(), []byte("x"), "bundles", "image")
	assert.ErrorContains(t, err, "access denied")
}

func TestLocalUploaderWritesFile(t *testing.T) {
	dir := t.TempDir()
	u := &LocalUploader{Dir: dir, BaseURL: "http://localhost:8080/uploads"}

	url, err := u.Upload(context.Background(), []byte("png-bytes"), "/bundles/BND-000002/", "image")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "http://localhost:8080/uploads/bundles/BND-000002/"))

	key := strings.TrimPrefix(url, "http://localhost:8080/uploads/")
	data, err := os.ReadFile(dir + "/" + key)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestObjectKeyHelpers(t *testing.T) {
	assert.True(t, strings.HasSuffix(objectKey("", "pdf"), ".pdf"))
	assert.Equal(t, "application/octet-stream", contentType("raw"))
}
