package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/ragsync/internal/domain"
)

type MockObjectAPI struct {
	mock.Mock
}

func (m *MockObjectAPI) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.ListObjectsV2Output), args.Error(1)
}

func (m *MockObjectAPI) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func object(key string, size int64, modified time.Time) types.Object {
	return types.Object{Key: aws.String(key), Size: aws.Int64(size), LastModified: aws.Time(modified)}
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri, bucket, prefix string
		wantErr             bool
	}{
		{"s3://docs", "docs", "", false},
		{"s3://docs/", "docs", "", false},
		{"s3://docs/handbook/2025", "docs", "handbook/2025", false},
		{"s3:///x", "", "", true},
		{"/local/path", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, prefix, err := ParseURI(tt.uri)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.prefix, prefix)
		})
	}
	assert.True(t, IsURI("s3://a"))
	assert.False(t, IsURI("./docs"))
}

func TestS3Source_List_Paginates(t *testing.T) {
	ctx := context.Background()
	api := new(MockObjectAPI)
	mod := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	api.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.Bucket) == "docs" && aws.ToString(in.Prefix) == "team/" && in.ContinuationToken == nil
	})).Return(&s3.ListObjectsV2Output{
		Contents:              []types.Object{object("team/z.md", 10, mod), object("team/sub/", 0, mod), object("team/logo.png", 5, mod)},
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("page2"),
	}, nil).Once()
	api.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.ContinuationToken) == "page2"
	})).Return(&s3.ListObjectsV2Output{
		Contents:    []types.Object{object("team/a.docx", 20, mod)},
		IsTruncated: aws.Bool(false),
	}, nil).Once()

	src, err := NewS3Source(api, "s3://docs/team/", nil)
	require.NoError(t, err)

	files, err := src.List(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "s3://docs/team/a.docx", files[0].Path)
	assert.Equal(t, domain.FormatDocx, files[0].Format)
	assert.Equal(t, int64(20), files[0].Size)
	assert.Equal(t, "s3://docs/team/z.md", files[1].Path)
	assert.True(t, files[1].ModTime.Equal(mod))
	api.AssertExpectations(t)
}

func TestS3Source_List_Error(t *testing.T) {
	api := new(MockObjectAPI)
	api.On("ListObjectsV2", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

	src, err := NewS3Source(api, "s3://docs", nil)
	require.NoError(t, err)

	_, err = src.List(context.Background())
	assert.ErrorContains(t, err, "access denied")
}

func TestS3Source_Open(t *testing.T) {
	api := new(MockObjectAPI)
	api.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Bucket) == "docs" && aws.ToString(in.Key) == "team/a.md"
	})).Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("# A"))}, nil)

	src, err := NewS3Source(api, "s3://docs/team", nil)
	require.NoError(t, err)

	rc, err := src.Open(context.Background(), domain.SourceFile{Path: "s3://docs/team/a.md"})
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "# A", string(data))

	_, err = src.Open(context.Background(), domain.SourceFile{Path: "s3://other/a.md"})
	assert.Error(t, err)
}
