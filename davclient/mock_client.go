package davclient

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient implements the Client interface for testing
type MockClient struct {
	mock.Mock
}

func (m *MockClient) GetCTag(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockClient) ListObjectVersions(ctx context.Context) ([]ObjectVersion, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ObjectVersion), args.Error(1)
}

func (m *MockClient) SyncCollection(ctx context.Context, token string) (SyncDiff, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(SyncDiff), args.Error(1)
}

func (m *MockClient) MultiGet(ctx context.Context, hrefs []string) ([]ObjectData, error) {
	args := m.Called(ctx, hrefs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ObjectData), args.Error(1)
}

func (m *MockClient) CreateObject(ctx context.Context, data []byte) (string, string, error) {
	args := m.Called(ctx, data)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockClient) UpdateObject(ctx context.Context, href, etag string, data []byte) (string, error) {
	args := m.Called(ctx, href, etag, data)
	return args.String(0), args.Error(1)
}

func (m *MockClient) DeleteObject(ctx context.Context, href, etag string) error {
	args := m.Called(ctx, href, etag)
	return args.Error(0)
}
