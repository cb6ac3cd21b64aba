// Package testutil holds test doubles shared by package tests.
package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/gdrivefs/gdrivefs/pkg/types"
)

// MockRemoteClient is a testify mock of types.RemoteClient.
type MockRemoteClient struct {
	mock.Mock
}

var _ types.RemoteClient = (*MockRemoteClient)(nil)

func (m *MockRemoteClient) CreateObject(ctx context.Context, title, parentID, mimeType string) (*types.RemoteObject, error) {
	args := m.Called(ctx, title, parentID, mimeType)
	obj, _ := args.Get(0).(*types.RemoteObject)
	return obj, args.Error(1)
}

func (m *MockRemoteClient) ListChildren(ctx context.Context, parentID string, opts types.ListOptions) ([]types.RemoteObject, error) {
	args := m.Called(ctx, parentID, opts)
	objs, _ := args.Get(0).([]types.RemoteObject)
	return objs, args.Error(1)
}

func (m *MockRemoteClient) FetchMetadata(ctx context.Context, id string) (*types.RemoteObject, error) {
	args := m.Called(ctx, id)
	obj, _ := args.Get(0).(*types.RemoteObject)
	return obj, args.Error(1)
}

func (m *MockRemoteClient) GetContent(ctx context.Context, id string) ([]byte, error) {
	args := m.Called(ctx, id)
	content, _ := args.Get(0).([]byte)
	return content, args.Error(1)
}

func (m *MockRemoteClient) SetContent(ctx context.Context, id string, content []byte) error {
	args := m.Called(ctx, id, content)
	return args.Error(0)
}

func (m *MockRemoteClient) Trash(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// File returns a fetched-looking file object.
func File(id, title string, size int64) *types.RemoteObject {
	return &types.RemoteObject{
		ID:           id,
		Title:        title,
		MimeType:     "text/plain",
		Capabilities: types.Capabilities{CanEdit: true},
		FileSize:     size,
		ModifiedDate: "2024-03-01T10:00:00.000Z",
		CreatedDate:  "2024-02-01T10:00:00.000Z",
	}
}

// Folder returns a fetched-looking folder object.
func Folder(id, title string) *types.RemoteObject {
	return &types.RemoteObject{
		ID:           id,
		Title:        title,
		MimeType:     types.FolderMimeType,
		Capabilities: types.Capabilities{CanEdit: true, CanListChildren: true},
		ModifiedDate: "2024-03-01T10:00:00.000Z",
		CreatedDate:  "2024-02-01T10:00:00.000Z",
	}
}
