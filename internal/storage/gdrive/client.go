// Package gdrive implements the remote client on top of the Google Drive v3
// API.
package gdrive

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/gdrivefs/gdrivefs/pkg/errors"
	"github.com/gdrivefs/gdrivefs/pkg/types"
)

const (
	fileFields = "id, name, mimeType, size, parents, trashed, createdTime, modifiedTime, viewedByMeTime, capabilities(canEdit, canListChildren)"
	listFields = "nextPageToken, files(" + fileFields + ")"

	defaultPageSize = 1000
)

// Client talks to one Drive account.
type Client struct {
	service  *drive.Service
	logger   *zap.Logger
	pageSize int64
}

var _ types.RemoteClient = (*Client)(nil)

// NewClient builds a Drive client over an authenticated HTTP client. extra
// options are passed to the Drive service, for example a custom endpoint.
func NewClient(ctx context.Context, httpClient *http.Client, logger *zap.Logger, extra ...option.ClientOption) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, extra...)
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeAuthenticationFailed, "failed to create drive service").
			WithComponent("gdrive").WithCause(err)
	}
	return &Client{service: service, logger: logger, pageSize: defaultPageSize}, nil
}

// CreateObject creates an empty file, or a folder, under parentID.
func (c *Client) CreateObject(ctx context.Context, title, parentID, mimeType string) (*types.RemoteObject, error) {
	file := &drive.File{
		Name:    title,
		Parents: []string{parentID},
	}
	if mimeType != "" {
		file.MimeType = mimeType
	}

	created, err := c.service.Files.Create(file).Fields(googleapi.Field(fileFields)).Context(ctx).Do()
	if err != nil {
		return nil, translateError(err, types.CallCreateObject, parentID)
	}
	c.logger.Debug("created drive object", zap.String("id", created.Id), zap.String("name", created.Name))
	obj := toRemoteObject(created)
	return &obj, nil
}

// ListChildren follows every result page of a parent query.
func (c *Client) ListChildren(ctx context.Context, parentID string, opts types.ListOptions) ([]types.RemoteObject, error) {
	call := c.service.Files.List().
		Q(childrenQuery(parentID, opts)).
		Fields(googleapi.Field(listFields)).
		PageSize(c.pageSize).
		Context(ctx)

	var out []types.RemoteObject
	err := call.Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			out = append(out, toRemoteObject(f))
		}
		return nil
	})
	if err != nil {
		return nil, translateError(err, types.CallListChildren, parentID)
	}
	return out, nil
}

// FetchMetadata returns every field Drive reports for id.
func (c *Client) FetchMetadata(ctx context.Context, id string) (*types.RemoteObject, error) {
	f, err := c.service.Files.Get(id).Fields("*").Context(ctx).Do()
	if err != nil {
		return nil, translateError(err, types.CallFetchMetadata, id)
	}
	obj := toRemoteObject(f)
	return &obj, nil
}

// GetContent downloads the raw content of id.
func (c *Client) GetContent(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.service.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, translateError(err, types.CallGetContent, id)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Transient(fmt.Errorf("reading content of %s: %w", id, err))
	}
	return data, nil
}

// SetContent uploads content as the new revision of id.
func (c *Client) SetContent(ctx context.Context, id string, content []byte) error {
	_, err := c.service.Files.Update(id, &drive.File{}).
		Media(bytes.NewReader(content)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return translateError(err, types.CallSetContent, id)
	}
	return nil
}

// Trash moves id to the Drive trash.
func (c *Client) Trash(ctx context.Context, id string) error {
	_, err := c.service.Files.Update(id, &drive.File{Trashed: true}).Fields("id").Context(ctx).Do()
	if err != nil {
		return translateError(err, types.CallTrash, id)
	}
	return nil
}

// childrenQuery builds the Drive search query for the children of parentID.
func childrenQuery(parentID string, opts types.ListOptions) string {
	clauses := []string{fmt.Sprintf("'%s' in parents", escapeQuery(parentID))}
	if !opts.IncludeTrashed {
		clauses = append(clauses, "trashed = false")
	}
	if opts.Name != "" {
		clauses = append(clauses, fmt.Sprintf("name = '%s'", escapeQuery(opts.Name)))
	}
	return strings.Join(clauses, " and ")
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func escapeQuery(value string) string {
	return queryEscaper.Replace(value)
}

func toRemoteObject(f *drive.File) types.RemoteObject {
	obj := types.RemoteObject{
		ID:                 f.Id,
		Title:              f.Name,
		MimeType:           f.MimeType,
		FileSize:           f.Size,
		Parents:            f.Parents,
		Trashed:            f.Trashed,
		LastViewedByMeDate: f.ViewedByMeTime,
		ModifiedDate:       f.ModifiedTime,
		CreatedDate:        f.CreatedTime,
	}
	if f.Capabilities != nil {
		obj.Capabilities = types.Capabilities{
			CanEdit:         f.Capabilities.CanEdit,
			CanListChildren: f.Capabilities.CanListChildren,
		}
	}
	return obj
}

// translateError maps Drive API errors onto the error codes the core
// understands.
func translateError(err error, call, id string) error {
	var apiErr *googleapi.Error
	if !stderrors.As(err, &apiErr) {
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			return err
		}
		// transport level failure
		return errors.Transient(fmt.Errorf("%s %s: %w", call, id, err))
	}

	switch {
	case apiErr.Code == http.StatusNotFound:
		return errors.NotFound(id).WithComponent("gdrive").WithOperation(call).WithCause(err)
	case apiErr.Code == http.StatusUnauthorized:
		return errors.NewError(errors.ErrCodeAuthenticationFailed, "drive rejected the credentials").
			WithComponent("gdrive").WithOperation(call).WithCause(err)
	case isTransient(apiErr):
		return errors.Transient(fmt.Errorf("%s %s: %w", call, id, err))
	default:
		return fmt.Errorf("%s %s: %w", call, id, err)
	}
}

func isTransient(apiErr *googleapi.Error) bool {
	if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError {
		return true
	}
	if apiErr.Code == http.StatusForbidden {
		for _, item := range apiErr.Errors {
			switch item.Reason {
			case "rateLimitExceeded", "userRateLimitExceeded":
				return true
			}
		}
	}
	return false
}
