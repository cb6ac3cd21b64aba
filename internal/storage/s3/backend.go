package s3

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"go.uber.org/zap"

	"github.com/gdrivefs/gdrivefs/pkg/errors"
	"github.com/gdrivefs/gdrivefs/pkg/types"
)

const (
	// TrashPrefix holds trashed keys, outside of any mounted prefix.
	TrashPrefix = ".trash/"

	// user metadata key carrying the creation time
	createdMetadataKey = "created"

	folderContentType = "application/x-directory"
)

// Backend stores a directory tree in an S3 bucket. Object ids are keys;
// folders are zero-byte markers whose key ends in "/". The root id maps to
// the configured prefix.
type Backend struct {
	api     API
	bucket  string
	prefix  string
	config  *Config
	logger  *zap.Logger
	now     func() time.Time
	metrics *metricsRecorder
}

var _ types.RemoteClient = (*Backend)(nil)

// Option configures a Backend
type Option func(*Backend)

// WithAPI uses api instead of building an AWS client from the config.
func WithAPI(api API) Option {
	return func(b *Backend) {
		b.api = api
	}
}

// WithLogger sets the backend logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// WithClock sets the clock used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		b.now = now
	}
}

// NewBackend creates a backend rooted at prefix inside bucket and checks
// that the bucket is reachable.
func NewBackend(ctx context.Context, bucket, prefix string, cfg *Config, opts ...Option) (*Backend, error) {
	if bucket == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "bucket name cannot be empty").
			WithComponent("s3")
	}
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	cfg.applyDefaults()

	b := &Backend{
		bucket: bucket,
		prefix: normalizePrefix(prefix),
		config: cfg,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.metrics = &metricsRecorder{now: b.now}
	b.logger = b.logger.With(zap.String("bucket", bucket), zap.String("prefix", b.prefix))

	if b.api == nil {
		client, err := newServiceClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		b.api = client
	}

	if err := b.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("S3 backend health check failed: %w", err)
	}

	b.logger.Info("S3 backend ready",
		zap.String("region", cfg.Region),
		zap.String("endpoint", cfg.Endpoint),
		zap.Bool("static_credentials", cfg.HasStaticCredentials()))
	return b, nil
}

// HealthCheck verifies the bucket is reachable
func (b *Backend) HealthCheck(ctx context.Context) error {
	start := time.Now()
	_, err := b.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	b.metrics.request(time.Since(start), err)
	if err != nil {
		return b.translateError(err, "head_bucket", b.bucket)
	}
	return nil
}

// GetMetrics returns current backend metrics
func (b *Backend) GetMetrics() BackendMetrics {
	return b.metrics.snapshot()
}

// CreateObject writes an empty object, or a folder marker, under parentID.
func (b *Backend) CreateObject(ctx context.Context, title, parentID, mimeType string) (*types.RemoteObject, error) {
	const call = types.CallCreateObject

	// a "/" would nest the key below a folder the listing never reports
	if title == "" || strings.Contains(title, "/") {
		return nil, errors.NewError(errors.ErrCodeInvalidPath, "invalid object title").
			WithComponent("s3").WithOperation(call).WithContext("title", title)
	}

	dir, err := b.dirKey(ctx, parentID, call)
	if err != nil {
		return nil, err
	}

	key := dir + title
	contentType := mimeType
	if mimeType == types.FolderMimeType {
		key += "/"
		contentType = folderContentType
	} else if contentType == "" {
		contentType = detectContentType(key)
	}

	created := types.FormatTimestamp(b.now())
	start := time.Now()
	_, err = b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
		ContentType:   aws.String(contentType),
		Metadata:      map[string]string{createdMetadataKey: created},
	})
	b.metrics.request(time.Since(start), err)
	if err != nil {
		return nil, b.translateError(err, call, key)
	}

	b.logger.Debug("created object", zap.String("key", key))

	obj := b.object(key, 0, contentType)
	obj.CreatedDate = created
	obj.ModifiedDate = created
	return &obj, nil
}

// ListChildren lists the direct children of parentID, ordered by key.
// Trashed objects live outside the tree and are never listed.
func (b *Backend) ListChildren(ctx context.Context, parentID string, opts types.ListOptions) ([]types.RemoteObject, error) {
	const call = types.CallListChildren

	dir, err := b.folderPrefix(parentID, call)
	if err != nil {
		return nil, err
	}

	paginator := s3.NewListObjectsV2Paginator(b.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucket),
		Prefix:    aws.String(dir + opts.Name),
		Delimiter: aws.String("/"),
	})

	var out []types.RemoteObject
	for paginator.HasMorePages() {
		start := time.Now()
		page, err := paginator.NextPage(ctx)
		b.metrics.request(time.Since(start), err)
		if err != nil {
			return nil, b.translateError(err, call, dir)
		}

		for _, cp := range page.CommonPrefixes {
			key := aws.ToString(cp.Prefix)
			if key == TrashPrefix {
				continue
			}
			out = append(out, b.object(key, 0, folderContentType))
		}
		for _, item := range page.Contents {
			key := aws.ToString(item.Key)
			if key == dir {
				continue
			}
			obj := b.object(key, aws.ToInt64(item.Size), detectContentType(key))
			obj.ModifiedDate = types.FormatTimestamp(aws.ToTime(item.LastModified))
			out = append(out, obj)
		}
	}

	if opts.Name != "" {
		matched := out[:0]
		for _, obj := range out {
			if obj.Title == opts.Name {
				matched = append(matched, obj)
			}
		}
		out = matched
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FetchMetadata heads id. Folders without a marker object are reported as
// long as some key lives under them.
func (b *Backend) FetchMetadata(ctx context.Context, id string) (*types.RemoteObject, error) {
	const call = types.CallFetchMetadata

	if id == types.RootID {
		root := b.object(b.prefix, 0, folderContentType)
		return &root, nil
	}

	head, err := b.head(ctx, id, call)
	if err != nil {
		if errors.IsNotFound(err) && isFolderKey(id) {
			if ok, lerr := b.hasKeysUnder(ctx, id, call); lerr != nil {
				return nil, lerr
			} else if ok {
				obj := b.object(id, 0, folderContentType)
				return &obj, nil
			}
		}
		return nil, err
	}

	obj := b.object(id, aws.ToInt64(head.ContentLength), aws.ToString(head.ContentType))
	obj.ModifiedDate = types.FormatTimestamp(aws.ToTime(head.LastModified))
	obj.CreatedDate = head.Metadata[createdMetadataKey]
	if obj.CreatedDate == "" {
		obj.CreatedDate = obj.ModifiedDate
	}
	return &obj, nil
}

// GetContent downloads the whole object.
func (b *Backend) GetContent(ctx context.Context, id string) ([]byte, error) {
	const call = types.CallGetContent

	if id == types.RootID || isFolderKey(id) {
		return []byte{}, nil
	}

	start := time.Now()
	result, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(id),
	})
	b.metrics.request(time.Since(start), err)
	if err != nil {
		return nil, b.translateError(err, call, id)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, errors.Transient(fmt.Errorf("failed to read object body: %w", err))
	}
	b.metrics.downloaded(len(data))
	return data, nil
}

// SetContent replaces the object body, keeping its content type and
// creation time.
func (b *Backend) SetContent(ctx context.Context, id string, content []byte) error {
	const call = types.CallSetContent

	if id == types.RootID || isFolderKey(id) {
		return errors.NewError(errors.ErrCodeInvalidPath, "cannot write a folder").
			WithComponent("s3").WithOperation(call).WithContext("key", id)
	}

	head, err := b.head(ctx, id, call)
	if err != nil {
		return err
	}

	contentType := aws.ToString(head.ContentType)
	if contentType == "" {
		contentType = detectContentType(id)
	}

	start := time.Now()
	_, err = b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(id),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String(contentType),
		Metadata:      head.Metadata,
	})
	b.metrics.request(time.Since(start), err)
	if err != nil {
		return b.translateError(err, call, id)
	}
	b.metrics.uploaded(len(content))
	return nil
}

// Trash moves id, and every key under it for folders, below TrashPrefix.
func (b *Backend) Trash(ctx context.Context, id string) error {
	const call = types.CallTrash

	if id == types.RootID {
		return errors.NotFound(id).WithComponent("s3").WithOperation(call)
	}
	if !isFolderKey(id) {
		return b.moveToTrash(ctx, id, call)
	}

	paginator := s3.NewListObjectsV2Paginator(b.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(id),
	})

	var keys []string
	for paginator.HasMorePages() {
		start := time.Now()
		page, err := paginator.NextPage(ctx)
		b.metrics.request(time.Since(start), err)
		if err != nil {
			return b.translateError(err, call, id)
		}
		for _, item := range page.Contents {
			keys = append(keys, aws.ToString(item.Key))
		}
	}
	if len(keys) == 0 {
		return errors.NotFound(id).WithComponent("s3").WithOperation(call)
	}

	for _, key := range keys {
		if err := b.moveToTrash(ctx, key, call); err != nil {
			return err
		}
	}
	b.logger.Debug("trashed folder", zap.String("key", id), zap.Int("objects", len(keys)))
	return nil
}

func (b *Backend) moveToTrash(ctx context.Context, key, call string) error {
	start := time.Now()
	_, err := b.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		CopySource: aws.String(copySource(b.bucket, key)),
		Key:        aws.String(TrashPrefix + key),
	})
	b.metrics.request(time.Since(start), err)
	if err != nil {
		return b.translateError(err, call, key)
	}

	start = time.Now()
	_, err = b.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	b.metrics.request(time.Since(start), err)
	if err != nil {
		return b.translateError(err, call, key)
	}
	return nil
}

func (b *Backend) head(ctx context.Context, key, call string) (*s3.HeadObjectOutput, error) {
	start := time.Now()
	out, err := b.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	b.metrics.request(time.Since(start), err)
	if err != nil {
		return nil, b.translateError(err, call, key)
	}
	return out, nil
}

func (b *Backend) hasKeysUnder(ctx context.Context, dir, call string) (bool, error) {
	start := time.Now()
	out, err := b.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(dir),
		MaxKeys: aws.Int32(1),
	})
	b.metrics.request(time.Since(start), err)
	if err != nil {
		return false, b.translateError(err, call, dir)
	}
	return len(out.Contents) > 0, nil
}

// folderPrefix returns the key prefix of the folder id without checking
// that it exists.
func (b *Backend) folderPrefix(id, call string) (string, error) {
	if id == types.RootID {
		return b.prefix, nil
	}
	if !isFolderKey(id) {
		return "", errors.NotFound(id).WithComponent("s3").WithOperation(call).
			WithContext("reason", "not a folder")
	}
	return id, nil
}

// dirKey is folderPrefix plus an existence check for non-root folders.
func (b *Backend) dirKey(ctx context.Context, id, call string) (string, error) {
	dir, err := b.folderPrefix(id, call)
	if err != nil || id == types.RootID {
		return dir, err
	}
	if _, err := b.head(ctx, id, call); err != nil {
		if !errors.IsNotFound(err) {
			return "", err
		}
		ok, lerr := b.hasKeysUnder(ctx, id, call)
		if lerr != nil {
			return "", lerr
		}
		if !ok {
			return "", err
		}
	}
	return dir, nil
}

// object builds the RemoteObject for key. Folders keep their trailing "/".
func (b *Backend) object(key string, size int64, contentType string) types.RemoteObject {
	obj := types.RemoteObject{
		ID:           key,
		Title:        titleOf(key),
		MimeType:     contentType,
		Capabilities: types.Capabilities{CanEdit: true},
		FileSize:     size,
		Parents:      []string{b.parentID(key)},
	}
	if key == b.prefix {
		obj.ID = types.RootID
		obj.Parents = nil
	}
	if isFolderKey(key) || key == b.prefix {
		obj.MimeType = types.FolderMimeType
		obj.Capabilities.CanListChildren = true
		obj.FileSize = 0
	}
	return obj
}

func (b *Backend) parentID(key string) string {
	trimmed := strings.TrimSuffix(key, "/")
	i := strings.LastIndex(trimmed, "/")
	if i < 0 {
		return types.RootID
	}
	parent := trimmed[:i+1]
	if parent == b.prefix {
		return types.RootID
	}
	return parent
}

func (b *Backend) translateError(err error, operation, key string) error {
	switch {
	case isErrorType[*s3types.NoSuchKey](err), isErrorType[*s3types.NotFound](err):
		return errors.NotFound(key).WithComponent("s3").WithOperation(operation).WithCause(err)
	case isErrorType[*s3types.NoSuchBucket](err):
		return errors.NewError(errors.ErrCodeInvalidConfig, "bucket not found: "+b.bucket).
			WithComponent("s3").WithOperation(operation).WithCause(err)
	case isTransient(err):
		return errors.Transient(fmt.Errorf("%s failed for %s: %w", operation, key, err))
	default:
		return fmt.Errorf("%s failed for %s: %w", operation, key, err)
	}
}

// isTransient reports throttling and server-side failures.
func isTransient(err error) bool {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "Throttling", "ThrottlingException", "RequestTimeout",
			"InternalError", "ServiceUnavailable":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if stderrors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
	}
	return false
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return stderrors.As(err, &target)
}

func detectContentType(key string) string {
	switch {
	case strings.HasSuffix(key, "/"):
		return folderContentType
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".xml"):
		return "application/xml"
	case strings.HasSuffix(key, ".html"):
		return "text/html"
	case strings.HasSuffix(key, ".md"):
		return "text/markdown"
	case strings.HasSuffix(key, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(key, ".png"):
		return "image/png"
	case strings.HasSuffix(key, ".jpg"), strings.HasSuffix(key, ".jpeg"):
		return "image/jpeg"
	default:
		return "text/plain"
	}
}

func isFolderKey(key string) bool {
	return strings.HasSuffix(key, "/")
}

func titleOf(key string) string {
	trimmed := strings.TrimSuffix(key, "/")
	return trimmed[strings.LastIndex(trimmed, "/")+1:]
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// copySource escapes each key segment for the x-amz-copy-source header.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segments, "/")
}
