package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// ObjectOpener opens a Cloud Storage object for reading.
type ObjectOpener interface {
	Open(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

// GCSOpener reads objects through a Cloud Storage client.
type GCSOpener struct {
	client *gcs.Client
}

// NewGCSOpener wraps an existing Cloud Storage client.
func NewGCSOpener(client *gcs.Client) (*GCSOpener, error) {
	if client == nil {
		return nil, errors.New("geo: storage client is required")
	}
	return &GCSOpener{client: client}, nil
}

// Open returns a reader for gs://bucket/object.
func (o *GCSOpener) Open(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return o.client.Bucket(bucket).Object(object).NewReader(ctx)
}

type loadConfig struct {
	opener      ObjectOpener
	datasetOpts []Option
}

// LoadOption customises Load.
type LoadOption func(*loadConfig)

// WithObjectOpener sets the reader used for gs:// URIs. Without one, Load creates a Cloud Storage
// client from application default credentials.
func WithObjectOpener(opener ObjectOpener) LoadOption {
	return func(cfg *loadConfig) { cfg.opener = opener }
}

// WithDatasetOptions forwards options to New.
func WithDatasetOptions(opts ...Option) LoadOption {
	return func(cfg *loadConfig) { cfg.datasetOpts = append(cfg.datasetOpts, opts...) }
}

// Load reads the dataset from a local path or a gs://bucket/object URI.
func Load(ctx context.Context, uri string, opts ...LoadOption) (*Dataset, error) {
	var cfg loadConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, errors.New("geo: dataset uri is required")
	}

	var (
		reader io.ReadCloser
		err    error
	)
	if rest, ok := strings.CutPrefix(uri, "gs://"); ok {
		bucket, object, found := strings.Cut(rest, "/")
		if !found || bucket == "" || object == "" {
			return nil, fmt.Errorf("geo: invalid storage uri %q", uri)
		}
		opener := cfg.opener
		if opener == nil {
			client, err := gcs.NewClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("geo: create storage client: %w", err)
			}
			defer client.Close()
			opener = &GCSOpener{client: client}
		}
		reader, err = opener.Open(ctx, bucket, object)
	} else {
		reader, err = os.Open(uri)
	}
	if err != nil {
		return nil, fmt.Errorf("geo: open %s: %w", uri, err)
	}
	defer reader.Close()

	return Decode(reader, cfg.datasetOpts...)
}

// Decode parses a dataset document.
func Decode(r io.Reader, opts ...Option) (*Dataset, error) {
	var raw Raw
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("geo: decode dataset: %w", err)
	}
	return New(raw, opts...)
}
