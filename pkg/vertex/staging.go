package vertex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"enginectl/pkg/config"
	"enginectl/pkg/engine"
	"enginectl/pkg/logx"
	"enginectl/pkg/packaging"
)

// Staged object names.
const (
	PickleObject       = "agent_engine.pkl"
	RequirementsObject = "requirements.txt"
)

// Uploader writes objects into the staging bucket.
type Uploader interface {
	EnsureBucket(ctx context.Context) error
	Upload(ctx context.Context, object string, r io.Reader) error
	Bucket() string
}

// Stager uploads deployment artifacts under a fresh prefix for every create.
type Stager struct {
	uploader Uploader
	newID    func() string
	logger   *logx.Logger
}

var _ engine.Stager = (*Stager)(nil)

// NewStager stages through uploader.
func NewStager(uploader Uploader) *Stager {
	return &Stager{
		uploader: uploader,
		newID:    uuid.NewString,
		logger:   logx.NewLogger("staging"),
	}
}

// Stage uploads the serialized agent, requirements and dependency archive,
// returning their gs:// locations.
func (s *Stager) Stage(ctx context.Context, desc *config.Descriptor) (*engine.PackageSpec, error) {
	pickle, err := os.ReadFile(desc.PicklePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("serialized agent %s not found; build it with the agent's own tooling first", desc.PicklePath())
		}
		return nil, fmt.Errorf("failed to read serialized agent: %w", err)
	}

	reqs, err := desc.ResolvedRequirements()
	if err != nil {
		return nil, err
	}

	var deps bytes.Buffer
	stats, err := packaging.Write(&deps, desc.BaseDir(), desc.ExtraPackages)
	if err != nil {
		return nil, err
	}

	if err := s.uploader.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	prefix := path.Join(desc.StagingDir, s.newID())
	uri := func(object string) string {
		return fmt.Sprintf("gs://%s/%s/%s", s.uploader.Bucket(), prefix, object)
	}

	uploads := []struct {
		object string
		body   io.Reader
	}{
		{PickleObject, bytes.NewReader(pickle)},
		{RequirementsObject, strings.NewReader(strings.Join(reqs, "\n"))},
		{packaging.ArchiveName, &deps},
	}
	for _, u := range uploads {
		if err := s.uploader.Upload(ctx, path.Join(prefix, u.object), u.body); err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", u.object, err)
		}
		s.logger.Debug("uploaded %s", uri(u.object))
	}
	s.logger.Info("staged %d dependency files under %s", stats.Files, fmt.Sprintf("gs://%s/%s", s.uploader.Bucket(), prefix))

	return &engine.PackageSpec{
		PickleURI:       uri(PickleObject),
		RequirementsURI: uri(RequirementsObject),
		DependenciesURI: uri(packaging.ArchiveName),
		PythonVersion:   desc.PythonVersion,
	}, nil
}

// GCSUploader implements Uploader on Cloud Storage.
type GCSUploader struct {
	client   *storage.Client
	bucket   string
	project  string
	location string
}

var _ Uploader = (*GCSUploader)(nil)

// NewGCSUploader opens a storage client for bucket, which is created in
// project/location when it does not exist yet.
func NewGCSUploader(ctx context.Context, project, location, bucket string, opts ...option.ClientOption) (*GCSUploader, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSUploader{client: client, bucket: bucket, project: project, location: location}, nil
}

func (g *GCSUploader) Bucket() string {
	return g.bucket
}

func (g *GCSUploader) EnsureBucket(ctx context.Context) error {
	bkt := g.client.Bucket(g.bucket)
	_, err := bkt.Attrs(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrBucketNotExist):
		logx.NewLogger("staging").Info("creating staging bucket gs://%s in %s", g.bucket, g.location)
		if err := bkt.Create(ctx, g.project, &storage.BucketAttrs{Location: g.location}); err != nil {
			return fmt.Errorf("failed to create staging bucket %s: %w", g.bucket, err)
		}
		return nil
	default:
		return fmt.Errorf("failed to inspect staging bucket %s: %w", g.bucket, err)
	}
}

func (g *GCSUploader) Upload(ctx context.Context, object string, r io.Reader) error {
	w := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Close releases the storage client.
func (g *GCSUploader) Close() error {
	return g.client.Close()
}
