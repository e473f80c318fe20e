package demwb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/osio"
	"github.com/airbusgeo/osio/gcs"
	lru "github.com/hashicorp/golang-lru/v2"
	adst "go.airbusds-geo.com/gcp/storage"
)

// A TileArchive is a flat collection of named tiles.
type TileArchive interface {
	// Path returns the name under which GDAL can open the tile.
	Path(name string) string
	Exists(ctx context.Context, name string) (bool, error)
}

// LocalArchive is a TileArchive rooted at a local directory.
type LocalArchive string

func (a LocalArchive) Path(name string) string {
	return filepath.Join(string(a), name)
}

func (a LocalArchive) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(a.Path(name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// IsGCS reports whether root designates a google cloud storage location.
func IsGCS(root string) bool {
	return strings.HasPrefix(root, "gs://")
}

// GCSArchive is a TileArchive stored under a gs://bucket/prefix location.
// Lookups are cached as neighbouring tiles of a product share most of their
// elevation tiles.
type GCSArchive struct {
	client *storage.Client
	bucket string
	prefix string
	cache  *lru.Cache[string, bool]
}

// NewGCSArchive returns an archive for root, e.g. gs://bucket/srtm.
func NewGCSArchive(client *storage.Client, root string, cacheSize int) (*GCSArchive, error) {
	bucket, prefix, err := adst.Parse(root)
	if err != nil {
		return nil, fmt.Errorf("invalid archive %s: %w", root, err)
	}
	cache, err := lru.New[string, bool](cacheSize)
	if err != nil {
		return nil, err
	}
	return &GCSArchive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		cache:  cache,
	}, nil
}

func (a *GCSArchive) object(name string) string {
	return path.Join(a.prefix, name)
}

func (a *GCSArchive) Path(name string) string {
	return "gs://" + a.bucket + "/" + a.object(name)
}

func (a *GCSArchive) Exists(ctx context.Context, name string) (bool, error) {
	if ok, hit := a.cache.Get(name); hit {
		return ok, nil
	}
	_, err := a.client.Bucket(a.bucket).Object(a.object(name)).Attrs(ctx)
	var ok bool
	switch {
	case err == nil:
		ok = true
	case errors.Is(err, storage.ErrObjectNotExist):
		ok = false
	default:
		return false, fmt.Errorf("stat %s: %w", a.Path(name), err)
	}
	a.cache.Add(name, ok)
	return ok, nil
}

// RegisterGCSHandler makes gs:// paths readable by GDAL.
func RegisterGCSHandler(ctx context.Context, client *storage.Client, blocksize string, numBlocks int) error {
	gcsh, err := gcs.Handle(ctx, gcs.GCSClient(client))
	if err != nil {
		return fmt.Errorf("gcs.handle: %w", err)
	}
	gcsa, err := osio.NewAdapter(gcsh, osio.BlockSize(blocksize), osio.NumCachedBlocks(numBlocks))
	if err != nil {
		return fmt.Errorf("osio.new: %w", err)
	}
	if err := godal.RegisterVSIHandler("gs://", gcsa); err != nil {
		return fmt.Errorf("register osio: %w", err)
	}
	return nil
}
