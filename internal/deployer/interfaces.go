package deployer

import (
	"context"
	"time"

	"github.com/JakeFAU/static-mirror/internal/archive"
)

// Queue is the durable worklist of files awaiting transfer.
type Queue interface {
	Add(ctx context.Context, items []Item) error
	// Remaining may return a negative count when the backing table is
	// inconsistent; callers treat that as corruption.
	Remaining(ctx context.Context) (int, error)
	// Batch returns up to limit items ordered by LocalPath.
	Batch(ctx context.Context, limit int) ([]Item, error)
	Remove(ctx context.Context, localPath string) error
	Truncate(ctx context.Context) error
}

// Cache maps output paths to the content hash last deployed per namespace.
type Cache interface {
	Get(ctx context.Context, pathHash, namespace string) (CacheEntry, bool, error)
	Upsert(ctx context.Context, entry CacheEntry) error
	Clear(ctx context.Context, namespace string) error
	Count(ctx context.Context, namespace string) (int, error)
}

// Deployer is one hosting target.
type Deployer interface {
	Name() string
	// UploadBatch transfers every file or fails as a whole.
	UploadBatch(ctx context.Context, files []File) error
	TestConnectivity(ctx context.Context) error
	// Finalize runs once after the last batch.
	Finalize(ctx context.Context, a archive.Archive) error
}

// Publisher emits the post-deploy notification.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher digests file bodies and cache keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock supplies time and the inter-batch delay.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator names events.
type IDGenerator interface {
	NewID() (string, error)
}

// ArchiveSource resolves the archive being deployed.
type ArchiveSource interface {
	Current() (archive.Archive, error)
}
