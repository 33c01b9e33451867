package flow

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/NovaFertility/IntakeFlow/internal/models"
)

// FileCache is the session-scoped in-memory store for uploaded file binaries.
// Answer sets and snapshots only ever carry FileDescriptors; the bytes live
// here, keyed by a generated handle, and are read back once at submission
// time. The cache is owned by a single engine instance and cleared on session
// reset, so uploads can never leak across sessions.
type FileCache struct {
	mu      sync.RWMutex
	entries map[string]models.FileUpload
}

// NewFileCache creates an empty file cache.
func NewFileCache() *FileCache {
	return &FileCache{entries: make(map[string]models.FileUpload)}
}

// Put stores an upload and returns its descriptor with the given index.
func (c *FileCache) Put(index int, upload models.FileUpload) models.FileDescriptor {
	handle := uuid.NewString()

	c.mu.Lock()
	c.entries[handle] = upload
	c.mu.Unlock()

	slog.Debug("FileCache.Put: cached upload", "handle", handle, "name", upload.Name, "size", upload.Size)
	return models.FileDescriptor{
		Index:        index,
		Name:         upload.Name,
		Size:         upload.Size,
		Type:         upload.Type,
		LastModified: upload.LastModified,
		Handle:       handle,
	}
}

// Get retrieves the cached upload for a handle. The second return is false
// when the handle is unknown, e.g. after a process restart resumed the session
// from a snapshot.
func (c *FileCache) Get(handle string) (models.FileUpload, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	upload, ok := c.entries[handle]
	return upload, ok
}

// Remove drops a single cached upload.
func (c *FileCache) Remove(handle string) {
	c.mu.Lock()
	delete(c.entries, handle)
	c.mu.Unlock()
}

// Clear drops all cached uploads.
func (c *FileCache) Clear() {
	c.mu.Lock()
	count := len(c.entries)
	c.entries = make(map[string]models.FileUpload)
	c.mu.Unlock()
	slog.Debug("FileCache.Clear: cleared cache", "count", count)
}

// Len returns the number of cached uploads.
func (c *FileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
