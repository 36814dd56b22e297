package media

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// MemoryGateway keeps hosted files in memory. Used for local development and
// tests.
type MemoryGateway struct {
	mu      sync.Mutex
	baseURL string
	objects map[string][]byte
}

// NewMemoryGateway serves URLs under baseURL.
func NewMemoryGateway(baseURL string) *MemoryGateway {
	return &MemoryGateway{baseURL: baseURL, objects: make(map[string][]byte)}
}

// Upload reads the staged file into memory.
func (g *MemoryGateway) Upload(_ context.Context, file *LocalFile, folder string) (string, error) {
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return "", fmt.Errorf("read staged file: %w", err)
	}

	url := g.baseURL + "/" + folder + "/" + NewObjectName(file) + file.Ext()

	g.mu.Lock()
	g.objects[url] = data
	g.mu.Unlock()
	return url, nil
}

// Delete forgets url. Unknown URLs are not an error.
func (g *MemoryGateway) Delete(_ context.Context, url, _ string) error {
	g.mu.Lock()
	delete(g.objects, url)
	g.mu.Unlock()
	return nil
}

// Has reports whether url is currently hosted.
func (g *MemoryGateway) Has(url string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.objects[url]
	return ok
}

// Len returns the number of hosted files.
func (g *MemoryGateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.objects)
}
