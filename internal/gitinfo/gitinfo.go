// Package gitinfo resolves best-effort git branch/remote metadata for
// a session's working directory, trimmed from the teacher's GitCache
// down to the two fields session enrichment actually exposes.
package gitinfo

import (
	"os/exec"
	"strings"
	"sync"
	"time"
)

type Info struct {
	Branch    string
	Remote    string
	UpdatedAt time.Time
}

// Cache is a TTL-bounded cache of git info keyed by cwd, so repeated
// lookups for the same cwd within the TTL don't shell out to git.
type Cache struct {
	mu    sync.RWMutex
	cache map[string]*Info
	ttl   time.Duration
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{cache: make(map[string]*Info), ttl: ttl}
}

func (c *Cache) Get(cwd string) (*Info, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok := c.cache[cwd]
	if !ok || time.Since(info.UpdatedAt) > c.ttl {
		return nil, false
	}
	return info, true
}

func (c *Cache) Set(cwd string, info *Info) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[cwd] = info
}

// Resolve returns cached git info for cwd, refreshing it via git
// subprocess calls if the cache is stale or empty. Returns nil if cwd
// is not inside a git repository.
func (c *Cache) Resolve(cwd string) *Info {
	if info, ok := c.Get(cwd); ok {
		return info
	}

	branch, remote, ok := resolve(cwd)
	if !ok {
		return nil
	}

	info := &Info{Branch: branch, Remote: remote, UpdatedAt: time.Now()}
	c.Set(cwd, info)
	return info
}

func resolve(cwd string) (branch, remote string, ok bool) {
	root, err := exec.Command("git", "-C", cwd, "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", "", false
	}
	repoRoot := strings.TrimSpace(string(root))

	if out, err := exec.Command("git", "-C", repoRoot, "rev-parse", "--abbrev-ref", "HEAD").Output(); err == nil {
		branch = strings.TrimSpace(string(out))
	}
	if out, err := exec.Command("git", "-C", repoRoot, "remote", "get-url", "origin").Output(); err == nil {
		remote = strings.TrimSpace(string(out))
	}
	return branch, remote, true
}
