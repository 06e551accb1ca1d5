package imagesrc

import (
	"math/rand/v2"
	"slices"
	"sync"
)

// Pool is the user's working set of images. It is safe for concurrent use.
type Pool struct {
	mu     sync.RWMutex
	images []*Image
}

// NewPool returns a pool holding images.
func NewPool(images ...*Image) *Pool {
	p := &Pool{}
	p.Add(images...)
	return p
}

// Add appends images to the pool. Images whose ID is already present are
// ignored.
func (p *Pool) Add(images ...*Image) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, img := range images {
		if img == nil || p.indexLocked(img.ID) >= 0 {
			continue
		}
		p.images = append(p.images, img)
	}
}

// Remove drops the image with the given ID and reports whether it was present.
func (p *Pool) Remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.indexLocked(id)
	if i < 0 {
		return false
	}
	p.images = slices.Delete(p.images, i, i+1)
	return true
}

// RemoveAll empties the pool.
func (p *Pool) RemoveAll() {
	p.mu.Lock()
	p.images = nil
	p.mu.Unlock()
}

// Get returns the image with the given ID.
func (p *Pool) Get(id string) (*Image, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i := p.indexLocked(id); i >= 0 {
		return p.images[i], true
	}
	return nil, false
}

// Len returns the number of images in the pool.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.images)
}

// Snapshot returns the current images in pool order. The returned slice is
// owned by the caller; later pool edits do not affect it.
func (p *Pool) Snapshot() []*Image {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.images)
}

func (p *Pool) indexLocked(id string) int {
	return slices.IndexFunc(p.images, func(img *Image) bool { return img.ID == id })
}

// ShuffleSnapshot returns a shuffled copy of images.
func ShuffleSnapshot(images []*Image, rng *rand.Rand) []*Image {
	out := slices.Clone(images)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
