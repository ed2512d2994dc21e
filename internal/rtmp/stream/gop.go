package stream

import (
	"github.com/alxayo/go-rtmpcast/internal/rtmp/chunk"
	"github.com/alxayo/go-rtmpcast/internal/rtmp/media"
)

// DefaultGopCacheSize is the number of completed GOPs retained per publisher.
const DefaultGopCacheSize = 10

// GopCache retains recent video packets grouped by GOP so late joiners can
// decode immediately. Video packets only: audio and metadata are replayed via
// the cached sequence headers plus live fan-out. Each GOP begins with a
// keyframe; frames arriving before the first keyframe are dropped. Not
// concurrency-safe; the owning Publisher serializes access.
type GopCache struct {
	maxGops      int
	currentGop   []*chunk.Message
	cachedGops   [][]*chunk.Message
	totalPackets int
}

// NewGopCache creates a cache bounded to maxGops completed GOPs
// (DefaultGopCacheSize when <= 0).
func NewGopCache(maxGops int) *GopCache {
	if maxGops <= 0 {
		maxGops = DefaultGopCacheSize
	}
	return &GopCache{maxGops: maxGops}
}

// Add routes a video packet into the cache: keyframes seal the in-progress
// GOP and start a new one, other frames extend the in-progress GOP.
func (g *GopCache) Add(msg *chunk.Message) {
	if msg == nil {
		return
	}
	if media.IsKeyframe(msg.Payload) {
		g.finishCurrent()
		g.currentGop = append(g.currentGop, msg)
		g.totalPackets++
		return
	}
	if len(g.currentGop) == 0 {
		// No keyframe yet; a mid-GOP join would be undecodable.
		return
	}
	g.currentGop = append(g.currentGop, msg)
	g.totalPackets++
}

// finishCurrent seals the in-progress GOP and evicts the oldest completed GOP
// beyond the bound.
func (g *GopCache) finishCurrent() {
	if len(g.currentGop) == 0 {
		return
	}
	g.cachedGops = append(g.cachedGops, g.currentGop)
	g.currentGop = nil
	for len(g.cachedGops) > g.maxGops {
		g.totalPackets -= len(g.cachedGops[0])
		g.cachedGops[0] = nil
		g.cachedGops = g.cachedGops[1:]
	}
}

// Snapshot returns all cached packets in replay order: completed GOPs oldest
// first, then the in-progress GOP.
func (g *GopCache) Snapshot() []*chunk.Message {
	out := make([]*chunk.Message, 0, g.totalPackets)
	for _, gop := range g.cachedGops {
		out = append(out, gop...)
	}
	out = append(out, g.currentGop...)
	return out
}

// Clear drops all cached packets.
func (g *GopCache) Clear() {
	g.currentGop = nil
	g.cachedGops = nil
	g.totalPackets = 0
}

// Size returns the total number of cached packets.
func (g *GopCache) Size() int { return g.totalPackets }

// GopCount returns the number of GOPs held (including a non-empty in-progress
// GOP).
func (g *GopCache) GopCount() int {
	n := len(g.cachedGops)
	if len(g.currentGop) > 0 {
		n++
	}
	return n
}
