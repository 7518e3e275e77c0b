package contact

import (
	"sync"

	"ringring-backend/internal/domain"
)

// BlockList is the in-memory copy of every block relation. The signaling
// router reads it on every call:initiate, so it never touches the database.
type BlockList struct {
	mu     sync.RWMutex
	blocks map[string]map[string]struct{}
}

// NewBlockList creates an empty block list
func NewBlockList() *BlockList {
	return &BlockList{blocks: make(map[string]map[string]struct{})}
}

// Blocked reports whether ownerID has blocked otherID
func (b *BlockList) Blocked(ownerID, otherID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blocks[ownerID][otherID]
	return ok
}

// Replace swaps the whole set for pairs
func (b *BlockList) Replace(pairs []domain.BlockedPair) {
	blocks := make(map[string]map[string]struct{}, len(pairs))
	for _, p := range pairs {
		owner := p.OwnerID.String()
		if blocks[owner] == nil {
			blocks[owner] = make(map[string]struct{})
		}
		blocks[owner][p.BlockedID.String()] = struct{}{}
	}

	b.mu.Lock()
	b.blocks = blocks
	b.mu.Unlock()
}

// Set records or clears a single relation
func (b *BlockList) Set(ownerID, otherID string, blocked bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if blocked {
		if b.blocks[ownerID] == nil {
			b.blocks[ownerID] = make(map[string]struct{})
		}
		b.blocks[ownerID][otherID] = struct{}{}
		return
	}
	delete(b.blocks[ownerID], otherID)
	if len(b.blocks[ownerID]) == 0 {
		delete(b.blocks, ownerID)
	}
}
