package roster

import (
	"context"
	"sync"

	"github.com/Billy-Davies-2/splendor-ratings-ui/internal/models"
)

// PlayerLister fetches the full roster
type PlayerLister interface {
	Players(ctx context.Context) ([]models.Player, error)
}

// Cache is the one client-side copy of the roster. It feeds the player
// selectors of the game form and is refetched after every player mutation.
type Cache struct {
	src PlayerLister

	mu      sync.RWMutex
	players []models.Player
}

// NewCache creates an empty cache over src
func NewCache(src PlayerLister) *Cache {
	return &Cache{src: src}
}

// Refresh refetches the roster. On failure the previous copy is kept.
func (c *Cache) Refresh(ctx context.Context) ([]models.Player, error) {
	players, err := c.src.Players(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.players = append([]models.Player(nil), players...)
	c.mu.Unlock()
	return players, nil
}

// Players returns a copy of the cached roster
func (c *Cache) Players() []models.Player {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Player(nil), c.players...)
}

// Find looks a player up by id
func (c *Cache) Find(id int) (models.Player, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.players {
		if p.ID == id {
			return p, true
		}
	}
	return models.Player{}, false
}
