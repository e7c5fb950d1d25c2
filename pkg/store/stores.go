package store

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Stores bundles all repositories over one connection pool.
type Stores struct {
	Tasks    *TaskStore
	Channels *ChannelStore
	Videos   *VideoStore
	Chunks   *ChunkStore
	Chats    *ChatStore
	Settings *SettingStore
	Stats    *StatsStore
}

// NewStores creates every repository on the shared pool.
func NewStores(pool *pgxpool.Pool) *Stores {
	return &Stores{
		Tasks:    NewTaskStore(pool),
		Channels: NewChannelStore(pool),
		Videos:   NewVideoStore(pool),
		Chunks:   NewChunkStore(pool),
		Chats:    NewChatStore(pool),
		Settings: NewSettingStore(pool),
		Stats:    NewStatsStore(pool),
	}
}
