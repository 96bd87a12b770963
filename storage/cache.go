package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"hintro-api/board"
	"hintro-api/domain"
)

// Cache wraps a board.Storage with redis-backed caching for the hot per-board
// reads: the board record, its lists and its tasks. Mutations write through to
// the base storage and evict the affected board's keys, so a stale entry lives
// at most one mutation. Membership and activity reads bypass the cache.
type Cache struct {
	base  board.Storage
	redis *redis.Client
	ttl   time.Duration
}

var _ board.Storage = (*Cache)(nil)

// NewCache creates the caching wrapper. A nil client or zero ttl disables
// caching while keeping the wrapper transparent.
func NewCache(base board.Storage, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) GetBoard(ctx context.Context, boardID string) (*domain.Board, error) {
	var b domain.Board
	if c.load(ctx, boardCacheKey(boardID), &b) {
		return &b, nil
	}
	got, err := c.base.GetBoard(ctx, boardID)
	if err != nil || got == nil {
		return got, err
	}
	c.store(ctx, boardCacheKey(boardID), got)
	return got, nil
}

func (c *Cache) ListsForBoard(ctx context.Context, boardID string) ([]domain.List, error) {
	var lists []domain.List
	if c.load(ctx, listsCacheKey(boardID), &lists) {
		return lists, nil
	}
	lists, err := c.base.ListsForBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, listsCacheKey(boardID), lists)
	return lists, nil
}

func (c *Cache) TasksForBoard(ctx context.Context, boardID string) ([]domain.Task, error) {
	var tasks []domain.Task
	if c.load(ctx, tasksCacheKey(boardID), &tasks) {
		return tasks, nil
	}
	tasks, err := c.base.TasksForBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, tasksCacheKey(boardID), tasks)
	return tasks, nil
}

func (c *Cache) SaveBoard(ctx context.Context, b domain.Board) error {
	if err := c.base.SaveBoard(ctx, b); err != nil {
		return err
	}
	c.evict(ctx, b.ID)
	return nil
}

func (c *Cache) DeleteBoard(ctx context.Context, boardID string) error {
	if err := c.base.DeleteBoard(ctx, boardID); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

func (c *Cache) SaveList(ctx context.Context, l domain.List) error {
	if err := c.base.SaveList(ctx, l); err != nil {
		return err
	}
	c.evict(ctx, l.BoardID)
	return nil
}

func (c *Cache) DeleteList(ctx context.Context, boardID, listID string) error {
	if err := c.base.DeleteList(ctx, boardID, listID); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

func (c *Cache) SaveTask(ctx context.Context, t domain.Task) error {
	if err := c.base.SaveTask(ctx, t); err != nil {
		return err
	}
	c.evict(ctx, t.BoardID)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, boardID, taskID string) error {
	if err := c.base.DeleteTask(ctx, boardID, taskID); err != nil {
		return err
	}
	c.evict(ctx, boardID)
	return nil
}

// Pass-throughs. Membership and activity data is either auth-sensitive or
// already a cheap point read.

func (c *Cache) BoardByShareToken(ctx context.Context, token string) (*domain.Board, error) {
	return c.base.BoardByShareToken(ctx, token)
}

func (c *Cache) SaveMember(ctx context.Context, m domain.BoardMember) error {
	return c.base.SaveMember(ctx, m)
}

func (c *Cache) GetMember(ctx context.Context, boardID, userID string) (*domain.BoardMember, error) {
	return c.base.GetMember(ctx, boardID, userID)
}

func (c *Cache) MemberBoardIDs(ctx context.Context, userID string) ([]string, error) {
	return c.base.MemberBoardIDs(ctx, userID)
}

func (c *Cache) GetList(ctx context.Context, listID string) (*domain.List, error) {
	return c.base.GetList(ctx, listID)
}

func (c *Cache) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	return c.base.GetTask(ctx, taskID)
}

func (c *Cache) InsertActivity(ctx context.Context, a domain.Activity) error {
	return c.base.InsertActivity(ctx, a)
}

func (c *Cache) ActivitiesForBoard(ctx context.Context, boardID string, limit int) ([]domain.Activity, error) {
	return c.base.ActivitiesForBoard(ctx, boardID, limit)
}

func (c *Cache) load(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, val any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, boardID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, boardCacheKey(boardID), listsCacheKey(boardID), tasksCacheKey(boardID)).Result()
}

func boardCacheKey(id string) string { return "board:" + id }
func listsCacheKey(id string) string { return "lists:" + id }
func tasksCacheKey(id string) string { return "tasks:" + id }
