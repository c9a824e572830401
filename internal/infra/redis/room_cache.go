package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"phonoroom-service/internal/app"
	"phonoroom-service/internal/domain"
)

// RoomCache is a read-through cache over a backing app.RoomStore.
// Keys:
//
//	SET room:code:{code} -> room id   (NX reservation while the room is open)
//	SET room:meta:{id}   -> room JSON (TTL'd metadata cache)
//
// The NX reservation doubles as the cross-instance uniqueness check for join
// codes: Create fails with ErrDuplicateCode when another open room holds the
// code.
type RoomCache struct {
	client  *redis.Client
	backing app.RoomStore
	ttl     time.Duration
	sf      singleflight.Group
	rnd     *rand.Rand
}

var _ app.RoomStore = (*RoomCache)(nil)

func NewRoomCache(client *redis.Client, backing app.RoomStore, ttl time.Duration) *RoomCache {
	return &RoomCache{
		client:  client,
		backing: backing,
		ttl:     ttl,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *RoomCache) Create(ctx context.Context, room domain.Room) error {
	ok, err := c.client.SetNX(ctx, c.codeKey(room.Code), room.ID, c.ttlWithJitter()).Result()
	if err == nil && !ok {
		return domain.ErrDuplicateCode
	}
	// On redis failure fall through to the backing store, which enforces
	// uniqueness on its own.
	if err := c.backing.Create(ctx, room); err != nil {
		_ = c.client.Del(ctx, c.codeKey(room.Code)).Err()
		return err
	}
	c.cacheRoom(ctx, room)
	return nil
}

func (c *RoomCache) GetByID(ctx context.Context, id string) (domain.Room, error) {
	if room, ok := c.cachedRoom(ctx, id); ok {
		return room, nil
	}
	result, err, _ := c.sf.Do("id:"+id, func() (interface{}, error) {
		if room, ok := c.cachedRoom(ctx, id); ok {
			return room, nil
		}
		room, err := c.backing.GetByID(ctx, id)
		if err != nil {
			return domain.Room{}, err
		}
		c.cacheRoom(ctx, room)
		return room, nil
	})
	if err != nil {
		return domain.Room{}, err
	}
	return result.(domain.Room), nil
}

func (c *RoomCache) GetByCode(ctx context.Context, code string) (domain.Room, error) {
	if id, err := c.client.Get(ctx, c.codeKey(code)).Result(); err == nil && id != "" {
		if room, ok := c.cachedRoom(ctx, id); ok && room.Status != domain.RoomFinished {
			return room, nil
		}
	}
	result, err, _ := c.sf.Do("code:"+code, func() (interface{}, error) {
		room, err := c.backing.GetByCode(ctx, code)
		if err != nil {
			return domain.Room{}, err
		}
		c.cacheRoom(ctx, room)
		return room, nil
	})
	if err != nil {
		return domain.Room{}, err
	}
	return result.(domain.Room), nil
}

func (c *RoomCache) UpdateStatus(ctx context.Context, id string, status domain.RoomStatus) error {
	if err := c.backing.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	if room, ok := c.cachedRoom(ctx, id); ok {
		room.Status = status
		if status == domain.RoomFinished {
			// finished rooms release their code immediately
			_ = c.client.Del(ctx, c.codeKey(room.Code)).Err()
		}
		c.cacheRoom(ctx, room)
	}
	return nil
}

func (c *RoomCache) Delete(ctx context.Context, id string) error {
	if room, ok := c.cachedRoom(ctx, id); ok {
		_ = c.client.Del(ctx, c.codeKey(room.Code)).Err()
	}
	_ = c.client.Del(ctx, c.metaKey(id)).Err()
	return c.backing.Delete(ctx, id)
}

func (c *RoomCache) SaveResult(ctx context.Context, result domain.GameResult) error {
	return c.backing.SaveResult(ctx, result)
}

func (c *RoomCache) cachedRoom(ctx context.Context, id string) (domain.Room, bool) {
	raw, err := c.client.Get(ctx, c.metaKey(id)).Bytes()
	if err != nil {
		return domain.Room{}, false
	}
	var room domain.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return domain.Room{}, false
	}
	return room, true
}

func (c *RoomCache) cacheRoom(ctx context.Context, room domain.Room) {
	raw, err := json.Marshal(room)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.metaKey(room.ID), raw, c.ttlWithJitter()).Err()
}

func (c *RoomCache) codeKey(code string) string {
	return "room:code:" + code
}

func (c *RoomCache) metaKey(id string) string {
	return "room:meta:" + id
}

func (c *RoomCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
