package locking

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/support-desk/internal/domain"
)

// releaseScript deletes the lock key only when it still belongs to the
// caller, so a holder cannot release a lock that expired and was re-acquired
// by someone else. The stored value is "<holderID>|<role>".
const releaseScript = `
local val = redis.call("GET", KEYS[1])
if val then
    local sep = string.find(val, "|", 1, true)
    local holder = sep and string.sub(val, 1, sep - 1) or val
    if holder == ARGV[1] then
        return redis.call("DEL", KEYS[1])
    end
end
return 0`

// refreshScript extends the TTL only while the caller is still the holder.
// A plain SET here would clobber a lock that expired and was re-acquired by
// another replica between our GET and the refresh.
const refreshScript = `
local val = redis.call("GET", KEYS[1])
if val then
    local sep = string.find(val, "|", 1, true)
    local holder = sep and string.sub(val, 1, sep - 1) or val
    if holder == ARGV[1] then
        redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
        return 1
    end
end
return 0`

// redisManager implements Manager on a shared Redis instance using
// SET NX PX, so exclusivity holds across service replicas.
type redisManager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisManager builds a Redis-backed lock manager.
func NewRedisManager(client *redis.Client, ttl time.Duration) Manager {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &redisManager{client: client, ttl: ttl}
}

func lockKey(ticketID int64) string {
	return fmt.Sprintf("ticket:assignment-lock:%d", ticketID)
}

func lockValue(actorID int64, role domain.Role) string {
	return strconv.FormatInt(actorID, 10) + "|" + string(role)
}

func parseLockValue(val string) (int64, domain.Role) {
	parts := strings.SplitN(val, "|", 2)
	holderID, _ := strconv.ParseInt(parts[0], 10, 64)
	role := domain.Role("")
	if len(parts) == 2 {
		role = domain.Role(parts[1])
	}
	return holderID, role
}

func (m *redisManager) lock(ticketID, actorID int64, role domain.Role, now time.Time) *domain.AssignmentLock {
	return &domain.AssignmentLock{
		TicketID:   ticketID,
		HolderID:   actorID,
		HolderRole: role,
		AcquiredAt: now,
		ExpiresAt:  now.Add(m.ttl),
	}
}

func (m *redisManager) Acquire(ctx context.Context, ticketID int64, actorID int64, role domain.Role) (*domain.AssignmentLock, error) {
	key := lockKey(ticketID)
	value := lockValue(actorID, role)

	ok, err := m.client.SetNX(ctx, key, value, m.ttl).Result()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if ok {
		return m.lock(ticketID, actorID, role, now), nil
	}

	current, err := m.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// Holder expired between SETNX and GET; retry once.
		ok, err = m.client.SetNX(ctx, key, value, m.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return m.lock(ticketID, actorID, role, now), nil
		}
		current, err = m.client.Get(ctx, key).Result()
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	holderID, holderRole := parseLockValue(current)
	if holderID == actorID {
		// Re-entrant: refresh the TTL, but only while still the holder.
		res, err := m.client.Eval(ctx, refreshScript, []string{key},
			strconv.FormatInt(actorID, 10), value,
			strconv.FormatInt(m.ttl.Milliseconds(), 10)).Int64()
		if err != nil {
			return nil, err
		}
		if res == 1 {
			return m.lock(ticketID, actorID, role, now), nil
		}
		// The lock expired after our GET and changed hands.
		current, err = m.client.Get(ctx, key).Result()
		if err == redis.Nil {
			ok, err = m.client.SetNX(ctx, key, value, m.ttl).Result()
			if err != nil {
				return nil, err
			}
			if ok {
				return m.lock(ticketID, actorID, role, now), nil
			}
			current, err = m.client.Get(ctx, key).Result()
			if err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, err
		}
		holderID, holderRole = parseLockValue(current)
	}

	return nil, &ConflictError{TicketID: ticketID, HolderID: holderID, HolderRole: holderRole}
}

func (m *redisManager) Release(ctx context.Context, ticketID int64, actorID int64) error {
	key := lockKey(ticketID)
	return m.client.Eval(ctx, releaseScript, []string{key}, strconv.FormatInt(actorID, 10)).Err()
}

func (m *redisManager) Override(ctx context.Context, ticketID int64) error {
	return m.client.Del(ctx, lockKey(ticketID)).Err()
}
