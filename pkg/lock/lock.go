package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"moralduel-controlplane/pkg/config"
	"moralduel-controlplane/pkg/rediskey"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrLocked is returned when another holder owns the key.
var ErrLocked = errors.New("lock: already held")

var Module = fx.Module("lock", fx.Provide(ProvideLocker))

type Params struct {
	fx.In
	Config *config.Config
	Redis  *redis.Client `optional:"true"`
}

// ProvideLocker returns an in-process locker chained with a redis locker when
// redis is available, so a job id runs at most once across all workers.
func ProvideLocker(p Params) gocron.Locker {
	local := NewLocal()
	if p.Redis == nil {
		zap.L().Warn("[Lock] redis not configured, job locks are process local")
		return local
	}
	return Chain{local, NewRedis(p.Redis, p.Config.Scheduler.LockTTL)}
}

// Local is a non-blocking in-process locker.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) Lock(_ context.Context, key string) (gocron.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrLocked
	}
	l.held[key] = struct{}{}
	return &localLock{parent: l, key: key}, nil
}

type localLock struct {
	parent *Local
	key    string
	once   sync.Once
}

func (l *localLock) Unlock(context.Context) error {
	l.once.Do(func() {
		l.parent.mu.Lock()
		delete(l.parent.held, l.key)
		l.parent.mu.Unlock()
	})
	return nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a SET NX PX locker. The ttl bounds how long a crashed holder can
// block the key; a live holder refreshes it every ttl/3 until Unlock.
type Redis struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

func (r *Redis) Lock(ctx context.Context, key string) (gocron.Lock, error) {
	token := uuid.NewString()
	redisKey := rediskey.BuildJobLockKey(key)

	ok, err := r.rdb.SetNX(ctx, redisKey, token, r.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}

	l := &redisLock{rdb: r.rdb, key: redisKey, token: token}
	l.stop = keepAlive(key, r.ttl/3, func(ctx context.Context) (bool, error) {
		n, err := extendScript.Run(ctx, r.rdb, []string{redisKey}, token, r.ttl.Milliseconds()).Int64()
		return n == 1, err
	})
	return l, nil
}

type redisLock struct {
	rdb   redis.Cmdable
	key   string
	token string
	stop  func()
}

func (l *redisLock) Unlock(ctx context.Context) error {
	l.stop()
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}

// keepAlive calls refresh every interval until the returned stop func is
// called or refresh reports the lock is no longer ours.
func keepAlive(key string, every time.Duration, refresh func(context.Context) (bool, error)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := refresh(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					zap.L().Warn("[Lock] failed to extend job lock", zap.String("key", key), zap.Error(err))
					continue
				}
				if !ok {
					zap.L().Error("[Lock] job lock lost before release", zap.String("key", key))
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// Chain acquires every locker in order and releases the acquired ones if a
// later locker refuses.
type Chain []gocron.Locker

func (c Chain) Lock(ctx context.Context, key string) (gocron.Lock, error) {
	acquired := make(multiLock, 0, len(c))
	for _, locker := range c {
		l, err := locker.Lock(ctx, key)
		if err != nil {
			_ = acquired.Unlock(ctx)
			return nil, err
		}
		acquired = append(acquired, l)
	}
	return acquired, nil
}

type multiLock []gocron.Lock

func (m multiLock) Unlock(ctx context.Context) error {
	var errs []error
	for i := len(m) - 1; i >= 0; i-- {
		if err := m[i].Unlock(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
