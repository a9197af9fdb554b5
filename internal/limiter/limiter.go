package limiter

import (
    "context"
    "fmt"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// Counter counts hits per key in fixed windows.
type Counter interface {
    // Hit increments key and returns the count in the current window and the
    // time left until the window resets.
    Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Decision is the outcome of one Allow call.
type Decision struct {
    Allowed   bool
    Limit     int
    Remaining int
    ResetIn   time.Duration
}

// FixedWindow allows Limit hits per client per Window.
type FixedWindow struct {
    Name    string
    Limit   int
    Window  time.Duration
    counter Counter
}

func NewFixedWindow(name string, limit int, window time.Duration, c Counter) *FixedWindow {
    if limit <= 0 { limit = 100 }
    if window <= 0 { window = 15 * time.Minute }
    return &FixedWindow{Name: name, Limit: limit, Window: window, counter: c}
}

func (f *FixedWindow) Allow(ctx context.Context, client string) (Decision, error) {
    n, reset, err := f.counter.Hit(ctx, fmt.Sprintf("rl:%s:%s", f.Name, client), f.Window)
    if err != nil { return Decision{Allowed: true, Limit: f.Limit, Remaining: f.Limit}, err }
    rem := f.Limit - int(n)
    if rem < 0 { rem = 0 }
    return Decision{Allowed: n <= int64(f.Limit), Limit: f.Limit, Remaining: rem, ResetIn: reset}, nil
}

// Redis keeps counters in Redis so several instances share one budget.
type Redis struct {
    rdb *redis.Client
}

// NewRedis connects to url and pings it.
func NewRedis(url string) (*Redis, error) {
    ro, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    c := redis.NewClient(ro)
    if err := c.Ping(context.Background()).Err(); err != nil {
        _ = c.Close()
        return nil, err
    }
    return &Redis{rdb: c}, nil
}

func (r *Redis) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
    n, err := r.rdb.Incr(ctx, key).Result()
    if err != nil { return 0, 0, err }
    if n == 1 {
        if err := r.rdb.PExpire(ctx, key, window).Err(); err != nil { return n, window, err }
        return n, window, nil
    }
    ttl, err := r.rdb.PTTL(ctx, key).Result()
    if err != nil { return n, window, err }
    if ttl < 0 {
        // expiry lost (e.g. the first PExpire failed); start a new window
        _ = r.rdb.PExpire(ctx, key, window).Err()
        ttl = window
    }
    return n, ttl, nil
}

// Ping reports whether Redis is reachable.
func (r *Redis) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }

func (r *Redis) Close() error { return r.rdb.Close() }

// Memory keeps counters in process.
type Memory struct {
    mu   sync.Mutex
    now  func() time.Time
    hits map[string]*memWindow
}

type memWindow struct {
    count int64
    reset time.Time
}

func NewMemory(now func() time.Time) *Memory {
    if now == nil { now = time.Now }
    return &Memory{now: now, hits: map[string]*memWindow{}}
}

func (m *Memory) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
    now := m.now()
    m.mu.Lock()
    defer m.mu.Unlock()
    w, ok := m.hits[key]
    if !ok || !now.Before(w.reset) {
        w = &memWindow{reset: now.Add(window)}
        m.hits[key] = w
    }
    w.count++
    return w.count, w.reset.Sub(now), nil
}

// Prune drops windows that have already reset.
func (m *Memory) Prune() int {
    now := m.now()
    m.mu.Lock()
    defer m.mu.Unlock()
    n := 0
    for k, w := range m.hits {
        if !now.Before(w.reset) {
            delete(m.hits, k)
            n++
        }
    }
    return n
}
