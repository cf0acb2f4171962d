// Package pool leases MySQL connections out of a bounded database/sql pool.
//
// A Pool is built once at process start and handed to every component that
// needs it. Each Acquire must be paired with exactly one Release on every exit
// path; With binds the pair to a scope.
package pool

import (
	"context"
	"database/sql"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/streamDream/mysql-stream/orm/internal/errs"
)

const DefaultCharset = "utf8mb4"

// Config holds the parameters needed to open a MySQL pool.
type Config struct {
	MinIdle  int    `koanf:"min_idle"`
	MaxTotal int    `koanf:"max_total"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
	Charset  string `koanf:"charset"`

	// AcquireTimeout bounds how long Acquire waits for a free connection.
	// Zero waits until the caller's context is done.
	AcquireTimeout time.Duration `koanf:"acquire_timeout"`
	// LeakThreshold reports leases held longer than this. Zero disables it.
	LeakThreshold time.Duration `koanf:"leak_threshold"`
}

// DSN renders the go-sql-driver/mysql data source name for c.
func (c Config) DSN() string {
	return c.mysqlConfig().FormatDSN()
}

func (c Config) mysqlConfig() *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = c.Username
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	cfg.DBName = c.Database
	charset := c.Charset
	if charset == "" {
		charset = DefaultCharset
	}
	cfg.Params = map[string]string{"charset": charset}
	// DATETIME 列以 time.Time 返回，交给 codec 处理
	cfg.ParseTime = true
	return cfg
}

// Option configures a Pool.
type Option func(p *Pool)

// LeakHandler is called for every lease held past the leak threshold.
type LeakHandler func(l LeakInfo)

// LeakInfo describes a lease that has been held for too long.
type LeakInfo struct {
	ID         string
	AcquiredAt time.Time
	HeldFor    time.Duration
}

type Pool struct {
	db       *sql.DB
	minIdle  int
	maxTotal int

	outstanding    atomic.Int64
	acquireTimeout time.Duration

	logger *slog.Logger

	// 记录借出的连接，过期即视为泄漏
	leases        *cache.Cache
	leakThreshold time.Duration
	onLeak        LeakHandler

	registerer prometheus.Registerer
	metrics    *metrics

	closeOnce sync.Once
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = l
	}
}

func WithAcquireTimeout(d time.Duration) Option {
	return func(p *Pool) {
		p.acquireTimeout = d
	}
}

// WithLeakDetection reports leases held longer than threshold through the
// logger and, when non-nil, handler.
func WithLeakDetection(threshold time.Duration, handler LeakHandler) Option {
	return func(p *Pool) {
		p.leakThreshold = threshold
		p.onLeak = handler
	}
}

// WithRegisterer exposes pool metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *Pool) {
		p.registerer = reg
	}
}

// Open builds the MySQL connector from cfg and returns a ready pool with
// cfg.MinIdle connections already established.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Pool, error) {
	connector, err := mysql.NewConnector(cfg.mysqlConfig())
	if err != nil {
		return nil, err
	}
	opts = append([]Option{
		WithAcquireTimeout(cfg.AcquireTimeout),
		WithLeakDetection(cfg.LeakThreshold, nil),
	}, opts...)
	p, err := New(sql.OpenDB(connector), cfg.MinIdle, cfg.MaxTotal, opts...)
	if err != nil {
		return nil, err
	}
	if err = p.warmUp(ctx); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// New wraps an existing handle. It is used by Open and by tests that run
// against sqlmock or SQLite.
func New(db *sql.DB, minIdle, maxTotal int, opts ...Option) (*Pool, error) {
	if db == nil {
		return nil, errs.ErrPoolNotInitialized
	}
	if maxTotal <= 0 || minIdle < 0 || minIdle > maxTotal {
		return nil, errs.ErrInvalidPoolSize
	}
	p := &Pool{
		db:       db,
		minIdle:  minIdle,
		maxTotal: maxTotal,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	db.SetMaxOpenConns(maxTotal)
	// 归还的连接全部保留为空闲连接
	db.SetMaxIdleConns(maxTotal)

	if p.leakThreshold > 0 {
		p.leases = cache.New(p.leakThreshold, p.leakThreshold/2)
		p.leases.OnEvicted(p.evicted)
	}
	if p.registerer != nil {
		m := newMetrics(p)
		if err := m.register(p.registerer); err != nil {
			return nil, err
		}
		p.metrics = m
	}
	return p, nil
}

// warmUp opens minIdle connections and puts them back into the idle set.
func (p *Pool) warmUp(ctx context.Context) error {
	conns := make([]*sql.Conn, 0, p.minIdle)
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()
	for i := 0; i < p.minIdle; i++ {
		c, err := p.db.Conn(ctx)
		if err != nil {
			return err
		}
		conns = append(conns, c)
		if err = c.PingContext(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Acquire leases a connection, blocking while MaxTotal leases are outstanding.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if p == nil || p.db == nil {
		return nil, errs.ErrPoolNotInitialized
	}
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	start := time.Now()
	conn, err := p.db.Conn(ctx)
	if p.metrics != nil {
		p.metrics.observeAcquire(time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}

	l := &Lease{
		id:         uuid.New().String(),
		conn:       conn,
		pool:       p,
		acquiredAt: time.Now(),
	}
	p.outstanding.Add(1)
	if p.leases != nil {
		p.leases.Set(l.id, l, cache.DefaultExpiration)
	}
	return l, nil
}

// Release returns l to the idle set. Releasing twice returns ErrLeaseReleased.
func (p *Pool) Release(l *Lease) error {
	if l == nil {
		return errs.ErrLeaseReleased
	}
	// 计数属于借出连接的那个连接池
	if l.pool != p {
		return errs.ErrForeignLease
	}
	if !l.released.CompareAndSwap(false, true) {
		return errs.ErrLeaseReleased
	}
	if p.leases != nil {
		p.leases.Delete(l.id)
	}
	p.outstanding.Add(-1)
	return l.conn.Close()
}

// With runs fn on a leased connection and releases it whatever fn returns.
func (p *Pool) With(ctx context.Context, fn func(l *Lease) error) (err error) {
	l, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := p.Release(l); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn(l)
}

// Outstanding reports the number of leases not yet released.
func (p *Pool) Outstanding() int {
	return int(p.outstanding.Load())
}

func (p *Pool) MinIdle() int {
	return p.minIdle
}

func (p *Pool) MaxTotal() int {
	return p.maxTotal
}

// Stats returns the statistics of the underlying database/sql pool.
func (p *Pool) Stats() sql.DBStats {
	return p.db.Stats()
}

// Close closes the underlying handle. Outstanding leases are not reclaimed.
func (p *Pool) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.metrics != nil && p.registerer != nil {
			p.metrics.unregister(p.registerer)
		}
		err = p.db.Close()
	})
	return err
}

// evicted 在缓存过期或者删除时被调用，已经归还的连接忽略
func (p *Pool) evicted(id string, val any) {
	l, ok := val.(*Lease)
	if !ok || l.released.Load() {
		return
	}
	info := LeakInfo{
		ID:         id,
		AcquiredAt: l.acquiredAt,
		HeldFor:    time.Since(l.acquiredAt),
	}
	p.logger.Warn("connection lease held past leak threshold",
		slog.String("lease", info.ID),
		slog.Duration("held_for", info.HeldFor),
		slog.Duration("threshold", p.leakThreshold))
	if p.onLeak != nil {
		p.onLeak(info)
	}
}
