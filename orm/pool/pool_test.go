package pool

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/streamDream/mysql-stream/orm/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryDB(t *testing.T, name string) *sql.DB {
	db, err := sql.Open("sqlite3", "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestNew(t *testing.T) {
	testCases := []struct {
		name     string
		minIdle  int
		maxTotal int
		nilDB    bool
		wantErr  error
	}{
		{name: "ok", minIdle: 1, maxTotal: 4},
		{name: "no idle", minIdle: 0, maxTotal: 1},
		{name: "zero total", minIdle: 0, maxTotal: 0, wantErr: errs.ErrInvalidPoolSize},
		{name: "negative idle", minIdle: -1, maxTotal: 4, wantErr: errs.ErrInvalidPoolSize},
		{name: "idle over total", minIdle: 5, maxTotal: 4, wantErr: errs.ErrInvalidPoolSize},
		{name: "nil db", maxTotal: 4, nilDB: true, wantErr: errs.ErrPoolNotInitialized},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var db *sql.DB
			if !tc.nilDB {
				db = memoryDB(t, "pool_new")
			}
			p, err := New(db, tc.minIdle, tc.maxTotal)
			assert.Equal(t, tc.wantErr, err)
			if err != nil {
				return
			}
			assert.Equal(t, tc.minIdle, p.MinIdle())
			assert.Equal(t, tc.maxTotal, p.MaxTotal())
			assert.Equal(t, tc.maxTotal, p.Stats().MaxOpenConnections)
		})
	}
}

func TestPool_OutstandingLeases(t *testing.T) {
	p, err := New(memoryDB(t, "pool_outstanding"), 1, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Outstanding())

	l, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.Outstanding())
	assert.NotEmpty(t, l.ID())
	assert.False(t, l.Released())

	require.NoError(t, p.Release(l))
	assert.Equal(t, 0, p.Outstanding())
	assert.True(t, l.Released())
}

func TestPool_NeverExceedsMaxTotal(t *testing.T) {
	p, err := New(memoryDB(t, "pool_bounded"), 1, 4)
	require.NoError(t, err)

	held := make([]*Lease, 0, 4)
	for i := 0; i < 4; i++ {
		l, err := p.Acquire(context.Background())
		require.NoError(t, err)
		held = append(held, l)
	}
	assert.Equal(t, 4, p.Outstanding())

	// 连接已经全部借出，第五次获取只能等到超时
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 4, p.Outstanding())

	for _, l := range held {
		require.NoError(t, l.Release())
	}
	assert.Equal(t, 0, p.Outstanding())
}

func TestPool_ConcurrentAcquire(t *testing.T) {
	p, err := New(memoryDB(t, "pool_concurrent"), 1, 4)
	require.NoError(t, err)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		peak int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.With(context.Background(), func(l *Lease) error {
				mu.Lock()
				if n := p.Outstanding(); n > peak {
					peak = n
				}
				mu.Unlock()
				return l.PingContext(context.Background())
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak, 4)
	assert.Equal(t, 0, p.Outstanding())
}

func TestPool_NotInitialized(t *testing.T) {
	var p *Pool
	_, err := p.Acquire(context.Background())
	assert.Equal(t, errs.ErrPoolNotInitialized, err)

	_, err = (&Pool{}).Acquire(context.Background())
	assert.Equal(t, errs.ErrPoolNotInitialized, err)
}

func TestPool_DoubleRelease(t *testing.T) {
	p, err := New(memoryDB(t, "pool_double"), 0, 1)
	require.NoError(t, err)

	l, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, l.Release())
	assert.Equal(t, errs.ErrLeaseReleased, l.Release())
	assert.Equal(t, errs.ErrLeaseReleased, p.Release(nil))
	assert.Equal(t, 0, p.Outstanding())
}

func TestPool_ReleaseForeignLease(t *testing.T) {
	p1, err := New(memoryDB(t, "pool_foreign_1"), 0, 1)
	require.NoError(t, err)
	p2, err := New(memoryDB(t, "pool_foreign_2"), 0, 1)
	require.NoError(t, err)

	l, err := p1.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, errs.ErrForeignLease, p2.Release(l))
	assert.False(t, l.Released())
	assert.Equal(t, 1, p1.Outstanding())
	assert.Equal(t, 0, p2.Outstanding())

	require.NoError(t, p1.Release(l))
	assert.Equal(t, 0, p1.Outstanding())
}

func TestPool_With(t *testing.T) {
	p, err := New(memoryDB(t, "pool_with"), 0, 2)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = p.With(context.Background(), func(l *Lease) error {
		assert.Equal(t, 1, p.Outstanding())
		return boom
	})
	assert.Equal(t, boom, err)
	assert.Equal(t, 0, p.Outstanding())

	err = p.With(context.Background(), func(l *Lease) error {
		_, err := l.ExecContext(context.Background(), "CREATE TABLE IF NOT EXISTS t_with (id INTEGER PRIMARY KEY)")
		return err
	})
	assert.NoError(t, err)
	assert.Equal(t, 0, p.Outstanding())
}

func TestPool_LeakDetection(t *testing.T) {
	leaks := make(chan LeakInfo, 1)
	p, err := New(memoryDB(t, "pool_leak"), 0, 2,
		WithLeakDetection(40*time.Millisecond, func(info LeakInfo) {
			leaks <- info
		}))
	require.NoError(t, err)

	released, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, released.Release())

	leaked, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer func() {
		_ = leaked.Release()
	}()

	select {
	case info := <-leaks:
		assert.Equal(t, leaked.ID(), info.ID)
		assert.GreaterOrEqual(t, info.HeldFor, 40*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("leaked lease was not reported")
	}
	// 泄漏只做检测，不会回收连接
	assert.Equal(t, 1, p.Outstanding())
	assert.False(t, leaked.Released())
}

func TestPool_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := New(memoryDB(t, "pool_metrics"), 0, 2, WithRegisterer(reg))
	require.NoError(t, err)

	l, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.outstanding))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.acquires.WithLabelValues("ok")))
	require.NoError(t, l.Release())
	assert.Equal(t, float64(0), testutil.ToFloat64(p.metrics.outstanding))

	expected := `
# HELP mysqlstream_pool_outstanding_leases Connections leased and not yet released.
# TYPE mysqlstream_pool_outstanding_leases gauge
mysqlstream_pool_outstanding_leases 0
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected), "mysqlstream_pool_outstanding_leases")
	assert.NoError(t, err)

	require.NoError(t, p.Close())
	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// 注册到一半失败的时候，已经注册的 collector 会被撤销
func TestPool_MetricsRegisterConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	blocker := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "idle_connections",
		Help:      "Connections sitting in the idle set.",
	})
	require.NoError(t, reg.Register(blocker))

	_, err := New(memoryDB(t, "pool_metrics_conflict"), 0, 2, WithRegisterer(reg))
	var are prometheus.AlreadyRegisteredError
	assert.True(t, errors.As(err, &are))
	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// outstanding 和 open 已经撤销，再次注册不会冲突
	reg.Unregister(blocker)
	p, err := New(memoryDB(t, "pool_metrics_conflict"), 0, 2, WithRegisterer(reg))
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestConfig_DSN(t *testing.T) {
	testCases := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "default charset",
			cfg: Config{
				Host:     "127.0.0.1",
				Port:     3306,
				Username: "root",
				Password: "root",
			},
			want: "root:root@tcp(127.0.0.1:3306)/?parseTime=true&charset=utf8mb4",
		},
		{
			name: "database and charset",
			cfg: Config{
				Host:     "db.local",
				Port:     13306,
				Username: "chong",
				Password: "secret",
				Database: "chong",
				Charset:  "utf8",
			},
			want: "chong:secret@tcp(db.local:13306)/chong?parseTime=true&charset=utf8",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cfg.DSN())
		})
	}
}
