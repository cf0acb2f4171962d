// Command mysqlstream runs ad-hoc statements through the orm executor.
//
//	mysqlstream [flags] query    "SELECT * FROM t_user WHERE id = ?" 1
//	mysqlstream [flags] exec     "UPDATE t_user SET age = ? WHERE id = ?" 18 1
//	mysqlstream [flags] buildsql "SELECT * FROM t_user WHERE name = ?" "O'Neil"
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/streamDream/mysql-stream/config"
	"github.com/streamDream/mysql-stream/orm"
	"github.com/streamDream/mysql-stream/orm/middlewares/opentelemetry"
	ormprom "github.com/streamDream/mysql-stream/orm/middlewares/prometheus"
	"github.com/streamDream/mysql-stream/orm/middlewares/querylog"
	"github.com/streamDream/mysql-stream/orm/pool"
	"github.com/streamDream/mysql-stream/telemetry"
	"go.opentelemetry.io/otel"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("mysqlstream failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(argv []string) error {
	fs := pflag.NewFlagSet("mysqlstream", pflag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", "", "yaml config file")
	metricsAddr := fs.String("metrics-addr", "", "serve /metrics on this address until interrupted")
	verbose := fs.BoolP("verbose", "v", false, "log every statement")
	config.BindFlags(fs)
	if err := fs.Parse(argv); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 2 {
		return errors.New("usage: mysqlstream [flags] query|exec|buildsql SQL [ARGS...]")
	}
	cmd, query := rest[0], rest[1]
	args := make([]any, 0, len(rest)-2)
	for _, a := range rest[2:] {
		args = append(args, a)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*cfgPath, fs)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// buildsql 不需要连接数据库
	if cmd == "buildsql" {
		db, err := orm.NewDB(nil, orm.DBWithLogger(logger))
		if err != nil {
			return err
		}
		s, err := db.BuildSQL(query, args...)
		if err != nil {
			return err
		}
		fmt.Println(s)
		return nil
	}

	tp, err := telemetry.NewTracerProvider(cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("shutdown tracer provider", slog.Any("err", err))
		}
	}()
	otel.SetTracerProvider(tp)

	reg := prometheus.NewRegistry()
	p, err := pool.Open(ctx, cfg.Pool, pool.WithLogger(logger), pool.WithRegisterer(reg))
	if err != nil {
		return fmt.Errorf("open pool: %w", err)
	}
	defer func() {
		_ = p.Close()
	}()

	db, err := orm.NewDB(p,
		orm.DBWithLogger(logger),
		orm.DBWithMiddlewares(
			querylog.NewBuilder().LogFunc(func(query string, args []any) {
				logger.Info("sql", slog.String("query", query), slog.Any("args", args))
			}).Build(),
			ormprom.MiddlewareBuilder{
				Namespace:  "mysqlstream",
				Subsystem:  "orm",
				Name:       "query_duration_ms",
				Help:       "statement latency in milliseconds",
				Registerer: reg,
			}.Build(),
			opentelemetry.MiddlewareBuilder{}.Build(),
		))
	if err != nil {
		return err
	}

	switch cmd {
	case "query":
		rows, err := db.QueryMultiRows(ctx, query, args...)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		for _, row := range rows {
			if err = enc.Encode(row); err != nil {
				return err
			}
		}
	case "exec":
		res := db.Execute(ctx, query, args...)
		if err = res.Err(); err != nil {
			return err
		}
		affected, _ := res.RowsAffected()
		lastID, _ := res.LastInsertId()
		fmt.Printf("rows affected: %d, last insert id: %d\n", affected, lastID)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	if *metricsAddr == "" {
		return nil
	}
	srv := &http.Server{Addr: *metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	logger.Warn("serving metrics", slog.String("addr", *metricsAddr))
	if err = srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
