package main

import (
	"bytes"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"takumi.dev/go/web/internal/obs"
	"takumi.dev/go/web/webx"
)

func main() {
	cfgPath := flag.String("config", "webx.yaml", "path to YAML config file")
	flag.Parse()

	_ = godotenv.Load(".env")
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := buildLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer zlog.Sync()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router := webx.NewRouter()
	registerRoutes(router, registry, cfg)

	srv := &webx.Server{
		Addr:           cfg.Addr,
		Router:         router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		Logger:         obs.NewZapLogger(zlog),
		Meter:          obs.NewPromMeter(registry),
	}
	srv.Use(webx.AccessLog(obs.NewZapLogger(zlog)))
	if cfg.RatePerSecond > 0 {
		srv.Use(webx.RateLimit(rate.Limit(cfg.RatePerSecond), cfg.RateBurst))
	}
	srv.OnBeforeStart(func() error {
		zlog.Info("server starting", zap.String("addr", cfg.Addr))
		return nil
	})
	srv.OnAfterStop(func() {
		zlog.Info("server stopped")
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		zlog.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			zlog.Warn("shutdown incomplete", zap.Error(err))
		}
		<-errCh
	case err := <-errCh:
		if err != nil && err != webx.ErrServerClosed {
			zlog.Fatal("serve failed", zap.Error(err))
		}
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func registerRoutes(r *webx.Router, registry *prometheus.Registry, cfg Config) {
	r.GET("/healthz", func(c *webx.Context) {
		c.JSON(200, map[string]string{"status": "ok"})
	})

	r.GET("/hello/:name", func(c *webx.Context) {
		c.Text(200, "hello "+c.Param("name"))
	})

	r.POST("/echo", func(c *webx.Context) {
		var v any
		if err := c.Request().JSON(&v); err != nil {
			c.AbortWithError(webx.NewError(400, err))
			return
		}
		c.JSON(200, v)
	})

	r.GET("/metrics", func(c *webx.Context) {
		mfs, err := registry.Gather()
		if err != nil {
			c.AbortWithError(webx.NewError(500, err))
			return
		}
		format := expfmt.NewFormat(expfmt.TypeTextPlain)
		var buf bytes.Buffer
		enc := expfmt.NewEncoder(&buf, format)
		for _, mf := range mfs {
			if err := enc.Encode(mf); err != nil {
				c.AbortWithError(webx.NewError(500, err))
				return
			}
		}
		c.Blob(200, string(format), buf.Bytes())
	})

	if cfg.StaticDir != "" {
		if err := r.Static("/static", cfg.StaticDir); err != nil {
			log.Fatalf("mount static dir: %v", err)
		}
	}

	if cfg.AdminUser != "" && cfg.AdminPass != "" {
		auth := webx.BasicAuth(map[string]string{cfg.AdminUser: cfg.AdminPass}, webx.WithRealm("webx admin"))
		r.GET("/admin/whoami", func(c *webx.Context) {
			c.JSON(200, map[string]string{"user": c.GetString(webx.AuthUserKey)})
		}, auth)
	}
}
