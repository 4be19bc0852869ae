package main

import (
	"context"
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"meptrack-api/api"
	"meptrack-api/detect"
	"meptrack-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	cfg := storage.Config{
		ConnectionString: os.Getenv("STORAGE_CONNECTION_STRING"),
		MembersTable:     os.Getenv("MEPS_TABLE"),
		ChangesTable:     os.Getenv("CHANGES_TABLE"),
		SummaryQueue:     os.Getenv("CHANGE_SUMMARY_QUEUE"),
	}
	if cfg.ConnectionString == "" || cfg.MembersTable == "" || cfg.ChangesTable == "" {
		log.Fatal("missing storage config")
	}
	if v := os.Getenv("MEPS_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("invalid MEPS_PAGE_SIZE: %v", err)
		}
		if n <= 0 {
			log.Fatalf("invalid MEPS_PAGE_SIZE: must be greater than zero")
		}
		cfg.PageSize = int32(n)
	}
	base, err := storage.New(cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	if init, err := strconv.ParseBool(os.Getenv("STORAGE_INIT")); err == nil && init {
		if err := base.EnsureCreated(context.Background()); err != nil {
			log.Fatalf("storage init: %v", err)
		}
	}

	var store interface {
		detect.Store
		api.Storage
	} = base

	var lease detect.Lease
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		rc := redis.NewClient(redisOptions(redisConn))

		cacheTTL := 5 * time.Minute
		if v := os.Getenv("CACHE_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid CACHE_TTL: %v", err)
			}
			cacheTTL = d
		}
		store = storage.NewCache(base, rc, cacheTTL)

		if guarded, err := strconv.ParseBool(os.Getenv("DETECT_LEASE")); err == nil && guarded {
			leaseTTL := 2 * time.Minute
			if v := os.Getenv("DETECT_LEASE_TTL"); v != "" {
				d, err := time.ParseDuration(v)
				if err != nil || d <= 0 {
					log.Fatalf("invalid DETECT_LEASE_TTL: %v", err)
				}
				leaseTTL = d
			}
			lease = detect.NewRedisLease(rc, leaseTTL)
		}
	}

	logger := log.New()
	engine := detect.NewEngine(store, lease, logger)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	e.Use(api.GzipRequestMiddleware())

	api.Register(e, store, engine, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// redisOptions understands both URL-form connection strings and the
// comma-separated "host:port,password=...,ssl=true" form Azure hands out.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
