package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/freight-dispatch/internal/config"
	geomath "github.com/example/freight-dispatch/internal/geo"
	"github.com/example/freight-dispatch/internal/logging"
	"github.com/example/freight-dispatch/internal/models"
	"github.com/example/freight-dispatch/internal/storage"
	"github.com/example/freight-dispatch/internal/tracker"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_positions_consumed_total",
		Help: "Total vehicle position messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_positions_invalid_total",
		Help: "Total invalid position messages received",
	})
	transitionsApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_transitions_applied_total",
		Help: "Total geofence transitions persisted",
	})
	redisUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_updates_total",
		Help: "Total successful redis fleet updates",
	})
	redisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_errors_total",
		Help: "Total redis errors",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, transitionsApplied, redisUpdates, redisErrors)
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}
	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel, "consumer")

	brokers := cfg.KafkaBrokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	redisAddr := cfg.RedisAddr
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rc := redis.NewClient(&redis.Options{Addr: redisAddr, Password: cfg.RedisPassword})
	radapter := &redisAdapter{c: rc, key: cfg.RedisFleetKey}

	var store storage.LoadStore
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		store = ps
	} else {
		store = storage.NewMemoryStore()
	}
	engine := tracker.New(logger)

	// metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		log.Printf("metrics/health listening on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", brokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff.String())
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var u models.LocationUpdate
		if err := json.Unmarshal(m.Value, &u); err != nil {
			msgsInvalid.Inc()
			logger.Warn("invalid message", "error", err)
			continue
		}
		if err := geomath.Validate(u.Loc); err != nil {
			msgsInvalid.Inc()
			logger.Warn("invalid coordinates", "vehicle_id", u.VehicleID, "error", err)
			continue
		}

		if err := updateFleetWithRetry(ctx, radapter, u, 3, 200*time.Millisecond); err != nil {
			redisErrors.Inc()
			logger.Warn("redis fleet update failed", "vehicle_id", u.VehicleID, "error", err)
		} else {
			redisUpdates.Inc()
		}

		applied, err := applyToLoad(engine, store, u)
		if err != nil {
			logger.Warn("apply position failed", "vehicle_id", u.VehicleID, "error", err)
			continue
		}
		if applied {
			transitionsApplied.Inc()
		}
	}
}

// applyToLoad resolves the active load for a sample and runs the geofence
// engine against it. A version conflict means another writer got there
// first; re-read and re-evaluate, the gates make duplicates a no-op.
func applyToLoad(engine *tracker.Engine, store storage.LoadStore, u models.LocationUpdate) (bool, error) {
	load, err := resolveLoad(store, u)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil // vehicle pinging between loads
		}
		return false, err
	}
	const maxAttempts = 3
	for attempt := 0; ; attempt++ {
		res, err := engine.OnPositionUpdate(load, u.Loc)
		if err != nil {
			return false, err
		}
		if !res.Changed {
			return false, nil
		}
		err = store.UpdateLoad(load)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) || attempt == maxAttempts-1 {
			return false, err
		}
		fresh, gerr := store.GetLoad(load.ID)
		if gerr != nil {
			return false, gerr
		}
		load = fresh
	}
}

func resolveLoad(store storage.LoadStore, u models.LocationUpdate) (*models.Load, error) {
	if u.LoadID != "" {
		return store.GetLoad(u.LoadID)
	}
	return store.ActiveLoadForVehicle(u.VehicleID)
}

// FleetUpdater defines the small subset of redis operations we need for
// tests and production.
type FleetUpdater interface {
	GeoAdd(ctx context.Context, loc *redis.GeoLocation) error
	HSet(ctx context.Context, key string, values map[string]interface{}) error
}

type redisAdapter struct {
	c   *redis.Client
	key string
}

func (r *redisAdapter) GeoAdd(ctx context.Context, loc *redis.GeoLocation) error {
	_, err := r.c.GeoAdd(ctx, r.key, loc).Result()
	return err
}

func (r *redisAdapter) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	_, err := r.c.HSet(ctx, key, values).Result()
	return err
}

// updateFleetWithRetry writes the vehicle position and metadata to redis
// with retry/backoff.
func updateFleetWithRetry(ctx context.Context, rc FleetUpdater, u models.LocationUpdate, attempts int, delay time.Duration) error {
	for i := 0; i < attempts; i++ {
		if err := rc.GeoAdd(ctx, &redis.GeoLocation{Longitude: u.Loc.Lng, Latitude: u.Loc.Lat, Name: u.VehicleID}); err != nil {
			if i == attempts-1 {
				return err
			}
			time.Sleep(delay)
			delay *= 2
			continue
		}
		if err := rc.HSet(ctx, "vehicle:meta:"+u.VehicleID, map[string]interface{}{"speed_mph": u.SpeedMPH, "heading": u.Heading}); err != nil {
			if i == attempts-1 {
				return err
			}
			time.Sleep(delay)
			delay *= 2
			continue
		}
		return nil
	}
	return nil
}
