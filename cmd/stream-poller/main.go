package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/united-manufacturing-hub/umh-utils/env"
	"github.com/united-manufacturing-hub/umh-utils/logger"
	"go.uber.org/zap"

	"github.com/entitysync/entitysync/internal"
	"github.com/entitysync/entitysync/pkg/offsets"
	"github.com/entitysync/entitysync/pkg/poller"
)

const (
	backoffSlotTime = 100 * time.Millisecond
	backoffMaximum  = 1 * time.Minute
)

func main() {
	initLogging()
	initPrometheus()

	cfg := configFromEnv()

	repo, cleanup := newOffsetsRepository(cfg)
	defer cleanup()

	consumer, err := poller.NewConsumer(cfg)
	if err != nil {
		zap.S().Fatalf("Failed to create kafka consumer: %s", err)
	}
	p, err := poller.New(consumer, cfg, repo)
	if err != nil {
		zap.S().Fatalf("Failed to create poller: %s", err)
	}

	initHealthCheck()

	shutdown := internal.NewGracefulShutdown(func() error {
		return p.Close()
	})

	run(p, repo, shutdown)
	shutdown.Wait()
}

// run is the at-least-once consumption loop: poll a batch, act on it, then
// commit the reached offsets. Retryable failures back off and retry the whole
// call; a failed commit retries with the same position, accepting redelivery
// over loss.
func run(p *poller.Poller, repo offsets.Repository, shutdown internal.GracefulShutdownHandler) {
	ctx := context.Background()
	pollRetry := internal.Retrier{SlotTime: backoffSlotTime, Maximum: backoffMaximum}

	for !shutdown.ShuttingDown() {
		batch, err := p.NextBatch(ctx)
		if err != nil {
			if err == poller.ErrClosed {
				return
			}
			if poller.IsRetryable(err) {
				delay := pollRetry.Backoff()
				zap.S().Warnf("Retryable poll failure (attempt %d, backing off %s): %s", pollRetry.Attempts(), delay, err)
				time.Sleep(delay)
				continue
			}
			zap.S().Fatalf("Fatal poll failure: %s", err)
		}
		pollRetry.Reset()

		for _, c := range batch.Changes {
			// Re-indexing is the downstream collaborator's job; this
			// binary only reports what changed.
			zap.S().Infof("Change %s", c)
		}

		pos := p.CurrentOffsets()
		storeRetry := internal.Retrier{SlotTime: backoffSlotTime, Maximum: backoffMaximum}
		for {
			err := repo.Store(ctx, pos)
			if err == nil {
				break
			}
			if shutdown.ShuttingDown() {
				zap.S().Errorf("Offsets not committed before shutdown: %s", err)
				return
			}
			delay := storeRetry.Backoff()
			zap.S().Warnf("Failed to store offsets (attempt %d, backing off %s): %s", storeRetry.Attempts(), delay, err)
			time.Sleep(delay)
		}
	}
}

func configFromEnv() poller.Config {
	brokers, err := env.GetAsString("KAFKA_BROKERS", true, "")
	if err != nil {
		zap.S().Fatal(err)
	}
	groupID, err := env.GetAsString("CONSUMER_GROUP_ID", true, "")
	if err != nil {
		zap.S().Fatal(err)
	}
	domain, err := env.GetAsString("TARGET_DOMAIN", true, "")
	if err != nil {
		zap.S().Fatal(err)
	}
	namespaces, err := env.GetAsString("ALLOWED_NAMESPACES", false, "")
	if err != nil {
		zap.S().Warn(err)
	}
	clusters, err := env.GetAsString("CLUSTER_NAMES", false, "")
	if err != nil {
		zap.S().Warn(err)
	}
	maxBatchSize, err := env.GetAsInt("MAX_BATCH_SIZE", false, 1000)
	if err != nil {
		zap.S().Warn(err)
	}
	pollTimeoutMs, err := env.GetAsInt("POLL_TIMEOUT_MS", false, 1000)
	if err != nil {
		zap.S().Warn(err)
	}
	startTimeRaw, err := env.GetAsString("START_TIME", true, "")
	if err != nil {
		zap.S().Fatal(err)
	}
	startTime, err := parseStartTime(startTimeRaw)
	if err != nil {
		zap.S().Fatalf("Invalid START_TIME: %s", err)
	}

	return poller.Config{
		Brokers:           brokers,
		ConsumerGroupID:   groupID,
		TargetDomain:      domain,
		AllowedNamespaces: parseNamespaces(namespaces),
		MaxBatchSize:      maxBatchSize,
		PollTimeout:       time.Duration(pollTimeoutMs) * time.Millisecond,
		StartTime:         startTime,
		ClusterNames:      splitList(clusters),
	}
}

// parseStartTime rejects an empty start time instead of defaulting to "now":
// loading offsets as of the current instant would mark every persisted resume
// point stale, re-seek at startup time and silently skip everything between
// the last commit and the restart.
func parseStartTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("START_TIME must be set to a fixed RFC3339 instant")
	}
	startTime, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("START_TIME %q: %w", raw, err)
	}
	return startTime, nil
}

func parseNamespaces(raw string) []int {
	var out []int
	for _, part := range splitList(raw) {
		ns, err := strconv.Atoi(part)
		if err != nil {
			zap.S().Fatalf("Invalid namespace %q in ALLOWED_NAMESPACES: %s", part, err)
		}
		out = append(out, ns)
	}
	return out
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func newOffsetsRepository(cfg poller.Config) (offsets.Repository, func()) {
	storage, err := env.GetAsString("OFFSET_STORAGE", false, "memory")
	if err != nil {
		zap.S().Warn(err)
	}
	switch storage {
	case "postgres":
		dsn, err := env.GetAsString("POSTGRES_DSN", true, "")
		if err != nil {
			zap.S().Fatal(err)
		}
		repo, err := offsets.NewPostgresRepository(context.Background(), dsn, cfg.ConsumerGroupID)
		if err != nil {
			zap.S().Fatalf("Failed to connect offsets store: %s", err)
		}
		return repo, repo.Close
	case "memory":
		zap.S().Warnf("Using in-memory offsets storage, progress will not survive a restart")
		return offsets.NewMemoryRepository(), func() {}
	default:
		zap.S().Fatalf("Unknown OFFSET_STORAGE %q", storage)
		return nil, nil
	}
}

func initLogging() {
	logLevel, _ := env.GetAsString("LOGGING_LEVEL", false, "PRODUCTION") //nolint:errcheck
	_ = logger.New(logLevel)
}

func initPrometheus() {
	metricsPath := "/metrics"
	metricsPort := ":2112"
	zap.S().Debugf("Setting up metrics %s %v", metricsPath, metricsPort)

	http.Handle(metricsPath, promhttp.Handler())
	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe(metricsPort, nil)
		if err != nil {
			zap.S().Errorf("Error starting metrics: %s", err)
		}
	}()
}

func initHealthCheck() {
	zap.S().Debugf("Setting up healthcheck")

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(1000000))
	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe("0.0.0.0:8086", health)
		if err != nil {
			zap.S().Errorf("Error starting healthcheck: %s", err)
		}
	}()
}
