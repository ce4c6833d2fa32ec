package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/ArshadYameen/flex-living-dashboard/internal/adapters/backend"
	"github.com/ArshadYameen/flex-living-dashboard/internal/adapters/observability"
	redisad "github.com/ArshadYameen/flex-living-dashboard/internal/adapters/redis"
	"github.com/ArshadYameen/flex-living-dashboard/internal/app"
	"github.com/ArshadYameen/flex-living-dashboard/internal/domain"
	"github.com/ArshadYameen/flex-living-dashboard/internal/shared"
	mysqlrepo "github.com/ArshadYameen/flex-living-dashboard/internal/storage/mysql"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code: 1 when any listing failed to sync.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cfg := shared.Load()

	// initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().
		Str("base", cfg.BackendBase).
		Int("workers", cfg.SyncWorkers).
		Msg("syncer starting")

	client, err := backend.New(cfg.BackendBase, cfg.BackendRPS, cfg.BackendTimeout, cfg.SyncTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize backend client")
	}

	var cache domain.Cache
	if cfg.RedisAddr != "" {
		rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, skipping cache invalidation")
		} else {
			cache = rc
		}
	}

	var journal domain.Journal = app.NopJournal{}
	if cfg.MySQLDSN != "" {
		db, err := mysqlrepo.Open(ctx, cfg.MySQLDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("journal database unavailable")
		}
		defer db.Close()
		if err := mysqlrepo.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("journal migration failed")
		}
		log.Info().Msg("db ping ok")
		journal = mysqlrepo.New(db)
	}
	cmd := app.NewCommandService(client, cache, journal)

	ids := cfg.SyncListingIDs
	if len(ids) == 0 {
		ls, err := client.ListListings(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("list listings failed")
		}
		for _, l := range ls {
			ids = append(ids, l.ID)
		}
	}

	start := time.Now()
	sem := semaphore.NewWeighted(int64(cfg.SyncWorkers))
	var (
		wg            sync.WaitGroup
		failed, added atomic.Int64
	)

	for _, id := range ids {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("interrupted, not starting remaining syncs")
			break
		}

		wg.Add(1)
		go func(listingID int64) {
			defer wg.Done()
			defer sem.Release(1)

			res, err := cmd.SyncListing(ctx, listingID)
			if err != nil {
				failed.Add(1)
				log.Warn().Int64("listing_id", listingID).
					Str("detail", domain.RejectionDetail(err, err.Error())).Msg("sync failed")
				return
			}
			added.Add(int64(res.NewReviewsAdded))
			log.Info().Int64("listing_id", listingID).Int("added", res.NewReviewsAdded).Msg("sync ok")
		}(id)
	}

	wg.Wait()
	log.Info().
		Int("listings", len(ids)).
		Int64("added", added.Load()).
		Int64("failed", failed.Load()).
		Dur("took", time.Since(start)).
		Msg("sync completed")
	if failed.Load() > 0 {
		return 1
	}
	return 0
}
