package main

import (
	"flag"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ArshadYameen/flex-living-dashboard/internal/adapters/observability"
	"github.com/ArshadYameen/flex-living-dashboard/internal/backendmock"
)

func main() {
	var (
		addr = flag.String("addr", ":8000", "address to listen on")
		data = flag.String("data", "internal/backendmock/testdata/seed.json", "path to seed data file")
		env  = flag.String("env", "dev", "log format: dev or prod")
	)
	flag.Parse()

	log.Logger = observability.NewLogger(*env)

	seed, err := backendmock.Load(*data)
	if err != nil {
		log.Fatal().Err(err).Str("data", *data).Msg("load seed failed")
	}
	log.Info().
		Int("listings", len(seed.Listings)).
		Int("reviews", len(seed.Reviews)).
		Msg("seed loaded")

	srv := &http.Server{
		Addr:              *addr,
		Handler:           backendmock.New(seed),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info().Str("addr", *addr).Msg("mock backend listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}
}
