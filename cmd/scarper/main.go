package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/scarper/internal/app"
	"github.com/hyperifyio/scarper/internal/pipeline"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	opts, err := app.ParseArgs("scarper", os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(2)
	}
	if opts.Version {
		fmt.Println(app.VersionString())
		return
	}

	if opts.Config.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

// run answers opts.Query once when set, otherwise serves HTTP until ctx is
// cancelled.
func run(ctx context.Context, opts app.Options, stdout io.Writer) error {
	a, err := app.New(ctx, opts.Config)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	if opts.Query == "" {
		return a.Serve(ctx)
	}

	req := pipeline.Request{Query: opts.Query, TopK: opts.TopK}
	if opts.ImagePath != "" {
		img, err := os.ReadFile(opts.ImagePath)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		req.ImageBase64 = base64.StdEncoding.EncodeToString(img)
	}
	resp, err := a.Query(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
