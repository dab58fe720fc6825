// Command callcenter runs the WhatsApp ticket pipeline: the HTTP API with
// the provider webhook, the background task worker, or the seeders.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/pwviptbl/CallCenter/internal/app"
	"github.com/pwviptbl/CallCenter/internal/config"
	"github.com/pwviptbl/CallCenter/internal/version"
)

var modes = []string{"api", "worker", "seed", "seed-demo"}

func main() {
	var (
		mode        = flag.String("mode", "", "run mode: api, worker, seed or seed-demo (overrides APP_MODE)")
		envFile     = flag.String("env-file", ".env", "dotenv file read before the environment; skipped if absent")
		showVersion = flag.Bool("version", false, "print the version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("callcenter %s (%s)\n", version.Version, version.Commit)
		return
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fatalf("loading %s: %v", *envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		fatalf("loading config: %v", err)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if !slices.Contains(modes, cfg.Mode) {
		fatalf("unknown mode %q (want one of %v)", cfg.Mode, modes)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		slog.Error("callcenter exited", "mode", cfg.Mode, "error", err)
		stop()
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "callcenter: "+format+"\n", args...)
	os.Exit(1)
}
