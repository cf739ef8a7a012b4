package start

import (
	"context"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/pyorchestrator/pyorchestrator/internal/app"
	"github.com/pyorchestrator/pyorchestrator/internal/metrics"
	"github.com/pyorchestrator/pyorchestrator/pkg/db"
	"github.com/pyorchestrator/pyorchestrator/pkg/env"
	"github.com/pyorchestrator/pyorchestrator/pkg/log"
	"github.com/spf13/cobra"
)

const (
	usage   = "start"
	short   = "Start a pyorchestrator scheduling instance"
	long    = "This command starts the scheduler, the run workers and the HTTP API"
	example = "pyorchestrator start"
)

var (
	// Cmd is the start command.
	Cmd = &cobra.Command{
		Use:        usage,
		Short:      short,
		Long:       long,
		Aliases:    []string{"s"},
		SuggestFor: []string{"launch", "boot", "up", "serve", "begin"},
		Example:    example,
		RunE:       start,
	}
)

func start(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGUSR1, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	go func() {
		for s := range signalChan {
			switch s {
			case syscall.SIGUSR1:
				log.Info("dumping stack traces due to SIGUSR1 signal")
				if profile := pprof.Lookup("goroutine"); profile != nil {
					if err := profile.WriteTo(os.Stdout, 1); err != nil {
						log.Error("write goroutine profile", "error", err)
					}
				}
			case syscall.SIGINT, syscall.SIGTERM:
				log.Info("gracefully shutting down", "signal", s.String())
				cancel()
			}
		}
	}()

	log.Info("migrating database")
	if err := db.Migrate(); err != nil {
		log.Fatal("database migration failure", "error", err)
	}

	metrics.Register()

	return app.New(env.Variables(), db.Connection(), nil).Run(ctx)
}
