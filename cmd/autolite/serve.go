package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imagvfx/autolite"
	"github.com/imagvfx/autolite/api"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	var withAPI bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run ready tasks periodically until interrupted",
		Long: `Run ready tasks periodically until interrupted.

Tasks left running by a previous scheduler are failed at start,
unless their processes are still alive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			sv := autolite.NewSupervisor(a.tasks)
			sched := autolite.NewScheduler(a.tasks, sv, a.cfg.IntervalDuration(), a.cfg.TimeoutDuration())
			a.log.WithField("db", a.cfg.DBPath).Infof("serving every %v", sched.Interval)
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return sched.Run(ctx)
			})
			if withAPI {
				g.Go(func() error {
					return a.serveAPI(ctx, a.cfg.API.Addr)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&withAPI, "api", false, "serve the http api too, at api.addr setting")
	return cmd
}

func newAPICmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "api",
		Short: "serve tasks and systems as json over http",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.API.Addr
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serveAPI(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "address to bind (default api.addr setting)")
	return cmd
}

// serveAPI serves the api at addr until ctx is done.
func (a *app) serveAPI(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(a.tasks, a.systems, a.log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()
	a.log.Infof("api listening at %s", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
