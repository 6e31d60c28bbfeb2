package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lojf/vbs/internal/grading"
	"github.com/lojf/vbs/internal/handlers"
	"github.com/lojf/vbs/internal/web"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	auth, err := handlers.NewAdminAuth(a.cfg)
	if err != nil {
		return err
	}
	tmpl, pages := web.Templates()
	h := handlers.New(handlers.Deps{
		Config:        a.cfg,
		Templates:     tmpl,
		Pages:         pages,
		Registrations: a.registrations,
		Payments:      a.payments,
		Assignments:   a.assignments,
		Volunteers:    a.volunteers,
		Checkout:      a.checkout,
		Auth:          auth,
		Log:           a.log,
	})

	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           web.Router(h, a.log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("listening",
			zap.String("addr", a.cfg.Addr),
			zap.String("env", a.cfg.Env),
			zap.String("base_url", a.cfg.BaseURL),
		)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if a.cfg.GradesFile != "" {
		g.Go(func() error {
			return grading.WatchScheme(gctx, a.cfg.GradesFile, a.log.Named("grades"), a.assignments.SetScheme)
		})
	}
	return g.Wait()
}
