package cli

import (
	"context"
	"errors"

	"litman/auth"
	"litman/config"
	"litman/metrics"
	"litman/syncer"
	"litman/web"
	"litman/web/api"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
	"github.com/spf13/cobra"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server (sync endpoints in server mode, admin UI in both modes)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().String("address", a.v.GetString("server.address"), "HTTP listen address")
	cmd.Flags().String("metrics-address", "", "Prometheus listen address (empty disables)")
	if err := a.v.BindPFlag("server.address", cmd.Flags().Lookup("address")); err != nil {
		panic(err)
	}
	if err := a.v.BindPFlag("metrics.address", cmd.Flags().Lookup("metrics-address")); err != nil {
		panic(err)
	}
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	store, files, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.NewMetrics()
	if a.cfg.MetricsAddress != "" {
		ms := metrics.NewServer(a.cfg.MetricsAddress, m)
		if err := ms.Start(); err != nil {
			return err
		}
		defer ms.Stop()
		logger.Info("Metrics server listening", "address", ms.Addr())
	}

	deps := api.Deps{Mode: a.cfg.Mode, Store: store, Files: files}

	switch a.cfg.Mode {
	case config.ModeServer:
		deps.Merger = syncer.NewMerger(store, m)
		if a.cfg.AuthEnabled() {
			tokens, err := auth.NewTokenIssuer(a.cfg.Server.TokenSecret, a.cfg.Server.TokenTTL, nil)
			if err != nil {
				return err
			}
			deps.Account = auth.Account{Username: a.cfg.Server.Username, PasswordHash: a.cfg.Server.PasswordHash}
			deps.Tokens = tokens
		} else {
			logger.Info("Authentication is disabled; sync endpoints are open")
		}

	case config.ModeClient:
		if a.cfg.Client.ServerURL != "" {
			client, err := a.newClient(store, files, m)
			if err != nil {
				return err
			}
			deps.Client = client
		}
	}

	srv := web.NewServer(rweb.ServerOptions{
		Address: a.cfg.Server.Address,
		Verbose: a.cfg.LogLevel == "debug",
	}, deps)

	errCh := make(chan error, 1)
	go func() {
		errCh <- web.Run(srv, a.cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutting down", "reason", context.Cause(ctx))
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return ctx.Err()
	}
}
