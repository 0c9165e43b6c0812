// Package cli is the litman command line: the sync commands, the web
// server and a few library maintenance commands.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"litman/config"
	"litman/filestore"
	"litman/metrics"
	"litman/models"
	"litman/syncer"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the state shared by every subcommand of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
}

// Execute runs the root command with the process arguments.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:          "litman",
		Short:        "Reference library manager with client/server replication",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig()
		},
	}

	a.setupFlags(root)

	root.AddCommand(
		a.serveCmd(),
		a.pushCmd(),
		a.bootstrapCmd(),
		a.statusCmd(),
		a.verifyCmd(),
		a.pruneCmd(),
		a.entryCmd(),
		a.authorCmd(),
		a.keywordCmd(),
		a.collectionCmd(),
		a.fileCmd(),
		a.linkCmd(),
		a.hashPasswordCmd(),
	)
	return root
}

func (a *app) setupFlags(cmd *cobra.Command) {
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "Path to configuration file (default "+config.DefaultConfigFile()+")")
	cmd.PersistentFlags().String("mode", defaults.GetString("mode"), "Node mode (client, server)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "DuckDB database path")
	cmd.PersistentFlags().String("storage-path", defaults.GetString("files.storage_path"), "Attachment storage directory")
	cmd.PersistentFlags().String("server-url", defaults.GetString("client.server_url"), "Sync server base URL (client mode)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	a.bindFlag(cmd, "mode", "mode")
	a.bindFlag(cmd, "database.path", "database-path")
	a.bindFlag(cmd, "files.storage_path", "storage-path")
	a.bindFlag(cmd, "client.server_url", "server-url")
	a.bindFlag(cmd, "log.level", "log-level")
}

func (a *app) bindFlag(cmd *cobra.Command, key, flag string) {
	if err := a.v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func (a *app) initConfig() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.SetConfigFile(config.DefaultConfigFile())
	}

	if err := a.v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &configNotFound), a.cfgFile == "" && errors.Is(err, os.ErrNotExist):
			// Defaults, env and flags are enough
		default:
			return serr.Wrap(err, "failed to read config file")
		}
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger.SetLogLevel(cfg.LogLevel)
	logger.Debug("Configuration loaded", "mode", cfg.Mode, "database", cfg.DatabasePath,
		"config_file", a.v.ConfigFileUsed())
	return nil
}

// openStores opens the library database and the attachment store.
func (a *app) openStores(ctx context.Context) (*models.Store, *filestore.Store, error) {
	store, err := models.OpenStore(ctx, models.StoreOptions{Path: a.cfg.DatabasePath})
	if err != nil {
		return nil, nil, err
	}
	files, err := filestore.New(a.cfg.FileStoragePath)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, files, nil
}

// newClient builds the sync client from the client section of the config.
func (a *app) newClient(store *models.Store, files *filestore.Store, m *metrics.Metrics) (*syncer.Client, error) {
	if a.cfg.Client.ServerURL == "" {
		return nil, serr.New("client.server_url is not configured")
	}
	return syncer.NewClient(syncer.ClientConfig{
		ServerURL:        a.cfg.Client.ServerURL,
		Username:         a.cfg.Client.Username,
		Password:         a.cfg.Client.Password,
		Timeout:          a.cfg.Client.Timeout,
		FetchConcurrency: a.cfg.Client.FetchConcurrency,
	}, store, files, m)
}

// withClient opens the stores and a sync client, runs fn, and closes the
// store.
func (a *app) withClient(ctx context.Context, fn func(c *syncer.Client, store *models.Store) error) error {
	store, files, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := a.newClient(store, files, nil)
	if err != nil {
		return err
	}
	return fn(client, store)
}

// withStore opens the stores, runs fn, and closes the store.
func (a *app) withStore(ctx context.Context, fn func(store *models.Store, files *filestore.Store) error) error {
	store, files, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store, files)
}
