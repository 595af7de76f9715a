package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/ResslAI-Salesforce/dalo-2/internal/boot"
	"github.com/ResslAI-Salesforce/dalo-2/internal/channel"
	"github.com/ResslAI-Salesforce/dalo-2/internal/channel/adapters/gmail"
	"github.com/ResslAI-Salesforce/dalo-2/internal/channel/adapters/mailgun"
	"github.com/ResslAI-Salesforce/dalo-2/internal/channel/adapters/twilio"
	"github.com/ResslAI-Salesforce/dalo-2/internal/channel/adapters/vapi"
	"github.com/ResslAI-Salesforce/dalo-2/internal/channel/inbound"
	"github.com/ResslAI-Salesforce/dalo-2/internal/config"
	"github.com/ResslAI-Salesforce/dalo-2/internal/dispatch"
	"github.com/ResslAI-Salesforce/dalo-2/internal/handlers"
	"github.com/ResslAI-Salesforce/dalo-2/internal/logger"
	"github.com/ResslAI-Salesforce/dalo-2/internal/pairing"
	"github.com/ResslAI-Salesforce/dalo-2/internal/server"
	"github.com/ResslAI-Salesforce/dalo-2/internal/skills"
	"github.com/ResslAI-Salesforce/dalo-2/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "dalod",
		Short:         "Channel daemon bridging email, SMS, and voice into the agent runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (falls back to $DALO_CONFIG, then ./config.toml)")

	root.AddCommand(
		newServeCmd(&configPath),
		newCheckCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the channel daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(config.ResolvePath(*configPath))
		},
	}
}

func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and skill documents without starting",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, config.ResolvePath(*configPath))
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dalod %s\n", version.GetInfo())
		},
	}
}

func runServe(path string) error {
	app := fx.New(
		fx.Provide(
			provideConfigLoader(path),
			provideLogger,
			boot.ProvideRuntimeConfig,

			gmail.New,
			twilio.New,
			vapi.New,
			mailgun.New,
			provideRegistry,

			provideConfigStoreFactory(path),
			func(store *config.Store) channel.ConfigStore { return store },

			provideCaches,
			providePairing,
			provideDispatcher,
			inbound.NewPipeline,
			provideManager,
			provideSkills,

			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewChannelsHandler),
			provideServerHandler(handlers.NewAccountsHandler),
			provideServerHandler(handlers.NewSkillsHandler),
			provideServerHandler(handlers.NewTwilioWebhookHandler),
			provideServerHandler(handlers.NewVapiWebhookHandler),
			provideServerHandler(handlers.NewMailgunWebhookHandler),

			provideServer,
		),
		fx.Invoke(
			startChannelManager,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func runCheck(cmd *cobra.Command, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	if _, err := boot.ProvideRuntimeConfig(cfg); err != nil {
		return fmt.Errorf("runtime config: %w", err)
	}

	registry := provideRegistry(
		gmail.New(logger.L),
		twilio.New(logger.L),
		vapi.New(logger.L),
		mailgun.New(logger.L),
	)
	accounts, err := config.BuildAccounts(cfg, registry)
	if err != nil {
		return fmt.Errorf("validate accounts: %w", err)
	}
	library, err := skills.Load(logger.L, cfg.Skills.Dir)
	if err != nil {
		return fmt.Errorf("load skills: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d accounts, %d skills\n", path, len(accounts), library.Count())
	for _, account := range accounts {
		state := "enabled"
		if !account.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(out, "  %-16s %-8s %-8s dm_policy=%s\n", account.ID, account.Type, state, account.DMPolicy)
	}
	return nil
}

func provideConfigLoader(path string) func() (config.Config, error) {
	return func() (config.Config, error) {
		cfg, err := config.Load(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideRegistry(gmailAdapter *gmail.Adapter, twilioAdapter *twilio.Adapter, vapiAdapter *vapi.Adapter, mailgunAdapter *mailgun.Adapter) *channel.Registry {
	registry := channel.NewRegistry()
	registry.MustRegister(gmailAdapter)
	registry.MustRegister(twilioAdapter)
	registry.MustRegister(vapiAdapter)
	registry.MustRegister(mailgunAdapter)
	return registry
}

func provideConfigStoreFactory(path string) func(*slog.Logger, *channel.Registry) (*config.Store, error) {
	return func(log *slog.Logger, registry *channel.Registry) (*config.Store, error) {
		return config.NewStore(log, registry, path)
	}
}

func provideCaches(cfg config.Config) (*inbound.CacheSet, error) {
	defaults, err := cfg.DedupeDefaults()
	if err != nil {
		return nil, err
	}
	return inbound.NewCacheSet(defaults), nil
}

func providePairing() *pairing.Store {
	return pairing.NewStore(pairing.DefaultTTL, pairing.DefaultMaxPerAccount)
}

func provideDispatcher(log *slog.Logger, runtimeConfig *boot.RuntimeConfig) (dispatch.Dispatcher, error) {
	return dispatch.NewHTTPDispatcher(log, runtimeConfig.DispatchBaseURL, runtimeConfig.DispatchToken, runtimeConfig.DispatchTimeout)
}

func provideManager(log *slog.Logger, registry *channel.Registry, store channel.ConfigStore, pipeline *inbound.Pipeline) *channel.Manager {
	return channel.NewManager(log, registry, store, pipeline)
}

func provideSkills(log *slog.Logger, runtimeConfig *boot.RuntimeConfig) (*skills.Library, error) {
	return skills.Load(log, runtimeConfig.SkillsDir)
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	RuntimeConfig  *boot.RuntimeConfig
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.RuntimeConfig.ServerAddr, params.RuntimeConfig.JwtSecret, params.ServerHandlers...)
}

// startChannelManager wires config reloads into the manager and starts
// the reconcile loop. The loop context outlives the fx start hook.
func startChannelManager(lc fx.Lifecycle, store *config.Store, manager *channel.Manager) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			store.OnReload(manager.Refresh)
			if err := store.Watch(ctx); err != nil {
				cancel()
				return fmt.Errorf("watch config: %w", err)
			}
			manager.Start(ctx)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			store.Close()
			return manager.Shutdown(stopCtx)
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting dalod %s\n", version.GetInfo())

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Run(ctx); err != nil { // blocks until the server stops
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := srv.Stop(stopCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
