package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"fdc/internal/app"
	"fdc/internal/config"
	"fdc/internal/domain"
	"fdc/internal/events"
	"fdc/internal/logging"
	"fdc/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mission service",
		Long:  "Serves the mission store, directory and solution endpoints over HTTP and relays new events to the configured webhooks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			opts := backendOptions()
			opts.RemoteURL = ""
			b, err := app.Open(ctx, opts)
			if err != nil {
				return err
			}
			defer b.Close()
			r, err := b.RequireRepo()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") && b.Config.Service.Addr != "" {
				addr = b.Config.Service.Addr
			}
			if !cmd.Flags().Changed("base-path") && b.Config.Service.BasePath != "" {
				basePath = b.Config.Service.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:        b.JWTSecret(),
				AllowActorHeader: b.Config.Auth.AllowActorHeader,
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowActorHeader {
				b.Logger.Warn("no jwt secret configured; only api keys will authenticate", "env", b.Config.Auth.JWTSecretEnv)
			}
			handler, err := server.New(server.Config{
				Repo:     r,
				Engine:   b.Engine,
				BasePath: basePath,
				Auth:     authCfg,
				Logger:   b.Logger.With("component", "server"),
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			relay := server.NewRelay(r, b.Config, b.Logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				b.Logger.Info("serving fdc mission service", "addr", addr, "base_path", basePath,
					"openapi", basePath+"/openapi.json", "docs", basePath+"/docs")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				return relay.Run(gctx)
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for the mission service",
		Long:  "API keys authenticate crew workstations as an actor. Only a hash is stored; the key is printed once.",
	}
	cmd.AddCommand(apiKeyCreateCmd())
	cmd.AddCommand(apiKeyListCmd())
	cmd.AddCommand(apiKeyRevokeCmd())
	cmd.AddCommand(tokenCmd())
	return cmd
}

func apiKeyCreateCmd() *cobra.Command {
	var name, actor string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				r, err := b.RequireRepo()
				if err != nil {
					return err
				}
				if actor == "" {
					actor = viper.GetString("actor-id")
				}
				key, plain, err := r.CreateAPIKey(ctx, actor, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(struct {
					domain.APIKey
					Key string `json:"key"`
				}{key, plain})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	cmd.Flags().StringVar(&actor, "for", "", "actor the key authenticates as (defaults to --actor-id)")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				r, err := b.RequireRepo()
				if err != nil {
					return err
				}
				keys, err := r.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "for", "", "only keys of this actor")
	return cmd
}

func apiKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				r, err := b.RequireRepo()
				if err != nil {
					return err
				}
				if err := r.RevokeAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with the configured JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if actor == "" {
				actor = viper.GetString("actor-id")
			}
			tok, err := server.SignToken(app.JWTSecret(cfg), actor)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "for", "", "actor the token identifies (defaults to --actor-id)")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "fdc.yml at the workspace root sets the service address, auth, logging, remote mission service, solver cache, webhook relay and refresh interval.",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configInitCmd())
	cmd.AddCommand(configValidateCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.Marshal()
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var serviceID string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default fdc.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(serviceID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&serviceID, "service-id", "fdc", "service id")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate fdc.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Event log and process log",
		Long:  "The event log records every mission and directory change. 'log file' reads back the rotating JSON log configured in log.file.",
	}
	cmd.AddCommand(logTailCmd())
	cmd.AddCommand(logFileCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				evts, err := tailEvents(ctx, b, evtType, entityID, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
				for _, e := range evts {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + "/" + e.EntityID, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// tailEvents pages forward from the start and keeps the last n matches.
func tailEvents(ctx context.Context, b *app.Backend, evtType, entityID string, n int) ([]domain.Event, error) {
	const page = 200
	var out []domain.Event
	keep := func(evts []domain.Event) {
		out = append(out, evts...)
		if n > 0 && len(out) > n {
			out = out[len(out)-n:]
		}
	}
	if b.Remote == nil {
		var after int64
		for {
			evts, err := b.Repo.ListEvents(ctx, events.Filter{Type: evtType, EntityID: entityID, AfterID: after, Limit: page})
			if err != nil {
				return nil, err
			}
			keep(evts)
			if len(evts) < page {
				return out, nil
			}
			after = evts[len(evts)-1].ID
		}
	}
	cursor := ""
	for {
		res, err := b.Remote.EventsPage(ctx, page, cursor)
		if err != nil {
			return nil, err
		}
		var matched []domain.Event
		for _, e := range res.Items {
			if (evtType != "" && e.Type != evtType) || (entityID != "" && e.EntityID != entityID) {
				continue
			}
			matched = append(matched, domain.Event{
				ID: e.ID, TS: e.TS, Type: e.Type, EntityKind: e.EntityKind,
				EntityID: e.EntityID, ActorID: e.ActorID, Payload: fmt.Sprint(e.Payload),
			})
		}
		keep(matched)
		if res.NextCursor == "" {
			return out, nil
		}
		cursor = res.NextCursor
	}
}

func logFileCmd() *cobra.Command {
	var n int
	var path string
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Show the last entries of the process log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg, err := app.LoadConfig(viper.GetString("workspace"))
				if err != nil {
					return err
				}
				path = cfg.Log.File
			}
			if path == "" {
				return errors.New("no log file configured; set log.file in fdc.yml or pass --path")
			}
			entries, err := logging.Tail(path, n)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(entries)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Time", "Level", "Message", "Attrs"})
			for _, e := range entries {
				tw.AppendRow(table.Row{e.Time, e.Level, e.Message, fmt.Sprint(e.Attrs)})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "n", 50, "number of entries")
	cmd.Flags().StringVar(&path, "path", "", "log file (defaults to config log.file)")
	return cmd
}
