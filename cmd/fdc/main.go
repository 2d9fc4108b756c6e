package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fdc/internal/app"
	"fdc/internal/db"
	"fdc/internal/geo"
)

var rootCmd = &cobra.Command{
	Use:   "fdc",
	Short: "Fire direction center CLI",
	Long: `fdc computes firing solutions and drives fire missions from request to completion.
- Solutions: elevation, azimuth, flight time and trajectory for a gun, a target and a platform's calibration.
- Missions: a call for fire moves requested -> assigned -> active -> completed; rejected, cancelled and no_assets_available are side exits.
- Directory: firing units and forward observers the mission engine assigns from.
- Workspace: the .fdc directory holds the local SQLite store; fdc.yml holds config. Set remote.base_url (or --remote) to drive a mission service instead.
- Event log: every mission change is recorded; view it with 'fdc log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FDC")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "fdc-console", "actor identifier")
	rootCmd.PersistentFlags().String("remote", "", "mission service base URL (overrides config remote.base_url)")
	rootCmd.PersistentFlags().String("api-key", "", "API key for the mission service")
	rootCmd.PersistentFlags().String("token", "", "bearer token for the mission service")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides config log.level)")
	for _, name := range []string{"workspace", "json", "actor-id", "remote", "api-key", "token", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(solveCmd())
	rootCmd.AddCommand(mrsiCmd())
	rootCmd.AddCommand(platformsCmd())
	rootCmd.AddCommand(unitCmd())
	rootCmd.AddCommand(observerCmd())
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- helpers ---

func backendOptions() app.Options {
	return app.Options{
		Workspace:   viper.GetString("workspace"),
		RemoteURL:   viper.GetString("remote"),
		APIKey:      viper.GetString("api-key"),
		BearerToken: viper.GetString("token"),
		ActorID:     viper.GetString("actor-id"),
		LogLevel:    viper.GetString("log-level"),
	}
}

func withBackend(ctx context.Context, fn func(context.Context, *app.Backend) error) error {
	b, err := app.Open(ctx, backendOptions())
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, b)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func parsePointFlag(name, value string) (geo.Point, error) {
	p, err := geo.ParsePoint(value)
	if err != nil {
		return geo.Point{}, fmt.Errorf("--%s: %w", name, err)
	}
	return p, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
