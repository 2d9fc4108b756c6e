package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"fdc/internal/app"
	"fdc/internal/domain"
	"fdc/internal/geo"
)

func unitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unit",
		Short: "Manage firing units",
		Long:  "Firing units are the guns and mortars missions are assigned to. A unit is eligible when it is ready and the target lies within its min/max range.",
	}
	cmd.AddCommand(unitAddCmd())
	cmd.AddCommand(unitListCmd())
	cmd.AddCommand(unitImportCmd())
	return cmd
}

func unitAddCmd() *cobra.Command {
	var u domain.FiringUnit
	var location string
	var ammo []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a firing unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePointFlag("location", location)
			if err != nil {
				return err
			}
			u.Location = p
			for _, a := range ammo {
				var line domain.Ammunition
				if _, err := fmt.Sscanf(a, "%s %d", &line.Type, &line.Quantity); err != nil {
					return fmt.Errorf("--ammo %q: want \"TYPE QUANTITY\"", a)
				}
				u.Ammunition = append(u.Ammunition, line)
			}
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				created, err := createUnit(ctx, b, u)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&u.ID, "id", "", "unit id")
	cmd.Flags().StringVar(&u.Name, "name", "", "display name")
	cmd.Flags().StringVar(&u.Platform, "platform", "", "platform id")
	cmd.Flags().StringVar(&location, "location", "", "unit position")
	cmd.Flags().Float64Var(&u.Altitude, "altitude", 0, "altitude (m)")
	cmd.Flags().StringVar(&u.Status, "status", domain.UnitReady, "readiness")
	cmd.Flags().Float64Var(&u.MinRange, "min-range", 0, "minimum range (m)")
	cmd.Flags().Float64Var(&u.MaxRange, "max-range", 0, "maximum range (m)")
	cmd.Flags().StringVar(&u.CommanderID, "commander-id", "", "commander actor id")
	cmd.Flags().StringVar(&u.OperatorID, "operator-id", "", "operator actor id")
	cmd.Flags().StringArrayVar(&ammo, "ammo", nil, `ammunition line "TYPE QUANTITY" (repeatable)`)
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("platform")
	_ = cmd.MarkFlagRequired("location")
	_ = cmd.MarkFlagRequired("max-range")
	return cmd
}

func createUnit(ctx context.Context, b *app.Backend, u domain.FiringUnit) (domain.FiringUnit, error) {
	if b.Remote != nil {
		return b.Remote.CreateUnit(ctx, u)
	}
	return b.Repo.CreateUnit(ctx, u, viper.GetString("actor-id"))
}

func unitListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List firing units",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				units, err := b.Engine.Directory.ListUnits(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(units)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Platform", "Status", "Location", "Range (m)", "Commander", "Operator"})
				for _, u := range units {
					tw.AppendRow(table.Row{
						u.ID, u.Name, u.Platform, u.Status, u.Location.String(),
						fmt.Sprintf("%.0f–%.0f", u.MinRange, u.MaxRange), u.CommanderID, u.OperatorID,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
}

// directoryFile is the import format for unit import.
type directoryFile struct {
	Units     []importedUnit     `yaml:"units"`
	Observers []importedObserver `yaml:"observers"`
}

type importedUnit struct {
	ID          string              `yaml:"id"`
	Name        string              `yaml:"name"`
	Platform    string              `yaml:"platform"`
	Location    string              `yaml:"location"`
	Altitude    float64             `yaml:"altitude"`
	Status      string              `yaml:"status"`
	MinRange    float64             `yaml:"min_range"`
	MaxRange    float64             `yaml:"max_range"`
	CommanderID string              `yaml:"commander_id"`
	OperatorID  string              `yaml:"operator_id"`
	Ammunition  []domain.Ammunition `yaml:"ammunition"`
}

type importedObserver struct {
	ID       string  `yaml:"id"`
	Callsign string  `yaml:"callsign"`
	Location string  `yaml:"location"`
	Altitude float64 `yaml:"altitude"`
	UnitID   string  `yaml:"unit_id"`
}

func unitImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.yml>",
		Short: "Import firing units and observers from YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var f directoryFile
			if err := yaml.Unmarshal(data, &f); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				var units, observers int
				for _, iu := range f.Units {
					p, err := geo.ParsePoint(iu.Location)
					if err != nil {
						return fmt.Errorf("unit %s location: %w", iu.ID, err)
					}
					if iu.Status == "" {
						iu.Status = domain.UnitReady
					}
					if _, err := createUnit(ctx, b, domain.FiringUnit{
						ID: iu.ID, Name: iu.Name, Platform: iu.Platform, Location: p, Altitude: iu.Altitude,
						Status: iu.Status, MinRange: iu.MinRange, MaxRange: iu.MaxRange,
						CommanderID: iu.CommanderID, OperatorID: iu.OperatorID, Ammunition: iu.Ammunition,
					}); err != nil {
						return fmt.Errorf("unit %s: %w", iu.ID, err)
					}
					units++
				}
				for _, obs := range f.Observers {
					p, err := geo.ParsePoint(obs.Location)
					if err != nil {
						return fmt.Errorf("observer %s location: %w", obs.ID, err)
					}
					o := domain.Observer{ID: obs.ID, Callsign: obs.Callsign, Location: p, Altitude: obs.Altitude}
					if obs.UnitID != "" {
						o.UnitID = &obs.UnitID
					}
					if _, err := createObserver(ctx, b, o); err != nil {
						return fmt.Errorf("observer %s: %w", obs.ID, err)
					}
					observers++
				}
				return printJSONOrTable(map[string]int{"units": units, "observers": observers})
			})
		},
	}
	return cmd
}

func observerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "observer",
		Short: "Manage forward observers",
		Long:  "Forward observers call for fire. A request's requester is resolved to an observer or unit position before assignment.",
	}
	cmd.AddCommand(observerAddCmd())
	cmd.AddCommand(observerListCmd())
	return cmd
}

func observerAddCmd() *cobra.Command {
	var o domain.Observer
	var location, unitID string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a forward observer",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePointFlag("location", location)
			if err != nil {
				return err
			}
			o.Location = p
			if unitID != "" {
				o.UnitID = &unitID
			}
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				created, err := createObserver(ctx, b, o)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&o.ID, "id", "", "observer id")
	cmd.Flags().StringVar(&o.Callsign, "callsign", "", "callsign")
	cmd.Flags().StringVar(&location, "location", "", "observer position")
	cmd.Flags().Float64Var(&o.Altitude, "altitude", 0, "altitude (m)")
	cmd.Flags().StringVar(&unitID, "unit-id", "", "attached firing unit")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func createObserver(ctx context.Context, b *app.Backend, o domain.Observer) (domain.Observer, error) {
	if b.Remote != nil {
		return b.Remote.CreateObserver(ctx, o)
	}
	return b.Repo.CreateObserver(ctx, o, viper.GetString("actor-id"))
}

func observerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List forward observers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				var (
					observers []domain.Observer
					err       error
				)
				if b.Remote != nil {
					observers, err = b.Remote.ListObservers(ctx)
				} else {
					observers, err = b.Repo.ListObservers(ctx)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(observers)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Callsign", "Location", "Unit"})
				for _, o := range observers {
					tw.AppendRow(table.Row{o.ID, o.Callsign, geo.FormatDMS(o.Location), deref(o.UnitID)})
				}
				tw.Render()
				return nil
			})
		},
	}
}
