package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fdc/internal/app"
	"fdc/internal/ballistics"
	"fdc/internal/domain"
	"fdc/internal/engine"
	"fdc/internal/geo"
)

func missionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mission",
		Short: "Drive fire missions",
		Long:  "A fire mission is a call for fire. It moves requested -> assigned -> active -> completed; rejected, cancelled and no_assets_available are side exits. Every change is conditional on the mission's current status.",
	}
	cmd.AddCommand(missionRequestCmd())
	cmd.AddCommand(missionListCmd())
	cmd.AddCommand(missionShowCmd())
	cmd.AddCommand(missionRetryCmd())
	cmd.AddCommand(missionRejectCmd())
	cmd.AddCommand(missionDispatchCmd())
	cmd.AddCommand(missionCompleteCmd())
	cmd.AddCommand(missionCancelCmd())
	cmd.AddCommand(missionWatchCmd())
	return cmd
}

func missionRequestCmd() *cobra.Command {
	var opts engine.RequestOptions
	var target string
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Call for fire on a target",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePointFlag("target", target)
			if err != nil {
				return err
			}
			opts.Target = p
			opts.ActorID = viper.GetString("actor-id")
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				m, err := b.Engine.Request(ctx, opts)
				var na *engine.NoAssetsAvailableError
				if errors.As(err, &na) {
					if perr := printMission(m); perr != nil {
						return perr
					}
					return err
				}
				if err != nil {
					return err
				}
				return printMission(m)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "mission id (generated if omitted)")
	cmd.Flags().StringVar(&opts.RequesterID, "requester", "", "requesting observer or unit id")
	cmd.Flags().StringVar(&target, "target", "", "target position")
	cmd.Flags().Float64Var(&opts.TargetAltitude, "target-alt", 0, "target altitude (m)")
	cmd.Flags().StringVar(&opts.PreferredUnitID, "prefer-unit", "", "unit to try before the rest of the directory")
	_ = cmd.MarkFlagRequired("requester")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func missionListCmd() *cobra.Command {
	var status string
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				p, err := b.Engine.Refresh(ctx)
				if err != nil {
					return err
				}
				missions := p.Missions
				if activeOnly {
					missions = p.Active
				}
				if status != "" {
					filtered := missions[:0:0]
					for _, m := range missions {
						if m.Status == status {
							filtered = append(filtered, m)
						}
					}
					missions = filtered
				}
				if viper.GetBool("json") {
					return printJSON(missions)
				}
				renderMissions(missions)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only missions not yet completed or cancelled")
	return cmd
}

func missionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <mission-id>",
		Short: "Show a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				m, err := b.Engine.Store.GetMission(ctx, args[0])
				if err != nil {
					return err
				}
				return printMission(m)
			})
		},
	}
}

func missionRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <mission-id>",
		Short: "Retry assignment of a mission that had no assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				m, err := b.Engine.Retry(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printMission(m)
			})
		},
	}
}

func missionRejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <mission-id>",
		Short: "Reject a mission",
		Long:  "Rejecting needs a reason. When the mission has a unit, only that unit's operator or commander may reject it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				m, err := b.Engine.Reject(ctx, args[0], viper.GetString("actor-id"), reason)
				if err != nil {
					return err
				}
				return printMission(m)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	return cmd
}

func missionDispatchCmd() *cobra.Command {
	var opts engine.DispatchOptions
	var mrsi bool
	cmd := &cobra.Command{
		Use:   "dispatch <mission-id>",
		Short: "Compute the solution and put an assigned mission in action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.MissionID = args[0]
			opts.MRSI = mrsi
			opts.ActorID = viper.GetString("actor-id")
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				m, sol, err := b.Engine.Dispatch(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"mission": m, "solution": sol})
				}
				renderMissions([]domain.FireMission{m})
				unit, err := b.Engine.Directory.GetUnit(ctx, opts.UnitID)
				if err != nil {
					return err
				}
				renderSolution(ballistics.SolutionRequest{Gun: unit.Location, Target: m.Target}, sol)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.UnitID, "unit", "", "assigned unit id")
	cmd.Flags().StringVar(&opts.Projectile, "projectile", "HE", "projectile name")
	cmd.Flags().IntVar(&opts.Charge, "charge", 0, "charge number")
	cmd.Flags().BoolVar(&mrsi, "mrsi", false, "plan a simultaneous-impact pair")
	_ = cmd.MarkFlagRequired("unit")
	_ = cmd.MarkFlagRequired("charge")
	return cmd
}

func missionCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <mission-id>",
		Short: "Complete an active mission (commander only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				m, err := b.Engine.Complete(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printMission(m)
			})
		},
	}
}

func missionCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <mission-id>",
		Short: "Cancel a mission that has not been fired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				m, err := b.Engine.Cancel(ctx, args[0], viper.GetString("actor-id"), reason)
				if err != nil {
					return err
				}
				return printMission(m)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func missionWatchCmd() *cobra.Command {
	var interval time.Duration
	var once bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll active missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withBackend(ctx, func(ctx context.Context, b *app.Backend) error {
				every := interval
				if every <= 0 {
					every = b.Config.RefreshInterval()
				}
				ticker := time.NewTicker(every)
				defer ticker.Stop()
				for {
					p, err := b.Engine.Refresh(ctx)
					if err != nil {
						if ctx.Err() != nil {
							return nil
						}
						return err
					}
					if viper.GetBool("json") {
						if err := printJSON(p); err != nil {
							return err
						}
					} else {
						fmt.Printf("%s  %d active of %d\n", p.RefreshedAt.Format(time.RFC3339), len(p.Active), len(p.Missions))
						renderMissions(p.Active)
					}
					if once {
						return nil
					}
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
				}
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (defaults to config refresh.interval_seconds)")
	cmd.Flags().BoolVar(&once, "once", false, "print one refresh and exit")
	return cmd
}

func printMission(m domain.FireMission) error {
	if viper.GetBool("json") {
		return printJSON(m)
	}
	renderMissions([]domain.FireMission{m})
	return nil
}

func renderMissions(missions []domain.FireMission) {
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Status", "Requester", "Unit", "Target", "Fire", "Reason", "Updated"})
	for _, m := range missions {
		fire := ""
		if m.Fire != nil {
			fire = fmt.Sprintf("az %.0f mils el %.2f° tof %.1fs", geo.DegreesToMils(m.Fire.Azimuth), m.Fire.Elevation, m.Fire.FlightTime)
			if m.Fire.MRSI {
				fire += " MRSI"
			}
		}
		tw.AppendRow(table.Row{m.ID, m.Status, m.RequesterID, deref(m.UnitID), m.Target.String(), fire, deref(m.Reason), m.UpdatedAt})
	}
	tw.Render()
}
