package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fdc/internal/app"
	"fdc/internal/ballistics"
	"fdc/internal/geo"
)

type solveFlags struct {
	platform    string
	gun         string
	target      string
	gunAlt      float64
	targetAlt   float64
	projectile  string
	charge      int
	windSpeed   float64
	windFrom    float64
	temperature float64
	pressure    float64
}

func (f *solveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.platform, "platform", string(ballistics.Howitzer155), "platform id (see fdc platforms)")
	cmd.Flags().StringVar(&f.gun, "gun", "", `gun position: "lat,lon", DMS pair or "UTM 18N easting northing"`)
	cmd.Flags().StringVar(&f.target, "target", "", "target position, same formats as --gun")
	cmd.Flags().Float64Var(&f.gunAlt, "gun-alt", 0, "gun altitude (m)")
	cmd.Flags().Float64Var(&f.targetAlt, "target-alt", 0, "target altitude (m)")
	cmd.Flags().StringVar(&f.projectile, "projectile", "HE", "projectile name")
	cmd.Flags().IntVar(&f.charge, "charge", 0, "charge number")
	cmd.Flags().Float64Var(&f.windSpeed, "wind-speed", 0, "wind speed (m/s)")
	cmd.Flags().Float64Var(&f.windFrom, "wind-from", 0, "wind direction, degrees true it blows from")
	cmd.Flags().Float64Var(&f.temperature, "temperature", ballistics.StandardTemperature, "air temperature (°C)")
	cmd.Flags().Float64Var(&f.pressure, "pressure", ballistics.StandardPressure, "air pressure (hPa)")
	_ = cmd.MarkFlagRequired("gun")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("charge")
}

func (f *solveFlags) request(cmd *cobra.Command) (ballistics.SolutionRequest, error) {
	p, err := ballistics.ParsePlatform(f.platform)
	if err != nil {
		return ballistics.SolutionRequest{}, err
	}
	gun, err := parsePointFlag("gun", f.gun)
	if err != nil {
		return ballistics.SolutionRequest{}, err
	}
	target, err := parsePointFlag("target", f.target)
	if err != nil {
		return ballistics.SolutionRequest{}, err
	}
	return ballistics.SolutionRequest{
		Platform:       p,
		Gun:            gun,
		Target:         target,
		GunAltitude:    f.gunAlt,
		TargetAltitude: f.targetAlt,
		Projectile:     f.projectile,
		Charge:         f.charge,
		Environment:    environmentFromFlags(cmd, f),
	}, nil
}

// environmentFromFlags only sets the inputs the user actually passed.
func environmentFromFlags(cmd *cobra.Command, f *solveFlags) *ballistics.Environment {
	var env ballistics.Environment
	set := false
	if cmd.Flags().Changed("wind-speed") {
		env.WindSpeed = ballistics.Float(f.windSpeed)
		set = true
	}
	if cmd.Flags().Changed("wind-from") {
		env.WindFrom = ballistics.Float(f.windFrom)
		set = true
	}
	if cmd.Flags().Changed("temperature") {
		env.Temperature = ballistics.Float(f.temperature)
		set = true
	}
	if cmd.Flags().Changed("pressure") {
		env.Pressure = ballistics.Float(f.pressure)
		set = true
	}
	if !set {
		return nil
	}
	return &env
}

func solveCmd() *cobra.Command {
	var f solveFlags
	var showTrajectory bool
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Compute a firing solution",
		Long:  "Looks up the platform's calibration for the projectile and charge, lays the gun on the target, applies corrections and samples the trajectory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(cmd)
			if err != nil {
				return err
			}
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				sol, err := b.Solver.Solve(ctx, req)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sol)
				}
				renderSolution(req, sol)
				if showTrajectory {
					renderTrajectory(sol.Trajectory)
				}
				if err := sol.Dispatchable(); err != nil {
					fmt.Println("warning:", err)
				}
				return nil
			})
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&showTrajectory, "trajectory", false, "print trajectory samples")
	return cmd
}

func mrsiCmd() *cobra.Command {
	var f solveFlags
	cmd := &cobra.Command{
		Use:   "mrsi",
		Short: "Plan a multiple-rounds-simultaneous-impact pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(cmd)
			if err != nil {
				return err
			}
			req.MRSI = true
			return withBackend(cmd.Context(), func(ctx context.Context, b *app.Backend) error {
				sol, err := b.Solver.Solve(ctx, req)
				if err != nil {
					return err
				}
				rounds := sol.MRSI.FireOrder()
				if viper.GetBool("json") {
					return printJSON(map[string]any{"pair": sol.MRSI, "rounds": rounds})
				}
				tw := newTable()
				tw.SetTitle(fmt.Sprintf("MRSI %s %s charge %d, %.0f m", sol.Platform.Name(), sol.Projectile, sol.Charge, sol.Distance))
				tw.AppendHeader(table.Row{"Round", "Elevation (°)", "Flight time (s)", "Fire at (s)"})
				for i, r := range rounds {
					tw.AppendRow(table.Row{i + 1, fmt.Sprintf("%.2f", r.Elevation), fmt.Sprintf("%.1f", r.FlightTime), fmt.Sprintf("%.1f", r.FireAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func platformsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List platforms, projectiles and charges",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := ballistics.Catalog()
			if viper.GetBool("json") {
				return printJSON(catalog)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Platform", "Name", "Elevation", "Projectile", "Charges"})
			for _, p := range catalog {
				for _, proj := range p.Projectiles {
					charges := make([]string, 0, len(proj.Charges))
					for _, c := range proj.Charges {
						charges = append(charges, fmt.Sprint(c))
					}
					tw.AppendRow(table.Row{
						p.Platform, p.Name,
						fmt.Sprintf("%.0f°–%.0f°", p.MinElevation, p.MaxElevation),
						proj.Name, strings.Join(charges, " "),
					})
				}
			}
			tw.Render()
			return nil
		},
	}
}

func renderSolution(req ballistics.SolutionRequest, sol ballistics.FiringSolution) {
	tw := newTable()
	tw.SetTitle(fmt.Sprintf("%s  %s charge %d", sol.Platform.Name(), sol.Projectile, sol.Charge))
	tw.AppendRows([]table.Row{
		{"Gun", geo.FormatDMS(req.Gun), geo.ToUTM(req.Gun).String()},
		{"Target", geo.FormatDMS(req.Target), geo.ToUTM(req.Target).String()},
		{"Distance", fmt.Sprintf("%.0f m", sol.Distance), ""},
		{"Azimuth", fmt.Sprintf("%.2f°", sol.Azimuth), fmt.Sprintf("%.0f mils", sol.AzimuthMils)},
		{"Height difference", fmt.Sprintf("%.0f m", sol.HeightDifference), ""},
		{"Base elevation", fmt.Sprintf("%.2f°", sol.BaseElevation), ""},
		{"Corrections", fmt.Sprintf("%+.3f°", sol.Corrections.Total()), fmt.Sprintf("alt %+.3f wind %+.3f temp %+.3f press %+.3f",
			sol.Corrections.Altitude, sol.Corrections.Wind, sol.Corrections.Temperature, sol.Corrections.Pressure)},
		{"Elevation", fmt.Sprintf("%.2f°", sol.Elevation), string(sol.Status)},
		{"Flight time", fmt.Sprintf("%.1f s", sol.FlightTime), ""},
		{"Muzzle velocity", fmt.Sprintf("%.0f m/s", sol.MuzzleVelocity), ""},
	})
	tw.Render()
}

func renderTrajectory(t ballistics.Trajectory) {
	tw := newTable()
	tw.AppendHeader(table.Row{"#", "Range (m)", "Altitude (m)"})
	step := len(t.Points) / 20
	if step < 1 {
		step = 1
	}
	for i := 0; i < len(t.Points); i += step {
		p := t.Points[i]
		tw.AppendRow(table.Row{i, fmt.Sprintf("%.0f", p.Range), fmt.Sprintf("%.0f", p.Altitude)})
	}
	if n := len(t.Points); n > 0 && (n-1)%step != 0 {
		p := t.Points[n-1]
		tw.AppendRow(table.Row{n - 1, fmt.Sprintf("%.0f", p.Range), fmt.Sprintf("%.0f", p.Altitude)})
	}
	tw.Render()
}
