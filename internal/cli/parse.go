package cli

import (
	"fmt"
	"strings"
	"time"

	"cronbot/internal/config"
	"cronbot/internal/task/schedule"
	"cronbot/internal/task/timeparse"

	"github.com/spf13/cobra"
)

// upcomingRuns is how many cron fire times `parse cron` prints.
const upcomingRuns = 3

func parseCmd(f *rootFlags) *cobra.Command {
	var tz string
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Check how a schedule value is interpreted",
		Long:  "Parse a schedule value locally without talking to a running cronbot.",
	}
	cmd.PersistentFlags().StringVar(&tz, "tz", "", "timezone (defaults to the config's scheduler.timezone)")

	location := func() (*time.Location, error) {
		if strings.TrimSpace(tz) != "" {
			return time.LoadLocation(tz)
		}
		cfg := config.Default()
		if f.config != "" {
			c, err := config.NewManager(f.config).Parse()
			if err != nil {
				return nil, err
			}
			cfg = c
		}
		return cfg.Location()
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "at <text>",
			Short: "One-shot time, e.g. \"tomorrow 6pm\"",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				loc, err := location()
				if err != nil {
					return err
				}
				at, err := timeparse.New(loc).ParseAt(strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), at.Format(time.RFC1123))
				return nil
			},
		},
		&cobra.Command{
			Use:   "every <text>",
			Short: "Interval, e.g. \"2h\" or \"1d\"",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := timeparse.ParseInterval(strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), d.String())
				return nil
			},
		},
		&cobra.Command{
			Use:   "daily <text>",
			Short: "Clock time, e.g. \"8am\"; prints the cron expression",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				expr, err := timeparse.ParseDaily(strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), expr)
				return nil
			},
		},
		&cobra.Command{
			Use:   "cron <expr>",
			Short: "5-field cron expression; prints the next fire times",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				loc, err := location()
				if err != nil {
					return err
				}
				expr := strings.Join(args, " ")
				engine := schedule.NewRobfigEngine()
				if err := engine.Validate(expr); err != nil {
					return err
				}
				at := time.Now()
				for range upcomingRuns {
					at, err = engine.Next(expr, loc.String(), at)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), at.In(loc).Format(time.RFC1123))
				}
				return nil
			},
		},
	)
	return cmd
}
