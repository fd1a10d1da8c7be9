package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

func jobsCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"job"},
		Short:   "Manage jobs on a running cronbot",
	}
	cmd.AddCommand(
		jobsListCmd(f),
		jobsAddCmd(f),
		jobsRemoveCmd(f),
		jobsToggleCmd(f, "enable", true),
		jobsToggleCmd(f, "disable", false),
		jobsRenameCmd(f),
		jobsRunCmd(f),
		jobsStatusCmd(f),
		jobsGrammarCmd(f),
	)
	return cmd
}

func jobsListCmd(f *rootFlags) *cobra.Command {
	var asTable, asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newClient(f.addr)
			if !asTable && !asJSON {
				msg, err := c.message(cmd.Context(), http.MethodGet, "/jobs", nil)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			}
			jobs, err := c.jobs(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				b, err := json.MarshalIndent(jobs, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			}
			renderJobs(cmd.OutOrStdout(), jobs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asTable, "table", false, "render a table")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw job records")
	return cmd
}

type addBody struct {
	Name           string `json:"name"`
	Prompt         string `json:"prompt"`
	Type           string `json:"type"`
	Value          string `json:"value"`
	DeleteAfterRun bool   `json:"delete_after_run"`
}

func jobsAddCmd(f *rootFlags) *cobra.Command {
	var body addBody
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a job",
		Long: `Create a job. Schedule types:
  at     one-shot: "2h", "tomorrow 6pm", "in 30 minutes"
  every  interval: "30m", "2h", "1d"
  daily  clock time: "8am", "18:00"
  cron   5-field expression: "0 9 * * 1-5"`,
		Example: `  cronbot jobs add --name water --type every --value 2h --prompt "drink water"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			msg, err := newClient(f.addr).message(cmd.Context(), http.MethodPost, "/jobs", body)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&body.Name, "name", "", "job name")
	cmd.Flags().StringVar(&body.Prompt, "prompt", "", "text delivered when the job runs")
	cmd.Flags().StringVar(&body.Type, "type", "", "schedule type: at, every, daily or cron")
	cmd.Flags().StringVar(&body.Value, "value", "", "schedule value")
	cmd.Flags().BoolVar(&body.DeleteAfterRun, "once", false, "remove the job after its first run")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func jobsRemoveCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a job",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printMessage(cmd, f, http.MethodDelete, "/jobs/"+url.PathEscape(args[0]), nil)
		},
	}
}

type updateBody struct {
	Enabled *bool   `json:"enabled,omitempty"`
	Name    *string `json:"name,omitempty"`
}

func jobsToggleCmd(f *rootFlags, use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: "Set a job's enabled flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printMessage(cmd, f, http.MethodPatch, "/jobs/"+url.PathEscape(args[0]), updateBody{Enabled: &enabled})
		},
	}
}

func jobsRenameCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[1]
			return printMessage(cmd, f, http.MethodPatch, "/jobs/"+url.PathEscape(args[0]), updateBody{Name: &name})
		},
	}
}

func jobsRunCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <id>",
		Short: "Run a job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printMessage(cmd, f, http.MethodPost, "/jobs/"+url.PathEscape(args[0])+"/run", nil)
		},
	}
}

func jobsStatusCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show scheduler status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := newClient(f.addr).status(cmd.Context())
			if err != nil {
				return err
			}
			renderStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func jobsGrammarCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "grammar",
		Short: "Show the accepted schedule syntax",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printMessage(cmd, f, http.MethodGet, "/grammar", nil)
		},
	}
}

func printMessage(cmd *cobra.Command, f *rootFlags, method, path string, body any) error {
	msg, err := newClient(f.addr).message(cmd.Context(), method, path, body)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}
