// Command devteam runs the simulated development organisation on a project
// goal, pausing for an operator whenever work needs a human decision or
// assistance.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dshills/devteam/assist"
	"github.com/dshills/devteam/config"
	"github.com/dshills/devteam/roles"
	"github.com/dshills/devteam/team"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	logLevel   string
	noPrompt   bool
}

func rootCmd() *cobra.Command {
	var g globalFlags
	cmd := &cobra.Command{
		Use:   "devteam",
		Short: "Run a simulated development team against a project goal",
		Long: `devteam plans a project goal into work items, staffs managers and
engineers for it, and drives every item through a graduated evaluation
ladder. Items that exhaust their retries are escalated to you, and failures
that need credentials, access or tooling raise assistance requests.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "devteam.yaml", "config file (YAML)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override log.level")
	cmd.PersistentFlags().BoolVar(&g.noPrompt, "no-prompt", false, "never prompt; leave suspended runs for a later resume")

	cmd.AddCommand(
		runCmd(&g),
		resumeCmd(&g),
		statusCmd(&g),
		checkpointCmd(&g),
		assessCmd(&g),
		gapsCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "devteam %s\n", buildVersion())
			},
		},
	)
	return cmd
}

func loadConfig(g *globalFlags) (*config.Config, error) {
	cfg, err := config.NewLoader().WithConfigPath(g.configPath).Load()
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withApp(cmd *cobra.Command, g *globalFlags, fn func(*app) error) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, teaPrompter{in: cmd.InOrStdin(), out: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	return errors.Join(fn(a), a.Close())
}

func runCmd(g *globalFlags) *cobra.Command {
	var goal, brief, runID string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a new run",
		Example: `  devteam run --goal "Build a REST API for a todo list with auth"
  devteam run --brief "something like trello but for recipes"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(a *app) error {
				if goal == "" && brief == "" {
					if g.noPrompt {
						return errors.New("--goal or --brief is required with --no-prompt")
					}
					var err error
					if goal, err = a.prompt.Text("What should the team build?", "", "project goal"); err != nil {
						return err
					}
				}
				var src roles.GoalSource = roles.StaticGoalSource(goal)
				if brief != "" {
					m := a.models.selector.ForAgent("goal_setting")
					if m == nil {
						src = roles.StaticGoalSource(brief)
					} else {
						src = roles.NewLLMGoalSource(m, brief, roles.WithLogger(a.logger.Named("goal")), roles.WithCostTracker(a.costs))
					}
				}
				if runID == "" {
					runID = uuid.NewString()
				}
				engine, err := a.engine(src)
				if err != nil {
					return err
				}
				s := &session{app: a, engine: engine, runID: runID, interactive: !g.noPrompt, out: cmd.OutOrStdout()}
				return a.serve(cmd.Context(), func(ctx context.Context) error {
					return s.start(ctx, team.NewState(a.cfg.Team.Limits()))
				})
			})
		},
	}
	cmd.Flags().StringVarP(&goal, "goal", "g", "", "project goal")
	cmd.Flags().StringVar(&brief, "brief", "", "rough brief to be turned into project goals by a model")
	cmd.Flags().StringVar(&runID, "run-id", "", "run id (default: a new UUID)")
	return cmd
}

func resumeCmd(g *globalFlags) *cobra.Command {
	var runID string
	var decisionArgs, resolveArgs []string
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Answer escalations and assistance requests of a suspended run",
		Example: `  devteam resume --run-id 6f1c... --decision work_3=approve:ship it
  devteam resume --run-id 6f1c... --resolve 0b9e...="token added to the vault"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			decisions, err := parseDecisions(decisionArgs)
			if err != nil {
				return err
			}
			resolutions, err := parseResolutions(resolveArgs)
			if err != nil {
				return err
			}
			return withApp(cmd, g, func(a *app) error {
				engine, err := a.engine(nil)
				if err != nil {
					return err
				}
				s := &session{app: a, engine: engine, runID: runID, interactive: !g.noPrompt, out: cmd.OutOrStdout()}
				return a.serve(cmd.Context(), func(ctx context.Context) error {
					return s.resume(ctx, decisions, resolutions)
				})
			})
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run to resume")
	cmd.Flags().StringArrayVar(&decisionArgs, "decision", nil, "item=approve|redirect|reject[:feedback] (repeatable)")
	cmd.Flags().StringArrayVar(&resolveArgs, "resolve", nil, "request-id=response (repeatable)")
	_ = cmd.MarkFlagRequired("run-id")
	return cmd
}

func statusCmd(g *globalFlags) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the latest persisted state of a run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(a *app) error {
				rec, err := a.store.LoadLatest(cmd.Context(), runID)
				if err != nil {
					return fmt.Errorf("load run %s: %w", runID, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderSummary(runID, rec.State, statusOf(rec.Next)))
				fmt.Fprintf(cmd.OutOrStdout(), "step %d at %s, next %s\n", rec.Step, rec.NodeID, rec.Next)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run to inspect")
	_ = cmd.MarkFlagRequired("run-id")
	return cmd
}

func checkpointCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Save or restore named checkpoints of a run",
	}

	var saveRun, saveName string
	save := &cobra.Command{
		Use:   "save",
		Short: "Copy the latest step of a run under a checkpoint name",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(a *app) error {
				engine, err := a.engine(nil)
				if err != nil {
					return err
				}
				if err := engine.SaveCheckpoint(cmd.Context(), saveRun, saveName); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "checkpoint %s saved from run %s\n", saveName, saveRun)
				return nil
			})
		},
	}
	save.Flags().StringVar(&saveRun, "run-id", "", "run to checkpoint")
	save.Flags().StringVar(&saveName, "name", "", "checkpoint name")
	_ = save.MarkFlagRequired("run-id")
	_ = save.MarkFlagRequired("name")

	var restoreRun, restoreName string
	restore := &cobra.Command{
		Use:   "restore",
		Short: "Make a checkpoint the latest step of a run, then resume it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(a *app) error {
				engine, err := a.engine(nil)
				if err != nil {
					return err
				}
				if restoreRun == "" {
					restoreRun = uuid.NewString()
				}
				if err := engine.RestoreCheckpoint(cmd.Context(), restoreName, restoreRun); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "checkpoint %s restored as run %s\n", restoreName, restoreRun)
				return nil
			})
		},
	}
	restore.Flags().StringVar(&restoreRun, "run-id", "", "target run (default: a new UUID)")
	restore.Flags().StringVar(&restoreName, "name", "", "checkpoint name")
	_ = restore.MarkFlagRequired("name")

	cmd.AddCommand(save, restore)
	return cmd
}

func assessCmd(g *globalFlags) *cobra.Command {
	var workContext string
	cmd := &cobra.Command{
		Use:   "assess <goal>",
		Short: "Print the complexity assessment and team size for a goal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(a *app) error {
				if workContext == "" {
					workContext = a.cfg.Team.WorkContext
				}
				assessment := a.assessor().Assess(cmd.Context(), strings.Join(args, " "), workContext, a.cfg.Team.Limits())
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(assessment); err != nil {
					return err
				}
				return enc.Close()
			})
		},
	}
	cmd.Flags().StringVar(&workContext, "context", "", "additional work context")
	return cmd
}

func gapsCmd() *cobra.Command {
	var task string
	cmd := &cobra.Command{
		Use:   "gaps <error message>",
		Short: "Classify a failure message into capability gaps",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gaps := assist.IdentifyGaps(strings.Join(args, " "), task)
			fmt.Fprintln(cmd.OutOrStdout(), assist.FormatGaps(gaps))
			for _, gap := range gaps {
				fmt.Fprintf(cmd.OutOrStdout(), "  -> %s request, %s urgency\n", assist.RequestTypeFor(gap), assist.UrgencyFor(gap))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&task, "task", "", "description of the task that failed")
	return cmd
}

// parseDecisions reads item=decision[:feedback] arguments.
func parseDecisions(args []string) (map[string]team.HumanDecision, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]team.HumanDecision, len(args))
	for _, arg := range args {
		id, rest, ok := strings.Cut(arg, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("decision %q: want item=decision[:feedback]", arg)
		}
		verdict, feedback, _ := strings.Cut(rest, ":")
		d := team.Decision(strings.ToLower(strings.TrimSpace(verdict)))
		if !d.Valid() {
			return nil, fmt.Errorf("decision %q: unknown decision %q", arg, verdict)
		}
		out[strings.TrimSpace(id)] = team.HumanDecision{Decision: d, Feedback: strings.TrimSpace(feedback)}
	}
	return out, nil
}

// parseResolutions reads request-id=response arguments.
func parseResolutions(args []string) (map[string]assist.Resolution, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]assist.Resolution, len(args))
	for _, arg := range args {
		id, response, ok := strings.Cut(arg, "=")
		if !ok || id == "" || strings.TrimSpace(response) == "" {
			return nil, fmt.Errorf("resolution %q: want request-id=response", arg)
		}
		out[strings.TrimSpace(id)] = assist.Resolution{HumanResponse: strings.TrimSpace(response)}
	}
	return out, nil
}
