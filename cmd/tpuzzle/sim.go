package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/transformer-puzzle/pkg/game"
	"github.com/rmax-ai/transformer-puzzle/pkg/mcp"
	"github.com/rmax-ai/transformer-puzzle/pkg/simulation"
)

var errSimulationFailed = errors.New("simulation did not reach the expected verdict")

func newSimCmd(opts *rootOptions) *cobra.Command {
	var (
		scenarioFile string
		remote       bool
		outputFile   string
		list         bool
	)
	simCmd := &cobra.Command{
		Use:   "sim [scenario]",
		Short: "Play a scripted scenario and report the verdicts",
		Long: `sim plays a built-in or YAML scenario. By default it runs in-process;
with --remote the daemon plays it against its own session store.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list {
				for _, s := range simulation.DefaultScenarios() {
					fmt.Fprintf(out, "%-20s %s\n", s.Name, s.Description)
				}
				return nil
			}

			var (
				scenario *simulation.Scenario
				name     = "solve"
			)
			switch {
			case scenarioFile != "":
				s, err := simulation.LoadScenario(scenarioFile)
				if err != nil {
					return err
				}
				scenario = &s
			case len(args) == 1:
				name = args[0]
			}

			var res simulation.SimulationResult
			if remote {
				var err error
				res, err = opts.client().Simulate(cmd.Context(), name, scenario)
				if err != nil {
					return err
				}
			} else {
				if scenario == nil {
					s, err := simulation.FindScenario(name)
					if err != nil {
						return fmt.Errorf("%w (known: %s)", err, strings.Join(simulation.ScenarioNames(), ", "))
					}
					scenario = &s
				}
				logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
				mgr := game.NewManager(nil, game.WithLogger(logger))
				res = simulation.RunScenario(cmd.Context(), *scenario, mgr, logger)
			}

			if err := writeReport(out, res, opts.json, outputFile); err != nil {
				return err
			}
			if !res.Success {
				return errSimulationFailed
			}
			return nil
		},
	}
	simCmd.Flags().StringVar(&scenarioFile, "scenario", "", "path to a YAML scenario file")
	simCmd.Flags().BoolVar(&remote, "remote", false, "run the scenario on the daemon")
	simCmd.Flags().StringVar(&outputFile, "out", "", "write the report to this file instead of stdout")
	simCmd.Flags().BoolVar(&list, "list", false, "list the built-in scenarios")
	return simCmd
}

func writeReport(w io.Writer, res simulation.SimulationResult, jsonFmt bool, filePath string) error {
	var output []byte
	if jsonFmt {
		var err error
		output, err = json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
	} else {
		var buf bytes.Buffer
		status := "FAIL"
		if res.Success {
			status = "PASS"
		}
		fmt.Fprintf(&buf, "\n--- Simulation Report: %s [%s] ---\n", res.ScenarioName, status)
		fmt.Fprintf(&buf, "Duration: %s | Seed: %d | Expected: %s\n", res.Duration, res.Seed, res.Expected)
		fmt.Fprintf(&buf, "Commands: %d | Errors: %d | Players: %d\n", res.TotalCommands, res.TotalErrors, len(res.Players))

		for i, p := range res.Players {
			fmt.Fprintf(&buf, "\nPlayer %d (%s): final %s, %d commands\n", i+1, p.SessionID, p.Final, p.Commands)
			for _, step := range p.Timeline {
				fmt.Fprintf(&buf, "  [%s] %s: %s\n", step.Stage, step.Verdict, step.Message)
			}
			if p.Error != "" {
				fmt.Fprintf(&buf, "  error: %s\n", p.Error)
			}
		}
		output = buf.Bytes()
	}

	if filePath != "" {
		if err := os.WriteFile(filePath, output, 0644); err != nil {
			return fmt.Errorf("write report to %s: %w", filePath, err)
		}
		fmt.Fprintf(w, "Report written to %s\n", filePath)
		return nil
	}
	fmt.Fprintln(w, string(output))
	return nil
}

func newMCPCmd(opts *rootOptions) *cobra.Command {
	var local bool
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the puzzle to an agent over MCP on stdio",
		Long: `mcp exposes the puzzle as MCP tools, resources and a tutor prompt.
It forwards to the daemon at --api unless --local is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if local {
				// stdout carries the protocol.
				logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), nil))
				return mcp.NewServer(game.NewManager(nil, game.WithLogger(logger))).Serve()
			}
			return mcp.NewRemoteServer(opts.apiURL).Serve()
		},
	}
	mcpCmd.Flags().BoolVar(&local, "local", false, "host sessions in-process instead of on the daemon")
	return mcpCmd
}
