package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/transformer-puzzle/pkg/client"
	"github.com/rmax-ai/transformer-puzzle/pkg/puzzle"
)

const defaultAPI = "http://127.0.0.1:8090"

// errVerdictFailed makes a failed check exit 1 after the verdict is printed.
var errVerdictFailed = errors.New("check did not pass")

type rootOptions struct {
	apiURL string
	token  string
	json   bool
}

func (o *rootOptions) client() *client.Client {
	return client.NewClient(o.apiURL,
		client.WithOrigin("cli"),
		client.WithAdminToken(o.token),
		client.WithRetries(2, client.DefaultBackoff()),
	)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	api := os.Getenv("TPUZZLE_API")
	if api == "" {
		api = defaultAPI
	}

	rootCmd := &cobra.Command{
		Use:   "tpuzzle",
		Short: "Assemble the Transformer architecture block by block",
		Long: `tpuzzle talks to a tpuzzle-d daemon to play the Transformer puzzle,
inspect the reference architecture, read the event journal and run scripted
simulations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.apiURL, "api", api, "base URL of tpuzzle-d (env TPUZZLE_API)")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("TPUZZLE_ADMIN_TOKEN"), "admin token for simulations and pruning (env TPUZZLE_ADMIN_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&opts.json, "json", false, "print JSON instead of text")

	rootCmd.AddCommand(
		newReferenceCmd(opts),
		newSessionCmd(opts),
		newEventsCmd(opts),
		newSimCmd(opts),
		newMCPCmd(opts),
		newArchiveCmd(opts),
		newReportCmd(opts),
		newAdminCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "tpuzzle %s (%s, built %s)\n", Version, Commit, BuildTime)
			},
		},
	)
	return rootCmd
}

func newReferenceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reference [encoder|decoder]",
		Short: "Show the reference block sequence and arrows of a stage",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stages := []puzzle.Stage{puzzle.StageEncoder, puzzle.StageDecoder}
			if len(args) == 1 {
				stage, err := puzzle.ParseStage(args[0])
				if err != nil {
					return err
				}
				stages = []puzzle.Stage{stage}
			}

			out := cmd.OutOrStdout()
			for _, stage := range stages {
				ref, _ := puzzle.Reference(stage)
				if opts.json {
					if err := writeJSON(out, ref); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintf(out, "%s (read bottom to top)\n", stage)
				for i, l := range ref.Sequence {
					fmt.Fprintf(out, "  %2d  %s\n", i, l)
				}
				edges := make([]string, len(ref.Edges))
				for i, e := range ref.Edges {
					edges[i] = e.String()
				}
				fmt.Fprintf(out, "  arrows: %s\n", strings.Join(edges, " "))
			}
			return nil
		},
	}
}

func newSessionCmd(opts *rootOptions) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Create, inspect and play sessions on the daemon",
	}

	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.client().Create(cmd.Context())
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			fmt.Fprintln(cmd.OutOrStdout(), st.ID)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List session IDs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := opts.client().List(cmd.Context())
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), ids)
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <session_id>",
		Short: "Show the active stage in reading order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.client().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			printSession(cmd.OutOrStdout(), st)
			return nil
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check <session_id>",
		Short: "Validate the active stage; exits 1 unless it passes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := opts.client().Check(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.json {
				if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
			} else {
				printOutcome(cmd.OutOrStdout(), out)
			}
			if out.Verdict == nil || !out.Verdict.Success {
				return errVerdictFailed
			}
			return nil
		},
	}

	placeCmd := &cobra.Command{
		Use:   "place <session_id> <label> <x> <y>",
		Short: "Place a palette block with its top-left corner at (x, y)",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := parsePoint(args[2], args[3])
			if err != nil {
				return err
			}
			label, ok := puzzle.ParseLabel(args[1])
			if !ok {
				label = puzzle.Label(args[1])
			}
			return applyAndPrint(cmd, opts, args[0], puzzle.PlaceBlock(label, at))
		},
	}

	moveCmd := &cobra.Command{
		Use:   "move <session_id> <block_id> <x> <y>",
		Short: "Move a block's top-left corner to (x, y)",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := parsePoint(args[2], args[3])
			if err != nil {
				return err
			}
			return applyAndPrint(cmd, opts, args[0], puzzle.MoveBlock(puzzle.BlockID(args[1]), at))
		},
	}

	var fromSide, toSide string
	connectCmd := &cobra.Command{
		Use:   "connect <session_id> <from_block> <to_block>",
		Short: "Draw an arrow between two blocks",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyAndPrint(cmd, opts, args[0], puzzle.Connect(
				puzzle.Endpoint{Block: puzzle.BlockID(args[1]), Side: puzzle.Side(fromSide)},
				puzzle.Endpoint{Block: puzzle.BlockID(args[2]), Side: puzzle.Side(toSide)},
			))
		},
	}
	connectCmd.Flags().StringVar(&fromSide, "from-side", string(puzzle.SideTop), "connection point on the source block")
	connectCmd.Flags().StringVar(&toSide, "to-side", string(puzzle.SideBottom), "connection point on the target block")

	discardCmd := &cobra.Command{
		Use:   "discard <session_id> <block_id>",
		Short: "Remove a block from the active stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyAndPrint(cmd, opts, args[0], puzzle.DiscardBlock(puzzle.BlockID(args[1])))
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear <session_id>",
		Short: "Remove every block and arrow of the active stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyAndPrint(cmd, opts, args[0], puzzle.ClearStage())
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <session_id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}

	sessionCmd.AddCommand(newCmd, listCmd, showCmd, checkCmd, placeCmd, moveCmd, connectCmd, discardCmd, clearCmd, deleteCmd)
	return sessionCmd
}

func applyAndPrint(cmd *cobra.Command, opts *rootOptions, id string, c puzzle.Command) error {
	out, st, err := opts.client().Apply(cmd.Context(), id, c)
	if err != nil {
		return err
	}
	if opts.json {
		return writeJSON(cmd.OutOrStdout(), map[string]any{"outcome": out, "session": st})
	}
	printOutcome(cmd.OutOrStdout(), out)
	return nil
}

func newEventsCmd(opts *rootOptions) *cobra.Command {
	var (
		sessionID string
		types     []string
		limit     int
	)
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Show journaled session events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := opts.client().Events(cmd.Context(), client.EventsOptions{
				SessionID: sessionID,
				Types:     types,
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), events)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tTYPE\tSESSION\tSTAGE\tORIGIN\tPAYLOAD")
			for _, e := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.TsEvent.Format("15:04:05.000"), e.EventType, e.SessionID, e.Stage, e.Source.OriginKind, string(e.Payload))
			}
			return w.Flush()
		},
	}
	eventsCmd.Flags().StringVar(&sessionID, "session", "", "only events of this session")
	eventsCmd.Flags().StringSliceVar(&types, "type", nil, "only these event types (repeatable or comma-separated)")
	eventsCmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events")
	return eventsCmd
}

func printSession(w io.Writer, st puzzle.State) {
	status := "in progress"
	if st.Completed {
		status = "complete"
	}
	fmt.Fprintf(w, "Session %s: stage %s, %s\n", st.ID, st.Stage, status)
	if len(st.Encoder.Blocks) > 0 && st.Stage == puzzle.StageDecoder {
		fmt.Fprintf(w, "Saved encoder: %d blocks, %d arrows\n", len(st.Encoder.Blocks), len(st.Encoder.Arrows))
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tBLOCK\tLABEL\tX\tY")
	for i, b := range puzzle.ReadingOrder(st.Canvas.Blocks) {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\n", i, b.ID, b.Label, b.Rect.X, b.Rect.Y)
	}
	tw.Flush()

	for _, a := range st.Canvas.Arrows {
		fmt.Fprintf(w, "%s: %s.%s -> %s.%s\n", a.ID, a.From.Block, a.From.Side, a.To.Block, a.To.Side)
	}
}

func printOutcome(w io.Writer, out puzzle.Outcome) {
	switch {
	case out.Verdict != nil:
		fmt.Fprintln(w, out.Verdict.String())
		if ids := out.Verdict.Offenders(); len(ids) > 0 {
			fmt.Fprintf(w, "Offending blocks: %v\n", ids)
		}
		if out.Advanced {
			fmt.Fprintln(w, "Encoder saved; now build the decoder.")
		}
		if out.Completed {
			fmt.Fprintln(w, "Puzzle complete!")
		}
	case out.Arrow != "":
		fmt.Fprintf(w, "%s %s\n", out.Kind, out.Arrow)
	case out.Block != "":
		fmt.Fprintf(w, "%s %s\n", out.Kind, out.Block)
	default:
		fmt.Fprintln(w, out.Kind)
	}
}

func parsePoint(xs, ys string) (puzzle.Point, error) {
	x, err := strconv.Atoi(xs)
	if err != nil {
		return puzzle.Point{}, fmt.Errorf("invalid x %q", xs)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return puzzle.Point{}, fmt.Errorf("invalid y %q", ys)
	}
	return puzzle.Point{X: x, Y: y}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
