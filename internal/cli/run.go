package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tutu-network/riemann/internal/daemon"
)

func init() {
	runCmd.Flags().BoolVar(&runRecord, "record", false, "Record this run in the history database")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print dispatch statistics after the result")
	runCmd.Flags().StringVar(&runBroadcast, "broadcast", "", "Broadcast address for discovery (overrides config)")
	runCmd.Flags().IntVar(&runMaxAttempts, "max-attempts", -1, "Give up after this many empty discoveries (0 = never)")
	rootCmd.AddCommand(runCmd)
}

var (
	runRecord      bool
	runVerbose     bool
	runBroadcast   string
	runMaxAttempts int
)

var runCmd = &cobra.Command{
	Use:   "run START END STEP",
	Short: "Integrate over [START, END) using workers on the local network",
	Long: `Discover workers by UDP broadcast, split [START, END) into chunks of width 10
and dispatch them in rounds. Prints the sum of every successful chunk.

A worker that fails a chunk is dropped; its chunk contributes zero.

START and END may be negative. The result is printed in the shortest form
that reads back as the same float64, not rounded to 6 significant digits.`,
	// Negative bounds look like shorthand flags to pflag; runRun separates
	// them from real flags itself.
	DisableFlagParsing: true,
	RunE:               runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cmd.InheritedFlags() // merges --config and --log-level into cmd.Flags()
	fs := cmd.Flags()
	flagArgs, pos := splitRunArgs(fs, args)
	if err := fs.Parse(flagArgs); err != nil {
		return cmd.FlagErrorFunc()(cmd, err)
	}
	if help, _ := fs.GetBool("help"); help {
		return cmd.Help()
	}
	pos = append(pos, fs.Args()...)
	if len(pos) != 3 {
		return fmt.Errorf("accepts 3 arg(s), received %d", len(pos))
	}

	start, end, step, err := parseRange(pos)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runRecord {
		cfg.History.Enabled = true
	}
	if runBroadcast != "" {
		cfg.Discovery.Broadcast = runBroadcast
	}
	if runMaxAttempts >= 0 {
		cfg.Coordinator.MaxDiscoveryAttempts = runMaxAttempts
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	c, err := daemon.NewCoordinator(cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := daemon.SignalContext(cmd.Context())
	defer stop()

	sum, err := c.Run(ctx, start, end, step)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Result: %v\n", sum.Total)
	if runVerbose {
		fmt.Fprintf(out, "Tasks: %d  Dispatched: %d  Failed: %d  Rounds: %d  Discoveries: %d\n",
			sum.Tasks, sum.Dispatched, sum.Failed, sum.Rounds, sum.Discoveries)
	}
	return nil
}

// parseRange parses the three positional arguments of `run`.
func parseRange(args []string) (start, end, step float64, err error) {
	names := [3]string{"start", "end", "step"}
	var vals [3]float64
	for i, a := range args {
		v, perr := strconv.ParseFloat(a, 64)
		if perr != nil {
			return 0, 0, 0, fmt.Errorf("invalid %s %q: not a number", names[i], a)
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], nil
}

// splitRunArgs separates flags and their values from positional arguments.
// Anything that parses as a number is positional, so "-5" is a bound and not
// the shorthand flag -5. Everything after "--" is positional.
func splitRunArgs(fs *pflag.FlagSet, args []string) (flags, positional []string) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--":
			return flags, append(positional, args[i+1:]...)
		case a == "-" || !strings.HasPrefix(a, "-") || isNumber(a):
			positional = append(positional, a)
		default:
			flags = append(flags, a)
			f := lookupFlag(fs, a)
			if f != nil && f.NoOptDefVal == "" && !strings.Contains(a, "=") && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		}
	}
	return flags, positional
}

func lookupFlag(fs *pflag.FlagSet, arg string) *pflag.Flag {
	if name, ok := strings.CutPrefix(arg, "--"); ok {
		return fs.Lookup(name)
	}
	if len(arg) == 2 {
		return fs.ShorthandLookup(arg[1:])
	}
	return nil
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
