// Command solarcalc runs projections offline from an inputs file and an
// hourly generation CSV.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/raterudder/solarconsumer/pkg/common"
	"github.com/raterudder/solarconsumer/pkg/inputs"
	"github.com/raterudder/solarconsumer/pkg/log"
	"github.com/raterudder/solarconsumer/pkg/pvsim"
	"github.com/raterudder/solarconsumer/pkg/report"
	"github.com/raterudder/solarconsumer/pkg/solar"
	"github.com/raterudder/solarconsumer/pkg/types"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:          "solarcalc",
		Short:        "Compare the cost of solar acquisition options for a household",
		Version:      common.Version(),
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			cmd.SetContext(log.With(cmd.Context(), logger))
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	cmd.AddCommand(runCmd())
	cmd.AddCommand(validateCmd())
	cmd.AddCommand(defaultsCmd())
	cmd.AddCommand(simulateCmd())
	return cmd
}

// inputFlags are shared by the commands that read run inputs.
type inputFlags struct {
	path string
	set  map[string]string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.path, "inputs", "i", "", "YAML file of run inputs, merged over the defaults")
	cmd.Flags().StringToStringVar(&f.set, "set", nil, "override individual inputs, e.g. --set years=10,retailRate=0.12")
}

func (f *inputFlags) load() (map[string]string, error) {
	raw := inputs.Defaults()
	if f.path != "" {
		file, err := inputs.LoadFile(f.path)
		if err != nil {
			return nil, err
		}
		raw = inputs.Merge(raw, file)
	}
	return inputs.Merge(raw, f.set), nil
}

func runCmd() *cobra.Command {
	var (
		in         inputFlags
		generation string
		ledger     string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Project bills for every scenario and print the summary table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := in.load()
			if err != nil {
				return err
			}
			return runProjection(cmd.Context(), cmd.OutOrStdout(), raw, generation, ledger, asJSON)
		},
	}
	in.register(cmd)
	cmd.Flags().StringVarP(&generation, "generation", "g", "", "hourly generation CSV with hour,ac_watts columns")
	cmd.Flags().StringVar(&ledger, "ledger", "", "write the monthly ledger CSV to this path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full projection as JSON instead of the summary table")
	_ = cmd.MarkFlagRequired("generation")
	return cmd
}

func runProjection(ctx context.Context, out io.Writer, raw map[string]string, generation, ledger string, asJSON bool) error {
	in, err := inputs.Parse(raw)
	if err != nil {
		return err
	}

	sim, err := pvsim.NewCSVFile(generation).Simulate(ctx, pvsim.Request{SystemSize: in.SystemSize, ZipCode: in.ZipCode})
	if err != nil {
		return err
	}

	start := time.Now()
	p, err := solar.Compute(sim.Samples, in)
	if err != nil {
		return err
	}
	log.Ctx(ctx).DebugContext(ctx, "computed projection", slog.Duration("took", time.Since(start)), slog.Int("years", p.Years))

	if ledger != "" {
		if err := writeLedger(ledger, p); err != nil {
			return err
		}
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}
	if err := report.WriteSummary(out, report.SummaryTable(p, in.GreenFuelMix)); err != nil {
		return err
	}
	for _, a := range p.Assumptions {
		fmt.Fprintf(out, "* %s\n", a)
	}
	return nil
}

func writeLedger(path string, p *types.Projection) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating ledger file: %w", err)
	}
	if err := report.WriteLedgerCSV(f, report.Ledger(p)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func validateCmd() *cobra.Command {
	var in inputFlags
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check run inputs without computing a projection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := in.load()
			if err != nil {
				return err
			}
			parsed, err := inputs.Parse(raw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %gkW over %d years with %s\n", parsed.SystemSize, parsed.Years, parsed.MeteringType)
			return nil
		},
	}
	in.register(cmd)
	return cmd
}

func defaultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "Print the default inputs as YAML, a starting point for an inputs file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(inputs.Defaults()); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func simulateCmd() *cobra.Command {
	var (
		in      inputFlags
		apiURL  string
		apiKey  string
		timeout time.Duration
		out     string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Fetch a year of hourly generation from PVWatts and write it as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := in.load()
			if err != nil {
				return err
			}
			parsed, err := inputs.Parse(raw)
			if err != nil {
				return err
			}
			p := pvsim.NewPVWatts(apiURL, apiKey, common.HTTPClient(timeout))
			if err := p.Validate(); err != nil {
				return err
			}
			sim, err := p.Simulate(cmd.Context(), pvsim.Request{SystemSize: parsed.SystemSize, ZipCode: parsed.ZipCode})
			if err != nil {
				return err
			}
			log.Ctx(cmd.Context()).InfoContext(
				cmd.Context(),
				"simulated generation",
				slog.String("city", sim.Site.City),
				slog.String("state", sim.Site.State),
			)

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("error creating generation file: %w", err)
				}
				defer f.Close()
				w = f
			}
			return pvsim.WriteCSV(w, sim.Samples)
		},
	}
	in.register(cmd)
	cmd.Flags().StringVar(&apiURL, "api-url", pvsim.DefaultPVWattsURL, "PVWatts API endpoint")
	cmd.Flags().StringVar(&apiKey, "api-key", envOr("PVWATTS_API_KEY", "DEMO_KEY"), "PVWatts API key, defaults to $PVWATTS_API_KEY")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "PVWatts request timeout")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the CSV to this path instead of stdout")
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
