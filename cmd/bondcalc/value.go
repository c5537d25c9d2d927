package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aristath/bondcalc/internal/modules/validation"
	"github.com/aristath/bondcalc/internal/modules/valuation"
	"github.com/aristath/bondcalc/pkg/logger"
)

type valueOptions struct {
	params    valuation.BondParameters
	tolerance float64
	asJSON    bool
	schedule  bool
	logLevel  string
}

func newRootCmd() *cobra.Command {
	opts := &valueOptions{}

	cmd := &cobra.Command{
		Use:   "bondcalc",
		Short: "Value a fixed-coupon bond",
		Long: `Prices a fixed-coupon bond as the present value of its coupons and face value,
classifies it as par, premium or discount, and optionally prints the cash-flow schedule.`,
		Example: `  bondcalc --face 1000 --coupon 6 --ytm 5 --years 10 --frequency 2
  bondcalc --coupon 4 --ytm 5 --years 5 --frequency 4 --schedule
  bondcalc --json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runValue(cmd.OutOrStdout(), opts)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&opts.params.FaceValue, "face", 1000, "Face value paid at maturity")
	flags.Float64Var(&opts.params.CouponRate, "coupon", 5, "Annual coupon rate in percent")
	flags.Float64Var(&opts.params.YTM, "ytm", 5, "Annual yield to maturity in percent")
	flags.Float64Var(&opts.params.Years, "years", 10, "Years to maturity")
	flags.IntVar(&opts.params.Frequency, "frequency", 2, "Coupon payments per year (1, 2, 4 or 12)")
	flags.Float64Var(&opts.tolerance, "tolerance", valuation.DefaultParTolerance, "Par classification tolerance in currency units")
	flags.BoolVar(&opts.asJSON, "json", false, "Print the full result as JSON")
	flags.BoolVar(&opts.schedule, "schedule", false, "Print the cash-flow schedule")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	return cmd
}

func runValue(out io.Writer, opts *valueOptions) error {
	log := logger.New(logger.Config{Level: opts.logLevel, Pretty: true, Output: os.Stderr})

	if errs := validation.New().ValidateParams(opts.params); validation.HasErrors(errs) {
		return fmt.Errorf("invalid bond parameters: %s", formatErrors(errs))
	}

	result, err := valuation.NewService(opts.tolerance, log).CalculateBondMetrics(opts.params)
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if err := printSummary(out, opts.params, result); err != nil {
		return err
	}
	if opts.schedule {
		fmt.Fprintln(out)
		return printSchedule(out, result.CashFlows)
	}
	return nil
}

func printSummary(out io.Writer, params valuation.BondParameters, r *valuation.ValuationResult) error {
	s := valuation.Summarize(r)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Bond price\t%s\n", s.BondPrice)
	fmt.Fprintf(tw, "PV of coupons\t%s\n", s.PVCoupons)
	fmt.Fprintf(tw, "PV of face value\t%s\n", s.PVFaceValue)
	fmt.Fprintf(tw, "Periodic coupon\t%s\n", s.PeriodicCoupon)
	fmt.Fprintf(tw, "Periods\t%d\n", s.Periods)
	fmt.Fprintf(tw, "Classification\t%s (%s vs face %s)\n", s.Description, s.Difference, valuation.FormatAmount(params.FaceValue))
	fmt.Fprintf(tw, "Current yield\t%s\n", valuation.FormatPercent(r.Analytics.CurrentYield, 3))
	fmt.Fprintf(tw, "Macaulay duration\t%.4f years\n", r.Analytics.MacaulayDuration)
	fmt.Fprintf(tw, "Modified duration\t%.4f\n", r.Analytics.ModifiedDuration)
	fmt.Fprintf(tw, "Convexity\t%.4f\n", r.Analytics.Convexity)

	return tw.Flush()
}

func printSchedule(out io.Writer, flows []valuation.CashFlow) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintln(tw, "Period\tYear\tCoupon\tPrincipal\tTotal\t")
	for _, cf := range flows {
		fmt.Fprintf(tw, "%d\t%.2f\t%s\t%s\t%s\t\n",
			cf.Period,
			cf.YearLabel,
			valuation.FormatAmount(cf.CouponPayment),
			valuation.FormatAmount(cf.PrincipalPayment),
			valuation.FormatAmount(cf.TotalCashFlow),
		)
	}

	return tw.Flush()
}

func formatErrors(errs map[string]string) string {
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		if errs[field] != "" {
			parts = append(parts, errs[field])
		}
	}
	return strings.Join(parts, "; ")
}
