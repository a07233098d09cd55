package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/aristath/hedgebook/internal/clients/ocr"
	"github.com/aristath/hedgebook/internal/domain"
	"github.com/aristath/hedgebook/internal/formatting"
	"github.com/aristath/hedgebook/internal/modules/importer"
	"github.com/aristath/hedgebook/internal/modules/portfolio"
	"github.com/aristath/hedgebook/internal/modules/scenario"
	"github.com/aristath/hedgebook/internal/modules/spreads"
)

const ocrTimeout = 90 * time.Second

// summaryView is the output of the summary command.
type summaryView struct {
	Holding     domain.Holding       `json:"holding"`
	Cash        domain.Cash          `json:"cash"`
	MarketIndex decimal.Decimal      `json:"marketIndex"`
	Positions   int                  `json:"positions"`
	Metrics     portfolio.Metrics    `json:"metrics"`
	Daily       portfolio.DailyStats `json:"daily"`
}

func summaryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show holding, hedge and total P&L",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(cmd.Context(), opts, newLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			state := newState(doc, opts)
			view := summaryView{
				Holding:     state.Holding(),
				Cash:        state.Cash(),
				MarketIndex: state.MarketIndex(),
				Positions:   len(state.Positions()),
				Metrics:     state.Metrics(),
				Daily:       state.DailyStats(state.Today()),
			}
			return render(cmd.OutOrStdout(), opts.output, view, func(w io.Writer) error {
				return writeSummary(w, view)
			})
		},
	}
}

func writeSummary(w io.Writer, v summaryView) error {
	m := v.Metrics
	t := newTable("", "").alignRight(1)
	t.add("Holding", fmt.Sprintf("%s x %d", v.Holding.Symbol, v.Holding.Shares))
	t.add("Avg cost", formatting.MoneyCents(v.Holding.AvgCost))
	t.add("Price", formatting.MoneyCents(v.Holding.CurrentPrice))
	t.add("Index", formatting.Points(v.MarketIndex))
	t.add("Hedge legs", strconv.Itoa(v.Positions))
	t.add("Equity P&L", formatting.Signed(m.EquityPL)+" ("+formatting.SignedPercent(m.EquityReturn, 2)+")")
	t.add("Cash P&L", formatting.Signed(m.CashPL))
	t.add("Hedge P&L", formatting.Signed(m.TotalHedgePL))
	t.add("Total P&L", formatting.Signed(m.TotalPL))
	t.add("Total cost", formatting.Money(m.TotalCost))
	t.add("Total return", formatting.SignedPercent(m.TotalReturn, 2))
	t.add("Today max", formatting.Signed(v.Daily.TodayMax))
	t.add("Month change", formatting.Signed(v.Daily.MonthChange))
	t.add("Avg daily max", formatting.Signed(v.Daily.AvgDaily))
	return t.write(w)
}

// scenarioView is the output of the scenario command.
type scenarioView struct {
	Center     decimal.Decimal   `json:"center"`
	Range      decimal.Decimal   `json:"range"`
	Steps      int               `json:"steps"`
	Samples    []scenario.Sample `json:"samples"`
	Breakevens []decimal.Decimal `json:"breakevens"`
}

func scenarioCmd(opts *options) *cobra.Command {
	var (
		rangeFlag  string
		centerFlag string
		steps      int
	)
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Project P&L across a percent range of the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rangeFrac, err := decimal.NewFromString(rangeFlag)
			if err != nil || !rangeFrac.IsPositive() || rangeFrac.GreaterThan(decimal.NewFromInt(1)) {
				return fmt.Errorf("range must be a fraction in (0, 1], got %q", rangeFlag)
			}
			if steps < 0 || steps > 200 {
				return fmt.Errorf("steps must be in 0-200, got %d", steps)
			}

			doc, err := loadDocument(cmd.Context(), opts, newLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			center, err := centerOf(doc, centerFlag)
			if err != nil {
				return err
			}

			samples := scenario.Generate(doc.Holding, doc.Positions, center, rangeFrac, steps)
			view := scenarioView{
				Center:     center,
				Range:      rangeFrac,
				Steps:      steps,
				Samples:    samples,
				Breakevens: nonNil(scenario.Breakevens(samples)),
			}
			return render(cmd.OutOrStdout(), opts.output, view, func(w io.Writer) error {
				t := newTable("Change", "Index", "Stock P&L", "Hedge P&L", "Net P&L").alignRight(0, 1, 2, 3, 4)
				for _, s := range view.Samples {
					t.add(formatting.SignedPercent(s.Percent, 2), formatting.Points(s.Index),
						formatting.SignedInt(s.StockPL), formatting.SignedInt(s.HedgePL), formatting.SignedInt(s.NetPL))
				}
				if err := t.write(w); err != nil {
					return err
				}
				return writeBreakevens(w, view.Breakevens)
			})
		},
	}
	cmd.Flags().StringVar(&rangeFlag, "range", scenario.DefaultRange.String(), "Half-width of the projection as a fraction of the index")
	cmd.Flags().IntVar(&steps, "steps", scenario.DefaultSteps, "Samples on each side of the center")
	cmd.Flags().StringVar(&centerFlag, "center", "", "Center index level (defaults to the document's index)")
	return cmd
}

func writeBreakevens(w io.Writer, levels []decimal.Decimal) error {
	if len(levels) == 0 {
		_, err := fmt.Fprintln(w, "\nBreakeven: none in range")
		return err
	}
	for _, l := range levels {
		if _, err := fmt.Fprintf(w, "\nBreakeven: %s", formatting.Points(l)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

// tableView is the output of the table command.
type tableView struct {
	Center decimal.Decimal `json:"center"`
	Span   int64           `json:"span"`
	Step   int64           `json:"step"`
	Rows   []scenario.Row  `json:"rows"`
}

func tableCmd(opts *options) *cobra.Command {
	var (
		span, step int64
		centerFlag string
	)
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Simulate P&L at fixed index point offsets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if span <= 0 || step <= 0 {
				return errors.New("span and step must be positive")
			}
			if span/step > 200 {
				return fmt.Errorf("span/step must be at most 200, got %d", span/step)
			}

			doc, err := loadDocument(cmd.Context(), opts, newLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			center, err := centerOf(doc, centerFlag)
			if err != nil {
				return err
			}

			view := tableView{
				Center: center,
				Span:   span,
				Step:   step,
				Rows:   scenario.GeneratePoints(doc.Holding, doc.Positions, center, span, step),
			}
			return render(cmd.OutOrStdout(), opts.output, view, func(w io.Writer) error {
				t := newTable("", "Points", "Index", "Change", "Stock P&L", "Hedge P&L", "Net P&L").alignRight(1, 2, 3, 4, 5, 6)
				for _, r := range view.Rows {
					marker := ""
					if r.IsCurrent {
						marker = ">"
					}
					t.add(marker, strconv.FormatInt(r.Delta, 10), formatting.Points(r.Index),
						formatting.SignedPercent(r.Percent, 2), formatting.SignedInt(r.StockPL),
						formatting.SignedInt(r.HedgePL), formatting.SignedInt(r.NetPL))
				}
				return t.write(w)
			})
		},
	}
	cmd.Flags().Int64Var(&span, "span", scenario.DefaultSpan, "Points on each side of the center")
	cmd.Flags().Int64Var(&step, "step", scenario.DefaultPointStep, "Points between rows")
	cmd.Flags().StringVar(&centerFlag, "center", "", "Center index level (defaults to the document's index)")
	return cmd
}

func spreadsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "spreads",
		Short: "List detected vertical spreads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(cmd.Context(), opts, newLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			found := nonNil(spreads.Detect(doc.Positions))
			return render(cmd.OutOrStdout(), opts.output, found, func(w io.Writer) error {
				if len(found) == 0 {
					_, err := fmt.Fprintln(w, "No spreads detected")
					return err
				}
				t := newTable("Type", "Buy", "Sell", "Legs").alignRight(1, 2)
				for _, s := range found {
					t.add(string(s.Type), formatting.Strike(s.BuyStrike), formatting.Strike(s.SellStrike), s.LegAID+" / "+s.LegBID)
				}
				return t.write(w)
			})
		},
	}
}

// importView is the output of the import command.
type importView struct {
	Legs    []domain.Position `json:"legs"`
	Written bool              `json:"written"`
	Replace bool              `json:"replace"`
}

func importCmd(opts *options) *cobra.Command {
	var write, replace bool
	cmd := &cobra.Command{
		Use:   "import [file|-]",
		Short: "Parse bulk-import rows and optionally apply them to --file",
		Long: `Parse rows of the form type,side,callPut,strike,premium,qty. Without
--write the parsed legs are only printed. With --write the legs are applied to
the document named by --file; the device's local cache is never written.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if write && opts.file == "" {
				return errors.New("--write needs --file")
			}

			text, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			legs, err := importer.Parse(string(text))
			if err != nil {
				return err
			}

			view := importView{Legs: legs, Replace: replace}
			if write {
				doc, err := loadDocument(cmd.Context(), opts, newLogger(cmd.ErrOrStderr()))
				if err != nil {
					return err
				}
				state := newState(doc, opts)
				if err := state.ImportPositions(legs, replace); err != nil {
					return err
				}
				if err := writeDocument(opts.file, state.Document()); err != nil {
					return err
				}
				view.Legs = state.Positions()
				view.Written = true
			}

			return render(cmd.OutOrStdout(), opts.output, view, func(w io.Writer) error {
				if err := writeLegs(w, view.Legs); err != nil {
					return err
				}
				if view.Written {
					_, err := fmt.Fprintf(w, "\nWrote %d legs to %s\n", len(view.Legs), opts.file)
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "Apply the parsed legs to the --file document")
	cmd.Flags().BoolVar(&replace, "replace", false, "Replace existing legs instead of appending")
	return cmd
}

func writeLegs(w io.Writer, legs []domain.Position) error {
	t := newTable("Type", "Side", "Right", "Strike", "Premium/Price", "Qty", "Mult").alignRight(3, 4, 5, 6)
	for _, p := range legs {
		t.add(string(p.Type), string(p.Side), string(p.CallPut), formatting.Strike(p.Strike),
			p.EntryPrice().String(), strconv.FormatInt(p.Qty, 10), strconv.FormatInt(p.Multiplier, 10))
	}
	return t.write(w)
}

func ocrCSVCmd(opts *options) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "ocr-csv <image>",
		Short: "Recognize a broker screenshot into import rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				cfg, err := loadConfig(opts)
				if err != nil {
					return err
				}
				url = cfg.OCR.URL
			}
			if url == "" {
				return errors.New("no OCR service: set --ocr-url or HEDGE_OCR_URL")
			}

			image, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), ocrTimeout)
			defer cancel()
			text, err := ocr.NewClient(url, newLogger(cmd.ErrOrStderr())).RecognizeCSV(ctx, image)
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), opts.output, map[string]string{"text": text}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, text)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&url, "ocr-url", "", "OCR service base URL (defaults to the configured one)")
	return cmd
}

func centerOf(doc domain.Document, flag string) (decimal.Decimal, error) {
	if flag == "" {
		return doc.MarketIndex, nil
	}
	center, err := decimal.NewFromString(flag)
	if err != nil || !center.IsPositive() {
		return decimal.Zero, fmt.Errorf("center must be a positive index level, got %q", flag)
	}
	return center, nil
}

func readInput(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return data, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
