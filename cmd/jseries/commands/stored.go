package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/jseries/internal/derived"
	"github.com/Sumatoshi-tech/jseries/internal/model"
	"github.com/Sumatoshi-tech/jseries/internal/observability"
	"github.com/Sumatoshi-tech/jseries/internal/report"
)

// ErrNoProduct is returned when a stored history is requested without a product.
var ErrNoProduct = errors.New("--product is required")

// loadHistory opens the configured store and restores the latest build of
// product.
func (g *globals) loadHistory(ctx context.Context, product string) (*model.History, *invocation, error) {
	if product == "" {
		return nil, nil, ErrNoProduct
	}

	rt, err := g.setup(observability.ModeCLI)
	if err != nil {
		return nil, nil, err
	}

	s, err := rt.openStore(ctx)
	if err != nil {
		rt.close()

		return nil, nil, err
	}
	defer s.Close()

	h, err := s.Load(ctx, product)
	if err != nil {
		rt.close()

		return nil, nil, err
	}

	return h, rt, nil
}

func newReportCommand(g *globals) *cobra.Command {
	var product, format, output string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a stored history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}

			if product == "" {
				return listProducts(cmd, g)
			}

			h, rt, err := g.loadHistory(cmd.Context(), product)
			if err != nil {
				return err
			}
			defer rt.close()

			return writeReport(cmd.OutOrStdout(), output, h, f)
		},
	}

	cmd.Flags().StringVar(&product, "product", "", "Product to render (lists stored products when empty)")
	cmd.Flags().StringVar(&format, "format", string(report.FormatText), "Output format: text, json, yaml, html")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to a file instead of stdout")

	return cmd
}

func listProducts(cmd *cobra.Command, g *globals) error {
	rt, err := g.setup(observability.ModeCLI)
	if err != nil {
		return err
	}
	defer rt.close()

	s, err := rt.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	products, err := s.Products(cmd.Context())
	if err != nil {
		return err
	}

	for _, p := range products {
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d versions\t%s\t%s\n",
			p.Name, p.Versions, p.BuiltAt.Format("2006-01-02 15:04:05"), p.BuildID); err != nil {
			return err
		}
	}

	return nil
}

func newQueryCommand(g *globals) *cobra.Command {
	var (
		product string
		q       derived.Query
	)

	cmd := &cobra.Command{
		Use:   "query <derived-metric>",
		Short: "Evaluate a derived metric on a stored history",
		Long: "Evaluate a derived metric on a stored history. Available metrics: " +
			fmt.Sprint(derived.Names()),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, rt, err := g.loadHistory(cmd.Context(), product)
			if err != nil {
				return err
			}
			defer rt.close()

			v, err := derived.Evaluate(h, args[0], q)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatFloat(v, 'g', -1, 64))

			return err
		},
	}

	cmd.Flags().StringVar(&product, "product", "", "Product to query")
	cmd.Flags().StringVar(&q.Metric, "metric", "", "Version or class metric the derived metric reads")
	cmd.Flags().IntVar(&q.From, "from", 0, "First RSN")
	cmd.Flags().IntVar(&q.To, "to", 0, "Last RSN")
	cmd.Flags().IntVar(&q.At, "at", 0, "RSN to evaluate at")

	return cmd
}

func newLineageCommand(g *globals) *cobra.Command {
	var product string

	cmd := &cobra.Command{
		Use:   "lineage <class>",
		Short: "Show the evolution of one class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, rt, err := g.loadHistory(cmd.Context(), product)
			if err != nil {
				return err
			}
			defer rt.close()

			return report.WriteLineage(cmd.OutOrStdout(), h, args[0], report.LineageOptions{Color: g.color(cmd)})
		},
	}

	cmd.Flags().StringVar(&product, "product", "", "Product to inspect")

	return cmd
}
