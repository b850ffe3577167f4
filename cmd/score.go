package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"caserisk/assess"
	"caserisk/labels"
)

var severityColors = map[string]*color.Color{
	"success": color.New(color.FgGreen, color.Bold),
	"warning": color.New(color.FgYellow, color.Bold),
	"danger":  color.New(color.FgRed, color.Bold),
}

func newScoreCommand(opts *globalOptions) *cobra.Command {
	var (
		assignments []string
		lang        string
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score one case from the command line.",
		Long: `Score one case. Every code not given with --set is 0, the same as an
untouched form input.`,
		Example: `  caserisk score --set C1.2=5 --set S1.9=1`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			values, err := parseAssignments(assignments)
			if err != nil {
				return err
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			service, err := newService(cfg, zap.NewNop())
			if err != nil {
				return err
			}
			catalog, err := labels.LoadCatalog(cfg.Labels.Language, cfg.Labels.Dir)
			if err != nil {
				return err
			}

			set, err := assess.Coerce(values)
			if err != nil {
				return err
			}
			vector := assess.Zero(service.Schema())
			for code, v := range set {
				vector[code] = v
			}
			p, err := service.Predict(vector)
			if err != nil {
				return err
			}
			return printPrediction(cmd.OutOrStdout(), catalog.Match(lang), p)
		},
	}
	cmd.Flags().StringArrayVar(&assignments, "set", nil, "feature value as CODE=VALUE (repeatable)")
	cmd.Flags().StringVar(&lang, "lang", "", "label language (default: labels.language)")
	return cmd
}

// parseAssignments turns CODE=VALUE pairs into raw values. Values are checked
// later by assess.Coerce.
func parseAssignments(pairs []string) (map[string]any, error) {
	values := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		code, value, ok := strings.Cut(pair, "=")
		code = strings.TrimSpace(code)
		if !ok || code == "" {
			return nil, fmt.Errorf("invalid --set %q, want CODE=VALUE", pair)
		}
		if _, dup := values[code]; dup {
			return nil, fmt.Errorf("--set %s given more than once", code)
		}
		values[code] = strings.TrimSpace(value)
	}
	return values, nil
}

func printPrediction(w io.Writer, table *labels.Table, p assess.Prediction) error {
	text := table.Text()
	tier := table.Tier(p.Tier)

	emphasis, ok := severityColors[tier.Severity]
	if !ok {
		emphasis = color.New(color.FgCyan)
	}
	emphasis.Fprintf(w, "%s: %d (%s)\n", text.TierPrefix, p.Tier, tier.Name)
	fmt.Fprintf(w, "%s: %.1f%%\n", text.Confidence, p.Confidence)
	if tier.Guidance != "" {
		fmt.Fprintln(w, tier.Guidance)
	}
	fmt.Fprintln(w)

	out := tablewriter.NewWriter(w)
	out.Header([]string{"Tier", text.Probability})
	out.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	var data [][]string
	for i, prob := range p.Probabilities {
		data = append(data, []string{
			labels.LevelLabel(assess.TierFor(i)),
			fmt.Sprintf("%.1f%%", prob*100),
		})
	}
	if err := out.Bulk(data); err != nil {
		return err
	}
	return out.Render()
}
