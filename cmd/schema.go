package cmd

import (
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"caserisk/labels"
)

func newSchemaCommand(opts *globalOptions) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the ordered feature schema of the model artifact.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			artifact, err := loadArtifact(cfg)
			if err != nil {
				return err
			}
			catalog, err := labels.LoadCatalog(cfg.Labels.Language, cfg.Labels.Dir)
			if err != nil {
				return err
			}
			table := catalog.Match(lang)

			out := tablewriter.NewWriter(cmd.OutOrStdout())
			out.Header([]string{"#", "Code", "Label", "Importance"})
			out.Configure(func(cfg *tablewriter.Config) {
				cfg.Row.Alignment.Global = tw.AlignLeft
			})

			var data [][]string
			for i, code := range artifact.Schema().Codes() {
				importance := "-"
				if entry, ok := table.Lookup(code); ok {
					importance = strconv.FormatFloat(entry.Importance, 'f', 3, 64)
				}
				data = append(data, []string{
					strconv.Itoa(i + 1),
					code,
					table.LabelFor(code),
					importance,
				})
			}
			if err := out.Bulk(data); err != nil {
				return err
			}
			return out.Render()
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "label language (default: labels.language)")
	return cmd
}
