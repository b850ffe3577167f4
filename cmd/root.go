// Package cmd holds the caserisk command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"caserisk/assess"
	"caserisk/config"
	"caserisk/labels"
	"caserisk/ml"
)

// Set by the release build through -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	modelDir   string
	logLevel   string
}

// NewRootCommand builds a fresh command tree. Flag state lives in the tree, so
// each call starts clean.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "caserisk",
		Short: "Score social-work cases into risk tiers.",
		Long: `caserisk loads a trained gradient-boosted classifier and the ordered
feature list it was trained on, and scores one case at a time into
risk tier 1, 2 or 3 with a confidence value.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&opts.modelDir, "model-dir", "", "directory holding the model and feature list (default: the executable's directory)")
	flags.StringVar(&opts.logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		newServeCommand(opts),
		newSchemaCommand(opts),
		newScoreCommand(opts),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// load reads the config file and applies flag overrides.
func (o *globalOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.modelDir != "" {
		cfg.Model.Dir = o.modelDir
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadArtifact(cfg *config.Config) (*ml.Artifact, error) {
	dir, err := cfg.ModelDir()
	if err != nil {
		return nil, err
	}
	return ml.LoadArtifact(ml.LoadOptions{
		Dir:          dir,
		ModelFile:    cfg.Model.ModelFile,
		FeaturesFile: cfg.Model.FeaturesFile,
		Kind:         cfg.Model.Type,
		Classes:      cfg.Model.Classes,
	})
}

func newService(cfg *config.Config, logger *zap.Logger) (*assess.Service, error) {
	artifact, err := loadArtifact(cfg)
	if err != nil {
		return nil, err
	}
	return assess.NewService(artifact,
		assess.WithLogger(logger),
		assess.WithMemo(cfg.Model.MemoSize))
}

// warnStale logs every language whose label table disagrees with the schema.
// Labels are display only, so this never blocks startup.
func warnStale(logger *zap.Logger, catalog *labels.Catalog, schema ml.FeatureSchema) {
	for _, tag := range catalog.Languages() {
		table := catalog.Match(tag.String())
		unlabeled, unknown := table.Stale(schema.Codes())
		if len(unlabeled) == 0 && len(unknown) == 0 {
			continue
		}
		logger.Warn("label table does not match model schema",
			zap.String("language", tag.String()),
			zap.Strings("unlabeled", unlabeled),
			zap.Strings("unknown", unknown))
	}
}
