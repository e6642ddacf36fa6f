package main

import (
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/ubayfs/pkg/errors"
	"github.com/YuminosukeSato/ubayfs/pkg/log"
	"github.com/YuminosukeSato/ubayfs/report"
	"github.com/YuminosukeSato/ubayfs/ubay"
)

func newRootCmd() *cobra.Command {
	var level string

	root := &cobra.Command{
		Use:           "ubayfs",
		Short:         "User-guided Bayesian feature selection",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			lvl, err := log.ParseLevel(level)
			if err != nil {
				return err
			}
			logger := log.NewZerologLogger(cmd.ErrOrStderr(), lvl)
			logger.RouteWarnings()
			log.SetLogger(logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&level, "log-level", "warn", "log level (debug, info, warn, error)")
	root.AddCommand(newSelectCmd())
	return root
}

type selectFlags struct {
	config   string
	data     string
	target   string
	plot     string
	snapshot string
}

func newSelectCmd() *cobra.Command {
	var f selectFlags

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Train a model on a CSV dataset and print the selected features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSelect(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.config, "config", "", "YAML model configuration")
	cmd.Flags().StringVar(&f.data, "data", "", "CSV dataset with a header row")
	cmd.Flags().StringVar(&f.target, "target", "", "name of the target column")
	cmd.Flags().StringVar(&f.plot, "plot", "", "write a posterior chart to this file (png, svg, pdf)")
	cmd.Flags().StringVar(&f.snapshot, "snapshot", "", "save the trained model as JSON to this file")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("data")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

// selectReport は select コマンドの出力
type selectReport struct {
	Selected   []string   `yaml:"selected"`
	State      []float64  `yaml:"state,flow"`
	Fitness    float64    `yaml:"fitness"`
	Failures   int        `yaml:"ensemble_failures"`
	Evaluation evalReport `yaml:"evaluation"`
}

type evalReport struct {
	Cardinality               int      `yaml:"cardinality"`
	TotalUtility              float64  `yaml:"total_utility"`
	PosteriorFeatureUtility   float64  `yaml:"posterior_feature_utility"`
	Admissibility             float64  `yaml:"admissibility"`
	ViolatedConstraints       int      `yaml:"violated_constraints"`
	AverageFeatureCorrelation *float64 `yaml:"average_feature_correlation"`
}

func runSelect(cmd *cobra.Command, f selectFlags) error {
	cfg, err := LoadConfig(f.config)
	if err != nil {
		return err
	}
	method, err := cfg.CorrelationMethod()
	if err != nil {
		return err
	}
	ds, err := LoadDataset(f.data, f.target)
	if err != nil {
		return err
	}

	opts, err := cfg.Options(len(ds.Names))
	if err != nil {
		return err
	}
	opts = append(opts, ubay.WithFeatureNames(ds.Names...), ubay.WithLogger(log.GetLogger()))

	m, err := ubay.NewContext(cmd.Context(), ds.X, ds.Y, opts...)
	if err != nil {
		return err
	}
	res, err := m.Train(cmd.Context())
	if err != nil {
		return err
	}
	ev, err := m.Evaluate(res.State, ubay.WithCorrelationMethod(method))
	if err != nil {
		return err
	}

	if f.plot != "" {
		theta, err := m.PosteriorExpectation()
		if err != nil {
			return err
		}
		if err := report.SavePosterior(f.plot, m.FeatureNames(), theta, res.State); err != nil {
			return err
		}
	}
	if f.snapshot != "" {
		if err := m.Snapshot().Save(f.snapshot); err != nil {
			return err
		}
	}

	return writeReport(cmd.OutOrStdout(), selectReport{
		Selected: res.Selected,
		State:    res.State,
		Fitness:  res.Fitness,
		Failures: len(m.Failures()),
		Evaluation: evalReport{
			Cardinality:               ev.Cardinality,
			TotalUtility:              ev.TotalUtility,
			PosteriorFeatureUtility:   ev.PosteriorFeatureUtility,
			Admissibility:             ev.Admissibility,
			ViolatedConstraints:       ev.ViolatedConstraints,
			AverageFeatureCorrelation: ev.AverageFeatureCorrelation,
		},
	})
}

func writeReport(w io.Writer, r selectReport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return errors.Wrap(err, "failed to write report")
	}
	return enc.Close()
}
