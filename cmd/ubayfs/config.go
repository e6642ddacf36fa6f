package main

import (
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/ubayfs/constraint"
	"github.com/YuminosukeSato/ubayfs/ensemble"
	"github.com/YuminosukeSato/ubayfs/metrics"
	"github.com/YuminosukeSato/ubayfs/pkg/errors"
	"github.com/YuminosukeSato/ubayfs/posterior"
	"github.com/YuminosukeSato/ubayfs/ubay"
)

// Config は select コマンドの YAML 設定
//
//	M: 100
//	split: 0.75
//	nr_features: auto
//	methods: [mrmr, fisher]
//	weights: [1]
//	constraints:
//	  - rho: [.inf]
//	    intents:
//	      - {type: max_size, values: [3]}
//	      - {type: cannot_link, values: [0, 1]}
//	l: 1
//	popsize: 100
//	maxiter: 100
//	seed: 42
type Config struct {
	M               int                `yaml:"M"`
	Split           float64            `yaml:"split"`
	NumFeatures     NumFeatures        `yaml:"nr_features"`
	Methods         []string           `yaml:"methods"`
	Weights         []float64          `yaml:"weights"`
	WeightBlockList [][]int            `yaml:"weight_block_list"`
	Constraints     []ConstraintConfig `yaml:"constraints"`
	Lambda          float64            `yaml:"l"`
	PopSize         int                `yaml:"popsize"`
	MaxIter         int                `yaml:"maxiter"`
	Seed            uint64             `yaml:"seed"`
	Workers         int                `yaml:"workers"`
	Correlation     string             `yaml:"correlation"`
}

// ConstraintConfig は一つの制約グループ
type ConstraintConfig struct {
	Rho       []float64      `yaml:"rho"`
	BlockList [][]int        `yaml:"block_list"`
	Intents   []IntentConfig `yaml:"intents"`
}

// IntentConfig は型付きの制約指定
type IntentConfig struct {
	Type   string `yaml:"type"`
	Values []int  `yaml:"values"`
}

// NumFeatures は "auto" または正の整数。auto は 0 で表す
type NumFeatures int

// UnmarshalYAML implements yaml.Unmarshaler.
func (n *NumFeatures) UnmarshalYAML(node *yaml.Node) error {
	if node.Value == "auto" {
		*n = 0
		return nil
	}
	var k int
	if err := node.Decode(&k); err != nil {
		return errors.NewConfigurationErrorf("config", "nr_features must be \"auto\" or an integer, got %q", node.Value)
	}
	if k < 1 {
		return errors.NewConfigurationErrorf("config", "nr_features must be positive, got %d", k)
	}
	*n = NumFeatures(k)
	return nil
}

func defaultFileConfig() Config {
	return Config{
		M:           100,
		Split:       0.75,
		Methods:     []string{"mrmr"},
		Weights:     []float64{1},
		Lambda:      1,
		PopSize:     100,
		MaxIter:     100,
		Correlation: string(metrics.Spearman),
	}
}

// LoadConfig は path の YAML を読み込む。書かれていない項目は既定値のまま
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to open config %s", path)
	}
	defer f.Close()
	return ParseConfig(f)
}

// ParseConfig は r から YAML 設定を読む。未知のキーはエラー
func ParseConfig(r io.Reader) (Config, error) {
	cfg := defaultFileConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.NewConfigurationErrorFrom("config.Parse", err)
	}
	return cfg, nil
}

// Options は設定を p 個の特徴量を持つデータ用のモデルオプションに変換する
func (c Config) Options(p int) ([]ubay.Option, error) {
	rankers := make([]ensemble.FeatureRanker, 0, len(c.Methods))
	for _, name := range c.Methods {
		r, err := ensemble.ByName(name)
		if err != nil {
			return nil, err
		}
		rankers = append(rankers, r)
	}

	var weightOpts []posterior.Option
	if c.WeightBlockList != nil {
		weightOpts = append(weightOpts, posterior.WithBlockList(c.WeightBlockList))
	}

	opts := []ubay.Option{
		ubay.WithM(c.M),
		ubay.WithSplit(c.Split),
		ubay.WithNumFeatures(int(c.NumFeatures)),
		ubay.WithRankers(rankers...),
		ubay.WithWeights(c.Weights, weightOpts...),
		ubay.WithLambda(c.Lambda),
		ubay.WithPopSize(c.PopSize),
		ubay.WithMaxIter(c.MaxIter),
		ubay.WithSeed(c.Seed),
		ubay.WithWorkers(c.Workers),
	}

	for i, cc := range c.Constraints {
		cons, err := cc.build(p)
		if err != nil {
			return nil, errors.Wrapf(err, "constraint group %d", i)
		}
		if cons != nil {
			opts = append(opts, ubay.WithConstraints(cons))
		}
	}
	return opts, nil
}

// build は制約グループを組み立てる。有効な意図が一つも無ければ nil
func (cc ConstraintConfig) build(p int) (*constraint.Constraint, error) {
	intents := make([]constraint.Intent, 0, len(cc.Intents))
	for _, ic := range cc.Intents {
		if in, ok := constraint.ParseIntent(ic.Type, ic.Values); ok {
			intents = append(intents, in)
		}
	}
	if len(intents) == 0 {
		return nil, nil
	}

	rho := cc.Rho
	if len(rho) == 0 {
		rho = []float64{math.Inf(1)}
	}

	numElements := p
	var opts []constraint.Option
	if cc.BlockList != nil {
		numElements = len(cc.BlockList)
		opts = append(opts, constraint.WithBlockList(cc.BlockList, p))
	}
	return constraint.Build(numElements, intents, rho, opts...)
}

// CorrelationMethod は評価に使う相関の種類を返す
func (c Config) CorrelationMethod() (metrics.Method, error) {
	return metrics.ParseMethod(c.Correlation)
}
