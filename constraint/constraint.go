// Package constraint はユーザー定義の構造制約（最大サイズ、must-link、cannot-link）を
// 線形不等式 A·s <= b の正規形で表現し、特徴量集合の許容度(admissibility)を計算する。
//
// 各行は緩和パラメータ rho を持つ。rho = +Inf はハード制約（違反すると許容度 0）、
// 有限の rho はソフト制約で、違反量に応じて許容度がなめらかに減少する。
// 状態ベクトルはブロック行列で集約してから A, b が適用される:
//
//	reduced = blockMatrix · state > 0
package constraint

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ubayfs/pkg/errors"
)

// Constraint は同じブロック構造を共有する線形不等式制約のグループ
type Constraint struct {
	a     *mat.Dense // 制約行列 (rows × nBlocks)。行が無い場合は nil
	b     []float64  // 右辺 (rows)
	rho   []float64  // 緩和パラメータ (rows)
	block *mat.Dense // ブロック行列 (nBlocks × nElements)

	nBlocks   int
	nElements int
}

// Config は制約の構築パラメータ
//
// 直接指定 (A, B, Rho) と意図指定 (Intents, NumElements, Rho) は排他的で、
// 両方を指定すると ConfigurationError になる。
type Config struct {
	// 直接指定
	A mat.Matrix
	B []float64

	// 意図指定
	Intents     []Intent
	NumElements int

	// Rho は緩和パラメータ。長さ1の場合は全行にブロードキャストされる
	Rho []float64

	// BlockMatrix と BlockList はどちらか一方のみ指定できる。
	// どちらも無い場合は単位行列（ブロック化なし）
	BlockMatrix mat.Matrix
	BlockList   [][]int

	// NumFeatures は BlockList 使用時のブロック行列の列数（特徴量数）
	NumFeatures int
}

// FromConfig は Config から制約を構築する
//
// 使用例:
//
//	c, err := constraint.FromConfig(constraint.Config{
//	    Intents:     []constraint.Intent{constraint.MaxSize{Size: 3}},
//	    NumElements: 10,
//	    Rho:         []float64{math.Inf(1)},
//	})
func FromConfig(cfg Config) (*Constraint, error) {
	const op = "constraint.FromConfig"

	direct := cfg.A != nil && cfg.B != nil
	indirect := cfg.Intents != nil && cfg.NumElements > 0

	switch {
	case direct && indirect:
		return nil, errors.NewConfigurationError(op, "constraints must be defined directly or via intents but not both")
	case !direct && !indirect:
		return nil, errors.NewConfigurationError(op, "either (A, b) or (intents, numElements) must be given")
	}

	var (
		rows [][]float64
		b    []float64
		err  error
	)
	if direct {
		rows, b, err = denseRows(cfg.A, cfg.B)
	} else {
		rows, b, err = translate(cfg.NumElements, cfg.Intents)
	}
	if err != nil {
		return nil, err
	}

	nBlocks := cfg.NumElements
	if direct {
		_, nBlocks = cfg.A.Dims()
	}

	rho, err := broadcastRho(cfg.Rho, len(rows))
	if err != nil {
		return nil, err
	}

	block, err := resolveBlock(cfg, nBlocks)
	if err != nil {
		return nil, err
	}

	return newConstraint(rows, b, rho, block)
}

// New は (A, b, rho) を直接指定して制約を構築する
func New(a mat.Matrix, b, rho []float64, opts ...Option) (*Constraint, error) {
	cfg := Config{A: a, B: b, Rho: rho}
	for _, opt := range opts {
		opt(&cfg)
	}
	return FromConfig(cfg)
}

// Option はブロック構造を指定する関数オプション
type Option func(*Config)

// WithBlockMatrix はブロック行列を指定する
func WithBlockMatrix(m mat.Matrix) Option {
	return func(c *Config) {
		c.BlockMatrix = m
	}
}

// WithBlockList はブロックごとの特徴量インデックスのリストを指定する
func WithBlockList(list [][]int, numFeatures int) Option {
	return func(c *Config) {
		c.BlockList = list
		c.NumFeatures = numFeatures
	}
}

func denseRows(a mat.Matrix, b []float64) ([][]float64, []float64, error) {
	r, c := a.Dims()
	if r != len(b) {
		return nil, nil, errors.NewConfigurationErrorf("constraint.New",
			"constraint dimensions do not fit: A has %d rows, b has %d entries", r, len(b))
	}
	rows := make([][]float64, r)
	for i := 0; i < r; i++ {
		rows[i] = make([]float64, c)
		for j := 0; j < c; j++ {
			rows[i][j] = a.At(i, j)
		}
	}
	return rows, append([]float64(nil), b...), nil
}

func broadcastRho(rho []float64, n int) ([]float64, error) {
	const op = "constraint.FromConfig"

	for _, r := range rho {
		if !(r > 0) {
			return nil, errors.NewConfigurationErrorf(op, "rho values must be > 0, got %v", r)
		}
	}

	switch {
	case len(rho) == 1:
		out := make([]float64, n)
		for i := range out {
			out[i] = rho[0]
		}
		return out, nil
	case len(rho) == n:
		return append([]float64(nil), rho...), nil
	default:
		return nil, errors.NewConfigurationErrorf(op,
			"rho has %d entries but %d constraint rows were given", len(rho), n)
	}
}

func resolveBlock(cfg Config, nBlocks int) (*mat.Dense, error) {
	const op = "constraint.FromConfig"

	switch {
	case cfg.BlockMatrix != nil && cfg.BlockList != nil:
		return nil, errors.NewConfigurationError(op, "block matrix and block list are mutually exclusive")

	case cfg.BlockMatrix != nil:
		r, c := cfg.BlockMatrix.Dims()
		if r != nBlocks {
			return nil, errors.NewDimensionError(op, nBlocks, r, 0)
		}
		block := mat.NewDense(r, c, nil)
		block.Copy(cfg.BlockMatrix)
		return block, nil

	case cfg.BlockList != nil:
		if len(cfg.BlockList) != nBlocks {
			return nil, errors.NewDimensionError(op, nBlocks, len(cfg.BlockList), 0)
		}
		return BlockMatrixFromList(cfg.BlockList, cfg.NumFeatures)

	default:
		if nBlocks <= 0 {
			return nil, errors.NewConfigurationError(op, "number of elements must be positive")
		}
		return identity(nBlocks), nil
	}
}

// BlockMatrixFromList はブロックリストから (len(list) × numFeatures) の0/1行列を作る
func BlockMatrixFromList(list [][]int, numFeatures int) (*mat.Dense, error) {
	const op = "constraint.BlockMatrixFromList"

	if len(list) == 0 || numFeatures <= 0 {
		return nil, errors.NewConfigurationError(op, "block list and number of features must be non-empty")
	}
	block := mat.NewDense(len(list), numFeatures, nil)
	for i, members := range list {
		for _, j := range members {
			if j < 0 || j >= numFeatures {
				return nil, errors.NewConfigurationErrorf(op, "block %d references feature %d outside [0,%d)", i, j, numFeatures)
			}
			block.Set(i, j, 1)
		}
	}
	return block, nil
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func newConstraint(rows [][]float64, b, rho []float64, block *mat.Dense) (*Constraint, error) {
	nBlocks, nElements := block.Dims()
	c := &Constraint{
		b:         b,
		rho:       rho,
		block:     block,
		nBlocks:   nBlocks,
		nElements: nElements,
	}
	if len(rows) == 0 {
		return c, nil
	}

	c.a = mat.NewDense(len(rows), nBlocks, nil)
	for i, row := range rows {
		if len(row) != nBlocks {
			return nil, errors.NewDimensionError("constraint.New", nBlocks, len(row), 1)
		}
		c.a.SetRow(i, row)
	}
	return c, nil
}

// Dims は (制約行数, 状態ベクトルの長さ) を返す
func (c *Constraint) Dims() (rows, elements int) {
	return len(c.b), c.nElements
}

// Rows は制約行数を返す
func (c *Constraint) Rows() int {
	return len(c.b)
}

// A は制約行列のコピーを返す。行が無い場合は nil
func (c *Constraint) A() *mat.Dense {
	if c.a == nil {
		return nil
	}
	return mat.DenseCopyOf(c.a)
}

// B は右辺ベクトルのコピーを返す
func (c *Constraint) B() []float64 {
	return append([]float64(nil), c.b...)
}

// Rho は緩和パラメータのコピーを返す
func (c *Constraint) Rho() []float64 {
	return append([]float64(nil), c.rho...)
}

// BlockMatrix はブロック行列のコピーを返す
func (c *Constraint) BlockMatrix() *mat.Dense {
	return mat.DenseCopyOf(c.block)
}

// reduce は blockMatrix · state > 0 を計算する
func (c *Constraint) reduce(state []float64) *mat.VecDense {
	var agg mat.VecDense
	agg.MulVec(c.block, mat.NewVecDense(len(state), state))

	reduced := mat.NewVecDense(c.nBlocks, nil)
	for i := 0; i < c.nBlocks; i++ {
		if agg.AtVec(i) > 0 {
			reduced.SetVec(i, 1)
		}
	}
	return reduced
}

// slack は各行の b - A·reduced を返す
func (c *Constraint) slack(op string, state []float64) ([]float64, error) {
	if len(state) != c.nElements {
		return nil, errors.NewDimensionError(op, c.nElements, len(state), 1)
	}
	if c.a == nil {
		return nil, nil
	}

	var lhs mat.VecDense
	lhs.MulVec(c.a, c.reduce(state))

	out := make([]float64, len(c.b))
	for i := range out {
		out[i] = c.b[i] - lhs.AtVec(i)
	}
	return out, nil
}

// GroupAdmissibility は状態ベクトルの許容度を返す
//
// 違反していない行は寄与しない（許容度1）。違反しているソフト行は
// z = rho·(b - A·s) として log(2) + z - log(exp(z)+1) を寄与し、
// 違反しているハード行が一つでもあれば -Inf（線形スケールでは 0）になる。
//
// パラメータ:
//   - state: 長さ nElements の0/1ベクトル
//   - log: true なら対数スケール、false なら線形スケール
func (c *Constraint) GroupAdmissibility(state []float64, log bool) (float64, error) {
	slack, err := c.slack("Constraint.GroupAdmissibility", state)
	if err != nil {
		return 0, err
	}

	var soft, hard float64
	for i, s := range slack {
		if s >= 0 {
			continue
		}
		if math.IsInf(c.rho[i], 1) {
			hard = math.Inf(-1)
			continue
		}
		z := c.rho[i] * s
		soft += math.Ln2 + z - errors.Softplus(z)
	}

	lprob := soft + hard
	if log {
		return lprob, nil
	}
	return math.Exp(lprob), nil
}

// Violations は A·s > b となる行の数を返す（平滑化しない生の違反数）
func (c *Constraint) Violations(state []float64) (int, error) {
	slack, err := c.slack("Constraint.Violations", state)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range slack {
		if s < 0 {
			n++
		}
	}
	return n, nil
}

// MaxSizes はブロック化されていない制約の全要素1の行の右辺を行順に返す。
// ブロック行列が単位行列でない場合や該当する行が無い場合は nil。
func (c *Constraint) MaxSizes() []float64 {
	if c.a == nil || c.nBlocks != c.nElements || !mat.Equal(c.block, identity(c.nElements)) {
		return nil
	}

	var sizes []float64
	for i := range c.b {
		allOnes := true
		for j := 0; j < c.nBlocks; j++ {
			if c.a.At(i, j) != 1 {
				allOnes = false
				break
			}
		}
		if allOnes {
			sizes = append(sizes, c.b[i])
		}
	}
	return sizes
}

// Subset は指定した行だけを含む一時的な制約を返す。ブロック行列は共有しない
func (c *Constraint) Subset(rows []int) (*Constraint, error) {
	sub := make([][]float64, len(rows))
	b := make([]float64, len(rows))
	rho := make([]float64, len(rows))
	for k, i := range rows {
		if i < 0 || i >= len(c.b) {
			return nil, errors.NewDimensionError("Constraint.Subset", len(c.b), i, 0)
		}
		sub[k] = mat.Row(nil, i, c.a)
		b[k] = c.b[i]
		rho[k] = c.rho[i]
	}
	return newConstraint(sub, b, rho, mat.DenseCopyOf(c.block))
}

// SameBlocks はブロック行列が完全に一致するかを返す（許容誤差なし）
func (c *Constraint) SameBlocks(other *Constraint) bool {
	return mat.Equal(c.block, other.block)
}

// merge は other の行を連結した新しい制約を返す
func (c *Constraint) merge(other *Constraint) (*Constraint, error) {
	rows := make([][]float64, 0, c.Rows()+other.Rows())
	for _, src := range []*Constraint{c, other} {
		for i := 0; i < src.Rows(); i++ {
			rows = append(rows, mat.Row(nil, i, src.a))
		}
	}
	b := append(c.B(), other.b...)
	rho := append(c.Rho(), other.rho...)
	return newConstraint(rows, b, rho, mat.DenseCopyOf(c.block))
}
