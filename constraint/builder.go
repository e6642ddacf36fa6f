package constraint

import (
	"github.com/YuminosukeSato/ubayfs/pkg/errors"
)

// Intent は高レベルの制約指定。MaxSize, MustLink, CannotLink のいずれか
type Intent interface {
	// Kind は設定ファイルで使われる種類名を返す
	Kind() string

	intent()
}

// MaxSize は選択される要素数を Size 以下に制限する
type MaxSize struct {
	Size float64
}

// MustLink は Indices の要素が全て同時に選択されるか、全て選択されないことを要求する
type MustLink struct {
	Indices []int
}

// CannotLink は Indices の要素のうち高々一つしか選択されないことを要求する
type CannotLink struct {
	Indices []int
}

func (MaxSize) Kind() string    { return "max_size" }
func (MustLink) Kind() string   { return "must_link" }
func (CannotLink) Kind() string { return "cannot_link" }

func (MaxSize) intent()    {}
func (MustLink) intent()   {}
func (CannotLink) intent() {}

// ParseIntent は種類名と値から Intent を作る。
// max_size の場合は values[0] を上限として使い、それ以外は要素インデックスとして扱う。
// 未知の種類は警告を出して ok=false を返す。
func ParseIntent(kind string, values []int) (Intent, bool) {
	switch kind {
	case "max_size":
		if len(values) != 1 {
			errors.Warn(errors.NewParameterRangeWarning("max_size", float64(len(values)), 1, 1))
			return nil, false
		}
		return MaxSize{Size: float64(values[0])}, true
	case "must_link":
		return MustLink{Indices: append([]int(nil), values...)}, true
	case "cannot_link":
		return CannotLink{Indices: append([]int(nil), values...)}, true
	default:
		errors.Warn(errors.NewUnknownConstraintWarning(kind))
		return nil, false
	}
}

// Build は意図指定から制約を構築する
//
// パラメータ:
//   - numElements: 制約が対象とする要素数（ブロック化する場合はブロック数）
//   - intents: 制約の意図
//   - rho: 緩和パラメータ。長さ1なら全行に適用
//
// 使用例:
//
//	c, err := constraint.Build(4, []constraint.Intent{
//	    constraint.MaxSize{Size: 2},
//	    constraint.CannotLink{Indices: []int{0, 1}},
//	}, []float64{math.Inf(1)})
func Build(numElements int, intents []Intent, rho []float64, opts ...Option) (*Constraint, error) {
	if intents == nil {
		intents = []Intent{}
	}
	cfg := Config{Intents: intents, NumElements: numElements, Rho: rho}
	for _, opt := range opts {
		opt(&cfg)
	}
	return FromConfig(cfg)
}

// translate は意図を A の行と b に変換する
func translate(numElements int, intents []Intent) ([][]float64, []float64, error) {
	const op = "constraint.Build"

	var (
		rows [][]float64
		b    []float64
	)

	checkIndices := func(kind string, idx []int) error {
		for _, i := range idx {
			if i < 0 || i >= numElements {
				return errors.NewConfigurationErrorf(op, "%s index %d outside [0,%d)", kind, i, numElements)
			}
		}
		return nil
	}

	for _, in := range intents {
		switch v := in.(type) {
		case MaxSize:
			row := make([]float64, numElements)
			for j := range row {
				row[j] = 1
			}
			rows = append(rows, row)
			b = append(b, v.Size)

		case MustLink:
			if len(v.Indices) < 2 {
				continue
			}
			if err := checkIndices(v.Kind(), v.Indices); err != nil {
				return nil, nil, err
			}
			// 対称性のため順序付きペアを全て生成する（重複行も残す）
			for _, x := range v.Indices {
				for _, y := range v.Indices {
					if x == y {
						continue
					}
					row := make([]float64, numElements)
					row[x] = 1
					row[y] = -1
					rows = append(rows, row)
					b = append(b, 0)
				}
			}

		case CannotLink:
			if len(v.Indices) < 2 {
				continue
			}
			if err := checkIndices(v.Kind(), v.Indices); err != nil {
				return nil, nil, err
			}
			row := make([]float64, numElements)
			for _, x := range v.Indices {
				row[x] = 1
			}
			rows = append(rows, row)
			b = append(b, 1)

		default:
			kind := "<nil>"
			if in != nil {
				kind = in.Kind()
			}
			errors.Warn(errors.NewUnknownConstraintWarning(kind))
		}
	}

	return rows, b, nil
}
