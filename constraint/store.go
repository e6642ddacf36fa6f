package constraint

import (
	"math"

	"github.com/YuminosukeSato/ubayfs/pkg/errors"
)

// Store はモデルに登録された制約グループの順序付きリスト
//
// Add はブロック行列が完全一致する既存グループがあれば行を連結し、
// 無ければ新しいグループとして末尾に追加する。比較は許容誤差なしの数値比較。
type Store struct {
	groups []*Constraint
}

// NewStore は制約グループを順に Add した Store を作る
func NewStore(groups ...*Constraint) (*Store, error) {
	s := &Store{}
	for _, g := range groups {
		if err := s.Add(g); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add は制約グループを追加する。登録済みのグループは変更せず、連結結果で置き換える
func (s *Store) Add(c *Constraint) error {
	if c == nil {
		return errors.NewConfigurationError("Store.Add", "constraint must not be nil")
	}
	for i, g := range s.groups {
		if g.nElements != c.nElements || g.nBlocks != c.nBlocks || !g.SameBlocks(c) {
			continue
		}
		merged, err := g.merge(c)
		if err != nil {
			return err
		}
		s.groups[i] = merged
		return nil
	}
	s.groups = append(s.groups, c)
	return nil
}

// Reset は全てのグループを削除する
func (s *Store) Reset() {
	s.groups = nil
}

// Groups は登録済みグループのスライスのコピーを返す
func (s *Store) Groups() []*Constraint {
	return append([]*Constraint(nil), s.groups...)
}

// Len はグループ数を返す
func (s *Store) Len() int {
	return len(s.groups)
}

// Rows は全グループの行数の合計を返す
func (s *Store) Rows() int {
	n := 0
	for _, g := range s.groups {
		n += g.Rows()
	}
	return n
}

// Admissibility は全グループの許容度を集約する
// 対数スケールでは0から始めて加算し、線形スケールでは1から始めて乗算する。
func (s *Store) Admissibility(state []float64, log bool) (float64, error) {
	acc := 1.0
	if log {
		acc = 0
	}
	for _, g := range s.groups {
		v, err := g.GroupAdmissibility(state, log)
		if err != nil {
			return 0, err
		}
		if log {
			acc += v
		} else {
			acc *= v
		}
	}
	return acc, nil
}

// Violations は全グループで違反している行の総数を返す
func (s *Store) Violations(state []float64) (int, error) {
	total := 0
	for _, g := range s.groups {
		n, err := g.Violations(state)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// MaxSize は唯一の最大サイズ制約の上限を返す。
// 最大サイズ制約が無い、複数ある（連結済みグループ内の複数行も含む）、
// または切り捨てた上限が1未満の場合は ConfigurationError
func (s *Store) MaxSize() (int, error) {
	const op = "Store.MaxSize"

	var sizes []float64
	for _, g := range s.groups {
		sizes = append(sizes, g.MaxSizes()...)
	}

	switch {
	case len(sizes) == 0:
		return 0, errors.NewConfigurationError(op, "no max_size constraint is registered")
	case len(sizes) > 1:
		return 0, errors.NewConfigurationErrorf(op, "exactly one max_size constraint is required, found %d", len(sizes))
	}
	size := math.Floor(sizes[0])
	if !(size >= 1) {
		return 0, errors.NewConfigurationErrorf(op, "max_size bound must be at least 1, got %v", sizes[0])
	}
	return int(size), nil
}

// Rho は全グループの緩和パラメータを登録順に平坦化して返す
func (s *Store) Rho() []float64 {
	out := make([]float64, 0, s.Rows())
	for _, g := range s.groups {
		out = append(out, g.rho...)
	}
	return out
}
