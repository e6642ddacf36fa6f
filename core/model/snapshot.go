package model

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
)

// Snapshot はモデルの学習済み状態を表す構造体（シリアライゼーション用）
// アンサンブルのカウントは再計算コストが高いため、データセット本体ではなく
// カウント・事前重み・制約を保存する。
type Snapshot struct {
	// ModelType はモデルの種類
	ModelType string `json:"model_type"`

	// Version はフォーマットのバージョン（互換性チェック用）
	Version string `json:"version"`

	// FeatureNames は特徴量の名前
	FeatureNames []string `json:"feature_names"`

	// Counts は特徴量ごとのアンサンブル選択回数
	Counts []float64 `json:"counts"`

	// Weights は事前重み
	Weights []float64 `json:"weights"`

	// Lambda はラグランジュ係数 l
	Lambda float64 `json:"lambda"`

	// Constraints は制約グループ
	Constraints []ConstraintSnapshot `json:"constraints"`

	// Selected は学習済みの場合の最適特徴量集合（0/1）
	Selected []float64 `json:"selected,omitempty"`

	// Metadata は追加のメタデータ（シード、M 等）
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ConstraintSnapshot は一つの制約グループの保存形式
// JSONは+Infを表現できないため、ハード制約の rho は null で保存する。
type ConstraintSnapshot struct {
	A           [][]float64 `json:"a"`
	B           []float64   `json:"b"`
	Rho         []*float64  `json:"rho"`
	BlockMatrix [][]float64 `json:"block_matrix"`
}

// EncodeRho は rho を保存形式に変換する（+Inf → nil）
func EncodeRho(rho []float64) []*float64 {
	out := make([]*float64, len(rho))
	for i, r := range rho {
		if math.IsInf(r, 1) {
			continue
		}
		v := r
		out[i] = &v
	}
	return out
}

// DecodeRho は保存形式の rho を復元する（nil → +Inf）
func DecodeRho(rho []*float64) []float64 {
	out := make([]float64, len(rho))
	for i, r := range rho {
		if r == nil {
			out[i] = math.Inf(1)
			continue
		}
		out[i] = *r
	}
	return out
}

// Validate はSnapshotの妥当性を検証
func (s *Snapshot) Validate() error {
	if s.ModelType == "" {
		return fmt.Errorf("model_type is required")
	}
	if s.Version == "" {
		return fmt.Errorf("version is required")
	}
	n := len(s.FeatureNames)
	if n == 0 {
		return fmt.Errorf("feature_names must not be empty")
	}
	if len(s.Counts) != n {
		return fmt.Errorf("counts has length %d, want %d", len(s.Counts), n)
	}
	if len(s.Weights) != n {
		return fmt.Errorf("weights has length %d, want %d", len(s.Weights), n)
	}
	if s.Selected != nil && len(s.Selected) != n {
		return fmt.Errorf("selected has length %d, want %d", len(s.Selected), n)
	}
	for i, c := range s.Constraints {
		if len(c.A) != len(c.B) || len(c.B) != len(c.Rho) {
			return fmt.Errorf("constraint group %d: a, b and rho lengths differ", i)
		}
	}
	return nil
}

// Save はSnapshotをJSONファイルに保存する
//
// 使用例:
//
//	snap := m.Snapshot()
//	err := snap.Save("model.json")
func (s *Snapshot) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return s.Encode(file)
}

// Encode はSnapshotをio.Writerに書き出す
func (s *Snapshot) Encode(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot はJSONファイルからSnapshotを読み込み、検証する
func LoadSnapshot(filename string) (*Snapshot, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ReadSnapshot(file)
}

// ReadSnapshot はio.ReaderからSnapshotを読み込み、検証する
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	return &s, nil
}
