// Package errors はubayfs全体のエラーハンドリングと警告システムを提供します。
// 設定エラー・次元エラー・データエラー・アンサンブルの部分的失敗を型で区別し、
// 呼び出し側が errors.As で種類ごとに対応できるようにします。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("ubayfs-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
// 未知の制約タイプや推奨範囲外の分割比などの非致命的な警告の処理方法を制御できます。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
// nil を渡すと従来のハンドラに戻ります。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが利用可能な場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// UnknownConstraintWarning は制約ビルダーが解釈できない制約が渡された場合の警告です。
// 該当する制約はスキップされ、処理は継続します。
type UnknownConstraintWarning struct {
	Kind string
}

func (w *UnknownConstraintWarning) Error() string {
	return fmt.Sprintf("the constraint type '%s' is unknown and was skipped", w.Kind)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *UnknownConstraintWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("kind", w.Kind).
		Str("type", "UnknownConstraintWarning")
}

// NewUnknownConstraintWarning は新しいUnknownConstraintWarningを作成します。
func NewUnknownConstraintWarning(kind string) *UnknownConstraintWarning {
	return &UnknownConstraintWarning{Kind: kind}
}

// ParameterRangeWarning はパラメータが許容範囲内だが推奨範囲外の場合の警告です。
type ParameterRangeWarning struct {
	ParamName string
	Value     float64
	Low       float64
	High      float64
}

func (w *ParameterRangeWarning) Error() string {
	return fmt.Sprintf("%s=%g should not be outside [%g,%g]", w.ParamName, w.Value, w.Low, w.High)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *ParameterRangeWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("param_name", w.ParamName).
		Float64("value", w.Value).
		Float64("low", w.Low).
		Float64("high", w.High).
		Str("type", "ParameterRangeWarning")
}

// NewParameterRangeWarning は新しいParameterRangeWarningを作成します。
func NewParameterRangeWarning(param string, value, low, high float64) *ParameterRangeWarning {
	return &ParameterRangeWarning{ParamName: param, Value: value, Low: low, High: high}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// ConfigurationError はコンストラクタ引数や制約の指定が不正な場合のエラーです。
// 次元の不整合、正でないスカラー、排他的な制約指定方法の同時使用、
// max-size制約の欠如などが該当します。
type ConfigurationError struct {
	Op     string
	Reason string
	Err    error // 原因となった番兵エラー（任意）
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("ubayfs: %s: invalid configuration: %s", e.Op, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ConfigurationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("reason", e.Reason).
		Str("type", "ConfigurationError")
}

// NewConfigurationError は新しいConfigurationErrorを作成し、スタックトレースを付与します。
func NewConfigurationError(op, reason string) error {
	err := &ConfigurationError{Op: op, Reason: reason}
	return errors.WithStack(err)
}

// NewConfigurationErrorFrom は番兵エラーを原因とするConfigurationErrorを作成します。
// errors.Is(err, cause) で判定できます。
func NewConfigurationErrorFrom(op string, cause error) error {
	err := &ConfigurationError{Op: op, Reason: cause.Error(), Err: cause}
	return errors.WithStack(err)
}

// NewConfigurationErrorf はフォーマット文字列からConfigurationErrorを作成します。
func NewConfigurationErrorf(op, format string, args ...interface{}) error {
	err := &ConfigurationError{Op: op, Reason: fmt.Sprintf(format, args...)}
	return errors.WithStack(err)
}

// DimensionError は入力の次元が期待値と異なる場合のエラーです。
// 候補となる特徴量ベクトルの長さが制約の列数と一致しない場合などに発生します。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("ubayfs: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// DataError はデータセット自体に問題がある場合のエラーです。
// 欠損値(NaN)の存在や、行数とラベル数の不一致が該当します。
type DataError struct {
	Op     string
	Reason string
	Err    error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("ubayfs: %s: invalid data: %s", e.Op, e.Reason)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("reason", e.Reason).
		Str("type", "DataError")
}

// NewDataError は新しいDataErrorを作成し、スタックトレースを付与します。
func NewDataError(op, reason string) error {
	err := &DataError{Op: op, Reason: reason}
	return errors.WithStack(err)
}

// NewEmptyDataError は空のデータに対するDataErrorを作成します。
// errors.Is(err, ErrEmptyData) で判定できます。
func NewEmptyDataError(op string) error {
	err := &DataError{Op: op, Reason: ErrEmptyData.Error(), Err: ErrEmptyData}
	return errors.WithStack(err)
}

// PartialEnsembleFailure は一回のリサンプリング×ランキング手法の実行が失敗したことを表します。
// 呼び出し元で回復され（その寄与は破棄され失敗数が加算される）、
// 成功数が計画数の半分を下回った場合にのみ ConfigurationError に昇格します。
type PartialEnsembleFailure struct {
	Resample int
	Method   string
	Err      error
}

func (e *PartialEnsembleFailure) Error() string {
	return fmt.Sprintf("ubayfs: ensemble run %d with method %s failed: %v", e.Resample, e.Method, e.Err)
}

func (e *PartialEnsembleFailure) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *PartialEnsembleFailure) MarshalZerologObject(event *zerolog.Event) {
	event.Int("resample", e.Resample).
		Str("method", e.Method).
		AnErr("cause", e.Err).
		Str("type", "PartialEnsembleFailure")
}

// NewPartialEnsembleFailure は新しいPartialEnsembleFailureを作成し、スタックトレースを付与します。
func NewPartialEnsembleFailure(resample int, method string, err error) error {
	failure := &PartialEnsembleFailure{Resample: resample, Method: method, Err: err}
	return errors.WithStack(failure)
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrNoConstraints は学習時に制約が一つも登録されていない場合のエラーです。
	ErrNoConstraints = New("at least a max-size constraint must be present for training")
)
