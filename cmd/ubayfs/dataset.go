package main

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ubayfs/pkg/errors"
)

// Dataset はヘッダー付き CSV から読んだ特徴量行列と目的変数
type Dataset struct {
	X     *mat.Dense
	Y     []float64
	Names []string
}

// LoadDataset は path の CSV を読み込む
func LoadDataset(path, target string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open data %s", path)
	}
	defer f.Close()
	return ReadDataset(f, target)
}

// ReadDataset は r の CSV を読み込み、target 列を目的変数、残りを特徴量とする
func ReadDataset(r io.Reader, target string) (*Dataset, error) {
	const op = "dataset.Read"

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.NewEmptyDataError(op)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read csv header")
	}

	targetIdx := -1
	names := make([]string, 0, len(header))
	for j, h := range header {
		h = strings.TrimSpace(h)
		if h == target {
			targetIdx = j
			continue
		}
		names = append(names, h)
	}
	if targetIdx < 0 {
		return nil, errors.NewDataError(op, "target column "+strconv.Quote(target)+" not found")
	}
	if len(names) == 0 {
		return nil, errors.NewDataError(op, "no feature columns besides the target")
	}

	var (
		values []float64
		y      []float64
	)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read csv line %d", line)
		}

		for j, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, errors.NewDataError(op, "line "+strconv.Itoa(line)+", column "+strconv.Quote(header[j])+": "+strconv.Quote(field)+" is not a number")
			}
			if j == targetIdx {
				y = append(y, v)
			} else {
				values = append(values, v)
			}
		}
	}
	if len(y) == 0 {
		return nil, errors.NewEmptyDataError(op)
	}

	return &Dataset{
		X:     mat.NewDense(len(y), len(names), values),
		Y:     y,
		Names: names,
	}, nil
}
