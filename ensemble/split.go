package ensemble

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/YuminosukeSato/ubayfs/pkg/errors"
)

// TrainIndices は n 行から学習用の行インデックスを無作為に選ぶ
//
// 学習行数は floor(frac·n)（最低1、最大 n-1）。stratify が true の場合は
// y のラベルごとの比率を保つように各クラスから最大剰余法で割り当てる。
// 返すインデックスは昇順。
func TrainIndices(rng *rand.Rand, y []float64, frac float64, stratify bool) ([]int, error) {
	const op = "ensemble.TrainIndices"

	n := len(y)
	if n < 2 {
		return nil, errors.NewDataError(op, "at least two samples are required to split")
	}
	if !(frac > 0 && frac < 1) {
		return nil, errors.NewConfigurationErrorf(op, "train fraction must lie in (0,1), got %v", frac)
	}

	nTrain := int(math.Floor(frac * float64(n)))
	nTrain = max(1, min(nTrain, n-1))

	var train []int
	if !stratify {
		perm := rng.Perm(n)
		train = perm[:nTrain]
	} else {
		_, members, err := classes(op, y)
		if err != nil {
			return nil, err
		}
		alloc := allocate(members, nTrain, n)
		for c, rows := range members {
			perm := rng.Perm(len(rows))
			for _, p := range perm[:alloc[c]] {
				train = append(train, rows[p])
			}
		}
	}

	slices.Sort(train)
	return train, nil
}

// allocate はクラスごとの学習行数を最大剰余法で決める
func allocate(members [][]int, nTrain, n int) []int {
	alloc := make([]int, len(members))
	rem := make([]float64, len(members))
	assigned := 0
	for c, rows := range members {
		exact := float64(nTrain) * float64(len(rows)) / float64(n)
		alloc[c] = int(math.Floor(exact))
		rem[c] = exact - float64(alloc[c])
		assigned += alloc[c]
	}

	order := make([]int, len(members))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case rem[a] > rem[b]:
			return -1
		case rem[a] < rem[b]:
			return 1
		}
		return 0
	})
	for _, c := range order {
		if assigned >= nTrain {
			break
		}
		if alloc[c] < len(members[c]) {
			alloc[c]++
			assigned++
		}
	}
	return alloc
}
