package ensemble

import (
	"testing"

	"go.uber.org/goleak"
)

// 並列な再標本化のワーカーが Count の後に残らないことを確認する
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
