// Command ubayfs はアンサンブル特徴量選択とユーザー制約から特徴量集合を選ぶ。
//
//	ubayfs select --config cfg.yaml --data data.csv --target y [--plot out.png]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
