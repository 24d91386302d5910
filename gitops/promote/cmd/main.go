// Command promote drives branch promotions on a hosted
// repository.
//
//	promote promote --action feature_to_develop --branch feature/abc
//	promote promote --action hotfix_to_main_and_dev --branch hotfix/1
//	promote promote --action promote_release \
//	    --branch release/2025.11.20.120000 --hold-hours 0.01 --tag-version v1.2.3
//	promote cut-release --source develop --version v1.2.3
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		if !errors.Is(err, errPromotionFailed) {
			slog.Error("fatal", "error", err)
		}

		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	root := newRootCmd(env{
		getenv: os.Getenv,
		stdout: os.Stdout,
		stderr: os.Stderr,
	})

	return root.ExecuteContext(ctx)
}
