// Command xmc prepares extreme multi-label datasets and scores predictions.
//
// Usage:
//
//	xmc tfidf train.txt train.tfidf.txt --test-set test.txt --test-out test.tfidf.txt
//	xmc propensity --train train.txt --test test.txt --dir weights
//	xmc merge predictions/
//	xmc evaluate --pred predictions/final_pred.txt --data test.txt --weights weights/weights-test-pos.txt
//	xmc labelstats train.txt stats.json
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/internal/cli"
	xerrors "github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/errors"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.New(version).Run(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "xmc: %v\n", err)
	}
	os.Exit(xerrors.ExitCode(err))
}
