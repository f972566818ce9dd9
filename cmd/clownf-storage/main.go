package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/coral-ha/clownf/cmd/clownf-storage/run"
	"github.com/coral-ha/clownf/utils/log"
)

var gitCommitID = "dev"

func main() {
	printWelcome()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr, run.DefaultRunnerFactory)
	stop()

	log.Debugf("exit status %d", code)
	log.Sync()
	os.Exit(code)
}

func printWelcome() {
	if gitCommitID == "" {
		gitCommitID = "dev"
	}
	log.Debug("-------- clownf-storage --------")
	log.Debugf("Git Commit ID : %s", gitCommitID)
	log.Debugf("pid : %d", os.Getpid())
	log.Debug("--------------------------------")
}
