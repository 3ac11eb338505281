package main

import (
	"log"
	"os"

	"github.com/trezcool/attendance/core"
	logsvc "github.com/trezcool/attendance/services/logger"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	cli := &commandLine{
		conf:   conf,
		logger: logger,
		in:     os.Stdin,
		out:    os.Stdout,
	}
	if err := newRootCmd(cli).Execute(); err != nil {
		logger.Error(err.Error(), err)
		os.Exit(1)
	}
}
