package main

import (
	"context"
	"flag"
	"log"
	"time"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func main() {
	dev := flag.Bool("dev", false, "force the simulation broker and mock LLM driver, ignoring live credentials")
	once := flag.Bool("once", false, "run exactly one trading cycle over all configured symbols and exit")
	flag.Parse()

	must(initializeSystem())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(ctx)
	must(err)

	brk, err := initializeBroker(ctx, cfg, *dev)
	must(err)

	tradingAgent, cleanup, err := initializeAgent(ctx, cfg, brk, *dev)
	must(err)
	defer cleanup()

	sched := buildScheduler(tradingAgent, cfg)

	if *once {
		must(sched.RunOnce(ctx))
		return
	}

	sched.Start(ctx)
}
