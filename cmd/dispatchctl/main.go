// Command dispatchctl is a CLI client for a broker's frontend endpoint:
// "call" submits a single job and prints the result, and "pool-call"
// submits the same job from several concurrent callers through a
// client.Pool.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dispatchd/dispatchd/client"
	"github.com/dispatchd/dispatchd/internal/config"
	applog "github.com/dispatchd/dispatchd/internal/log"
	"github.com/dispatchd/dispatchd/mdp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "dispatchctl",
		Usage: "call a target on a dispatchd broker and print the result",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "frontend",
				Value: "ipc:///tmp/dispatchd-frontend.ipc",
				Usage: "broker frontend endpoint to dial",
			},
			&cli.DurationFlag{
				Name:  "soft-timeout",
				Value: 1 * time.Second,
			},
			&cli.DurationFlag{
				Name:  "hard-timeout",
				Value: 1500 * time.Millisecond,
			},
		},
		Commands: []*cli.Command{callCommand, poolCallCommand},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("dispatchctl exited with error")
	}
}

var callCommand = &cli.Command{
	Name:      "call",
	Usage:     "call <target> [args...]",
	ArgsUsage: "<target> [args...]",
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return fmt.Errorf("dispatchctl: call requires a target name")
		}

		cfgLog := config.LogConfig{Level: "info", Formatter: "text"}
		applog.Initialize(cfgLog)

		fabricCfg := client.DefaultConfig(c.String("frontend"))
		fabricCfg.SoftTimeout = c.Duration("soft-timeout")
		fabricCfg.HardTimeout = c.Duration("hard-timeout")

		fabric, err := client.NewFabric(fabricCfg)
		if err != nil {
			return fmt.Errorf("dispatchctl: failed to connect: %w", err)
		}
		defer fabric.Close()

		job := mdp.NewJob(c.Args().First(), c.Args().Tail()...)
		result, err := fabric.Execute(job)
		if err != nil {
			return fmt.Errorf("dispatchctl: call failed: %w", err)
		}

		fmt.Println(string(result))
		return nil
	},
}

// poolCallCommand exercises client.Pool directly, the only entry point
// that gives pool_size (spec §6) a reachable config/CLI surface: a
// one-shot call never needs more than one fabric, but a load generator
// driving many concurrent callers does.
var poolCallCommand = &cli.Command{
	Name:      "pool-call",
	Usage:     "pool-call <target> [args...]",
	ArgsUsage: "<target> [args...]",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "pool-size",
			Value: 10,
			Usage: "number of fabrics held by the pool",
		},
		&cli.IntFlag{
			Name:  "concurrency",
			Value: 1,
			Usage: "number of concurrent callers sharing the pool",
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return fmt.Errorf("dispatchctl: pool-call requires a target name")
		}

		cfgLog := config.LogConfig{Level: "info", Formatter: "text"}
		applog.Initialize(cfgLog)

		fabricCfg := client.DefaultConfig(c.String("frontend"))
		fabricCfg.SoftTimeout = c.Duration("soft-timeout")
		fabricCfg.HardTimeout = c.Duration("hard-timeout")
		fabricCfg.PoolSize = c.Int("pool-size")

		pool, err := client.NewPool(fabricCfg)
		if err != nil {
			return fmt.Errorf("dispatchctl: failed to build pool: %w", err)
		}
		defer pool.Close()

		target := c.Args().First()
		args := c.Args().Tail()

		var wg sync.WaitGroup
		var mu sync.Mutex
		var failures []error

		for i := 0; i < c.Int("concurrency"); i++ {
			wg.Add(1)
			go func(callerID int) {
				defer wg.Done()
				job := mdp.NewJob(target, args...)
				result, err := pool.Execute(context.Background(), job)
				if err != nil {
					mu.Lock()
					failures = append(failures, fmt.Errorf("caller %d: %w", callerID, err))
					mu.Unlock()
					return
				}
				fmt.Printf("caller %d: %s\n", callerID, result)
			}(i)
		}
		wg.Wait()

		if len(failures) > 0 {
			return fmt.Errorf("dispatchctl: pool-call had %d/%d failures, first: %w",
				len(failures), c.Int("concurrency"), failures[0])
		}
		return nil
	},
}
