// Command square-worker is a demo worker serving a single target,
// "square", that parses its one argument as an integer and returns its
// square. It exists to exercise the worker API end to end.
package main

import (
	"os"
	"strconv"

	"github.com/dispatchd/dispatchd/internal/config"
	applog "github.com/dispatchd/dispatchd/internal/log"
	"github.com/dispatchd/dispatchd/mdp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func square(args [][]byte) ([]byte, error) {
	if len(args) != 1 {
		return nil, mdp.ErrBadFrame
	}
	n, err := strconv.Atoi(string(args[0]))
	if err != nil {
		return nil, err
	}
	return []byte(strconv.Itoa(n * n)), nil
}

func main() {
	app := &cli.App{
		Name:  "square-worker",
		Usage: "serve the square() target against a dispatchd registration endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "registration-endpoint",
				Value: "ipc:///tmp/dispatchd-registration.ipc",
				Usage: "broker registration endpoint to dial",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
			},
		},
		Action: func(c *cli.Context) error {
			applog.Initialize(config.LogConfig{Level: c.String("log-level"), Formatter: "text"})

			worker := mdp.NewWorker(c.String("registration-endpoint"), map[string]mdp.TargetFunc{
				"square": square,
			})
			log.WithField("endpoint", c.String("registration-endpoint")).Info("square-worker starting")
			return worker.Run()
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("square-worker exited with error")
	}
}
