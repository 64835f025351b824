// Command brokerd runs the dispatch broker: it binds the client frontend
// and worker registration endpoints, and serves jobs until terminated.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	applog "github.com/dispatchd/dispatchd/internal/log"
	"github.com/dispatchd/dispatchd/mdp"
	health "github.com/nelkinda/health-go"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:    "brokerd",
		Usage:   "run the dispatchd job broker",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "frontend",
				Usage: "override the client-facing endpoint",
			},
			&cli.StringFlag{
				Name:  "registration-endpoint",
				Usage: "override the worker registration endpoint",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("brokerd exited with error")
	}
}

func run(c *cli.Context) error {
	config := GetConfig()
	applog.Initialize(config.Log)

	if v := c.String("frontend"); v != "" {
		config.Frontend = v
	}
	if v := c.String("registration-endpoint"); v != "" {
		config.RegistrationEndpoint = v
	}

	broker, err := mdp.NewBroker(config.mdpConfig())
	if err != nil {
		return fmt.Errorf("brokerd: failed to build broker: %w", err)
	}
	broker.Start()
	defer broker.Stop()

	SetStatus("starting")

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go runHealth(ctx, wg, config.HealthPort, broker)

	SetStatus("running")
	log.WithFields(log.Fields{
		"frontend":     config.Frontend,
		"registration": config.RegistrationEndpoint,
	}).Info("brokerd started")

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)
	<-termChan

	SetStatus("stopping")
	cancel()
	wg.Wait()

	log.Info("brokerd exiting")
	return nil
}

func runHealth(ctx context.Context, wg *sync.WaitGroup, port int, broker *mdp.Broker) {
	defer wg.Done()

	h := health.New(health.Health{
		Version:   "1",
		ReleaseID: "0.1.0",
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Handler)
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"status":%q,"workers":%d,"errors":%d}`,
			GetStatus(), broker.Registry().Len(), GetErrorCount())
	})

	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("health server failed")
			SetLastError(err)
		}
	}()

	<-ctx.Done()
	_ = server.Close()
}
