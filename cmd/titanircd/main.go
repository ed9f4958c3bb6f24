/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	irc "github.com/btnmasher/titanircd"

	"github.com/sirupsen/logrus"
)

func main() {
	opts, err := irc.ParseCLI()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := irc.LoadConfig(opts.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	mainContext, shutdown := context.WithCancel(context.Background())
	defer shutdown()

	wg := conc.NewWaitGroup()
	defer wg.Wait()

	shutdownTimeout := 30 * time.Second
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	for range opts.Verbose {
		if level < logrus.TraceLevel {
			level++
		}
	}

	persistence, err := irc.OpenPersistence(cfg.DatabasePath, cfg.MaxReplaySince.Duration, logger.WithField("component", "persistence"))
	if err != nil {
		logger.Fatal(fmt.Errorf("failed to open persistence store: %w", err))
	}
	defer persistence.Close()

	serverOpts := []irc.Option{
		irc.WithHostname(cfg.ServerName),
		irc.WithNetwork(cfg.NetworkName),
		irc.WithMOTD(cfg.Motd),
		irc.WithListenAddress(cfg.ListenAddress),
		irc.WithClientThreads(cfg.ClientThreads),
		irc.WithChannelThreads(cfg.ChannelThreads),
		irc.WithPersistence(persistence),
		irc.WithLogger(logger.WithField("component", "irc")),
		irc.WithLogLevel(level),
		irc.WithGracefulShutdown(mainContext, shutdownTimeout),
	}

	if cfg.LogFormat == "nested" {
		serverOpts = append(serverOpts, irc.WithNestedLogFormatter())
	} else {
		serverOpts = append(serverOpts, irc.WithDefaultLogFormatter())
	}

	server := irc.NewServer(serverOpts...)

	wg.Go(func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, irc.ErrServerClosed) {
			logger.Fatal(fmt.Errorf("failed to start server: %w", err))
		}
	})

	log := logger.WithField("component", "main")
	killSignals := make(chan os.Signal, 1)
	signal.Notify(killSignals, syscall.SIGINT, syscall.SIGTERM)

	sig := <-killSignals
	log.Infof("initializing server shutdown, received signal: %s", sig)
	shutdown()

	go func() {
		sig := <-killSignals
		log.Fatalf("forcefully shutting down server, received signal: %s", sig)
	}()
}
