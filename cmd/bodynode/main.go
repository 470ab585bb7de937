package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"bodynodes/internal/config"
	"bodynodes/internal/web"
)

func main() {
	var configPath string
	var logSummaryPath string
	flag.StringVar(&configPath, "config", "./bodynode.yaml", "Path to YAML config")
	flag.StringVar(&logSummaryPath, "log-summary", "", "Print a summary of a recorded sample log and exit")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if logSummaryPath != "" {
		if err := printLogSummary(os.Stdout, logSummaryPath); err != nil {
			logrus.WithError(err).Fatal("log summary failed")
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.WithError(err).WithField("path", configPath).Fatal("config load failed")
	}
	if err := setLogLevel(logrus.StandardLogger(), cfg.Log.Level); err != nil {
		logrus.WithError(err).Fatal("log level invalid")
	}

	logs := web.NewLogBuffer(0)
	logrus.AddHook(logs)
	log := logrus.WithField("bodypart", cfg.Node.Bodypart)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.WithFields(logrus.Fields{"driver": cfg.Sensor.Driver, "dest": cfg.Host.Dest}).Info("bodynode starting")
	if err := run(ctx, cfg, logs, log); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("bodynode failed")
	}
	log.Info("bodynode stopping")
}

func setLogLevel(l *logrus.Logger, level string) error {
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	l.SetLevel(lv)
	return nil
}
