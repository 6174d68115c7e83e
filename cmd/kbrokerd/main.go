// Command kbrokerd runs the broker: it loads the cluster metadata log and
// serves ApiVersions, DescribeTopicPartitions, and Fetch requests over a
// single TCP listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/kbroker/kbroker/internal/broker"
	"github.com/kbroker/kbroker/internal/config"
	"github.com/kbroker/kbroker/internal/log"
	"github.com/kbroker/kbroker/internal/logstore"
	"github.com/kbroker/kbroker/internal/metadata"
)

func main() {
	cmd := NewCommand()
	if err := cmd.Run(os.Args[1:]...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Command represents the kbrokerd run invocation: parse flags, load config
// and metadata, and serve until the process receives SIGINT/SIGTERM.
type Command struct {
	Stdout *os.File
	Stderr *os.File
}

// NewCommand returns a new instance of Command.
func NewCommand() *Command {
	return &Command{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run parses args, brings up the broker, and blocks until shutdown.
func (cmd *Command) Run(args ...string) error {
	configPath, err := cmd.parseFlags(args...)
	if err != nil {
		return err
	}

	cfg, err := config.FromFile(configPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	logger, err := log.New(cfg.LogLevel)
	if err != nil {
		return errors.Wrap(err, "init logging")
	}
	defer logger.Sync()

	md, err := metadata.Load(cfg.MetadataLogPath, logger)
	if err != nil {
		return errors.Wrap(err, "load cluster metadata")
	}

	logs := logstore.NewStore(cfg.LogDir, logger)
	b := broker.New(logger, md, logs)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err = b.Serve(ctx, cfg.BindAddr)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (cmd *Command) parseFlags(args ...string) (configPath string, err error) {
	fs := flag.NewFlagSet("kbrokerd", flag.ContinueOnError)
	fs.SetOutput(cmd.Stderr)
	fs.StringVar(&configPath, "config", "", "path to a TOML configuration file (defaults built in if omitted)")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return configPath, nil
}
