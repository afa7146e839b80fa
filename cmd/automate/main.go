package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/goliatone/go-automate/config"
)

// Globals are shared by every command.
type Globals struct {
	Config string `help:"Path to automate.yaml." short:"c" type:"existingfile" env:"AUTOMATE_CONFIG"`

	out io.Writer       `kong:"-"`
	ctx context.Context `kong:"-"`
}

func (g *Globals) load() (config.Config, error) {
	if g.Config == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.Load(g.Config)
}

func (g *Globals) stdout() io.Writer {
	if g.out == nil {
		return os.Stdout
	}
	return g.out
}

func (g *Globals) context() context.Context {
	if g.ctx == nil {
		return context.Background()
	}
	return g.ctx
}

type CLI struct {
	Globals

	URI     URICmd     `cmd:"" name:"uri" help:"Print the automation descriptor URI for a request."`
	Enqueue EnqueueCmd `cmd:"" help:"Submit a delivery to the configured queue."`
	Work    WorkCmd    `cmd:"" help:"Run a worker until interrupted."`
	Queue   QueueCmd   `cmd:"" help:"Inspect the configured queue."`
}

type QueueCmd struct {
	Ls QueueLsCmd `cmd:"" help:"List pending submissions."`
}

func newParser(cli *CLI, out io.Writer) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("automate"),
		kong.Description("Deliver automation requests to a workflow engine and retry them through a queue."),
		kong.UsageOnError(),
		kong.Writers(out, out),
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := &CLI{}
	cli.ctx = ctx
	parser, err := newParser(cli, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	parser.FatalIfErrorf(kctx.Run(&cli.Globals))
}
