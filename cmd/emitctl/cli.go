package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alecthomas/kong"

	emitter "github.com/goliatone/go-emitter"
	"github.com/goliatone/go-emitter/internal/demo"
	"github.com/goliatone/go-emitter/registry"
)

const defaultLogLevel = "warn"

type CLI struct {
	Config   string `help:"Config file (yaml, toml or json)." type:"path" placeholder:"FILE"`
	LogLevel string `help:"Override the configured log level." placeholder:"LEVEL"`

	Types    typesCmd    `cmd:"" help:"List registered action types."`
	Emit     emitCmd     `cmd:"" help:"Emit an action and print the resulting state."`
	Snapshot snapshotCmd `cmd:"" help:"Print the current state."`
}

type app struct {
	out io.Writer
	rt  *registry.Runtime
}

func run(args []string, stdout, stderr io.Writer) int {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("emitctl"),
		kong.Description("Emit actions against the demo todo, counter and animal states."),
		kong.Writers(stdout, stderr),
		kong.UsageOnError(),
	)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "emitctl: %v\n", err)
		return 2
	}

	a, closer, err := cli.setup(stdout)
	if err != nil {
		fmt.Fprintf(stderr, "emitctl: %v\n", err)
		return 1
	}
	defer closer.Close()
	defer a.rt.Stop(context.Background())

	if err := kctx.Run(a); err != nil {
		fmt.Fprintf(stderr, "emitctl: %v\n", err)
		return 1
	}
	return 0
}

func (c *CLI) setup(out io.Writer) (*app, io.Closer, error) {
	cfg := emitter.Config{}
	if c.Config != "" {
		loaded, err := emitter.LoadConfig(c.Config)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}
	switch {
	case c.LogLevel != "":
		cfg.Logging.Level = c.LogLevel
	case cfg.Logging.Level == "":
		cfg.Logging.Level = defaultLogLevel
	}

	logger, closer, err := emitter.NewLoggerFromConfig(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}

	states := demo.NewStates()
	rt, err := registry.NewRuntime(registry.RuntimeDependencies{
		States: states.All(),
		Config: cfg,
		Logger: logger,
	})
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	if _, err := demo.Register(rt.Registry(), states); err != nil {
		closer.Close()
		return nil, nil, err
	}
	if err := rt.Start(context.Background()); err != nil {
		closer.Close()
		return nil, nil, err
	}
	return &app{out: out, rt: rt}, closer, nil
}

type typesCmd struct{}

func (typesCmd) Run(a *app) error {
	for _, t := range a.rt.Registry().Types() {
		fmt.Fprintln(a.out, t)
	}
	return nil
}

type emitCmd struct {
	Type     string        `arg:"" help:"Action type to emit."`
	Payloads []string      `arg:"" optional:"" help:"Payloads, emitted one after another. Values that are not JSON are sent as strings."`
	Timeout  time.Duration `default:"5s" help:"How long to wait for each emit."`
}

func (c *emitCmd) Run(a *app) error {
	e, err := a.rt.EmitStore().EmitterFor(c.Type)
	if err != nil {
		return err
	}

	payloads := make([]any, 0, len(c.Payloads))
	for _, raw := range c.Payloads {
		payloads = append(payloads, decodePayload(raw))
	}
	if len(payloads) == 0 {
		payloads = append(payloads, nil)
	}

	for _, payload := range payloads {
		ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
		completion := e.Emit(ctx, payload)
		err := completion.Wait(ctx)
		cancel()
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s %s\n", e.Type(), completion.Status())
	}
	return printSnapshot(a)
}

type snapshotCmd struct{}

func (snapshotCmd) Run(a *app) error {
	return printSnapshot(a)
}

func printSnapshot(a *app) error {
	data, err := json.MarshalIndent(a.rt.Store().Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "%s\n", data)
	return err
}

func decodePayload(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
