package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	wasmtrampoline "github.com/wippyai/wasm-trampoline"
	"github.com/wippyai/wasm-trampoline/engine"
	"github.com/wippyai/wasm-trampoline/hostid"
	"github.com/wippyai/wasm-trampoline/trampoline"
)

// exit code for a target that takes too many arguments
const exitUnsupported = 2

type options struct {
	wasmFile   string
	configFile string
	rulesFile  string
	mode       string
	name       string
	args       string
	ua         string
	platform   string
	goos       string
	start      string
	target     int64
	touch      int
	list       bool
	verbose    bool
	wasi       bool
	quiet      bool // discard guest stdout and stderr
}

func main() {
	var opts options
	flag.StringVar(&opts.wasmFile, "wasm", "", "Path to guest wasm file")
	flag.StringVar(&opts.configFile, "config", "", "YAML config file")
	flag.StringVar(&opts.rulesFile, "rules", "", "YAML denylist rule file")
	flag.StringVar(&opts.mode, "mode", "", "Strategy mode: auto, compiled or fallback")
	flag.StringVar(&opts.name, "name", "", "Guest module name")
	flag.Int64Var(&opts.target, "target", -1, "Table slot to call")
	flag.StringVar(&opts.args, "args", "", `Up to three arguments (1,0x10,-1,"text")`)
	flag.StringVar(&opts.ua, "ua", "", "Host user agent for the denylist")
	flag.StringVar(&opts.platform, "platform", "", "Host platform for the denylist")
	flag.IntVar(&opts.touch, "touch", -1, "Host max touch points for the denylist")
	flag.StringVar(&opts.goos, "goos", "", "Host GOOS for the denylist")
	flag.StringVar(&opts.start, "start", "", "Start functions (comma-separated, default _initialize)")
	flag.BoolVar(&opts.list, "list", false, "List indirect table slots")
	flag.BoolVar(&opts.wasi, "wasi", false, "Provide WASI preview1 to the guest")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose logging")
	schema := flag.Bool("schema", false, "Print the rule file JSON schema and exit")
	interactive := flag.Bool("i", false, "Interactive mode with TUI")
	flag.Parse()

	if *schema {
		data, err := hostid.Schema()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	if opts.wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: trampctl -wasm <file.wasm> [-target slot] [-args a,b,c] [-mode auto|compiled|fallback]")
		fmt.Fprintln(os.Stderr, "       trampctl -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       trampctl -wasm <file.wasm> -i  (interactive mode)")
		fmt.Fprintln(os.Stderr, "       trampctl -schema")
		os.Exit(1)
	}

	log := zap.NewNop()
	if opts.verbose {
		var err error
		if log, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	defer func() { _ = log.Sync() }()
	engine.SetLogger(log)
	trampoline.SetLogger(log)

	if *interactive {
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, trampoline.ErrUnsupportedSignature) {
			os.Exit(exitUnsupported)
		}
		os.Exit(1)
	}
}

// setup loads the config and guest described by opts.
func setup(ctx context.Context, opts options) (*engine.WazeroEngine, *engine.Session, error) {
	cfg, err := loadConfig(opts.configFile)
	if err != nil {
		return nil, nil, err
	}
	guestCfg, err := guestConfig(opts, cfg)
	if err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(opts.wasmFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read file: %w", err)
	}

	engCfg := cfg.Engine
	engCfg.EnableWASI = engCfg.EnableWASI || opts.wasi
	eng, err := engine.NewWazeroEngineWithConfig(ctx, &engCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create engine: %w", err)
	}

	sess, err := eng.LoadGuest(ctx, data, guestCfg)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, nil, fmt.Errorf("load guest: %w", err)
	}
	return eng, sess, nil
}

// guestConfig merges the config file with flags; flags win.
func guestConfig(opts options, cfg *fileConfig) (engine.GuestConfig, error) {
	modeName := cfg.Mode
	if opts.mode != "" {
		modeName = opts.mode
	}
	mode, err := trampoline.ParseMode(modeName)
	if err != nil {
		return engine.GuestConfig{}, err
	}

	id := hostid.Current()
	if cfg.Host != nil {
		id = mergeIdentity(id, *cfg.Host)
	}
	id = mergeIdentity(id, hostid.Identity{
		UserAgent: opts.ua,
		Platform:  opts.platform,
		GOOS:      opts.goos,
	})
	if opts.touch >= 0 {
		id.MaxTouchPoints = opts.touch
	}

	rulesFile := cfg.Rules
	if opts.rulesFile != "" {
		rulesFile = opts.rulesFile
	}
	deny := hostid.DefaultDenylist()
	if rulesFile != "" {
		rf, err := hostid.LoadRules(rulesFile)
		if err != nil {
			return engine.GuestConfig{}, err
		}
		if deny, err = rf.Denylist(); err != nil {
			return engine.GuestConfig{}, err
		}
	}

	start := cfg.Start
	if opts.start != "" {
		start = strings.Split(opts.start, ",")
	}

	name := cfg.Name
	if opts.name != "" {
		name = opts.name
	}

	var stdout, stderr io.Writer = os.Stdout, os.Stderr
	if opts.quiet {
		stdout, stderr = io.Discard, io.Discard
	}

	return engine.GuestConfig{
		Name:           name,
		Mode:           mode,
		Identity:       &id,
		Denylist:       deny,
		StartFunctions: start,
		FlagCells:      cfg.FlagCells,
		Args:           append([]string{opts.wasmFile}, flag.Args()...),
		Stdout:         stdout,
		Stderr:         stderr,
	}, nil
}

// mergeIdentity overlays the non-zero fields of o onto id.
func mergeIdentity(id, o hostid.Identity) hostid.Identity {
	if o.UserAgent != "" {
		id.UserAgent = o.UserAgent
	}
	if o.Platform != "" {
		id.Platform = o.Platform
	}
	if o.GOOS != "" {
		id.GOOS = o.GOOS
	}
	if o.GOARCH != "" {
		id.GOARCH = o.GOARCH
	}
	if o.MaxTouchPoints > 0 {
		id.MaxTouchPoints = o.MaxTouchPoints
	}
	return id
}

func run(opts options) error {
	ctx := context.Background()

	eng, sess, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer eng.Close(ctx)
	defer sess.Close(ctx)

	p := newPrinter(os.Stdout)
	p.outcome(opts.wasmFile, sess)

	if opts.list {
		p.slots(sess)
	}

	if opts.target < 0 {
		return nil
	}
	if opts.target > int64(^uint32(0)) {
		return fmt.Errorf("target %d out of range", opts.target)
	}

	args, err := parseCallArgs(uint32(opts.target), opts.args, sessionWriter{sess})
	if err != nil {
		return err
	}
	res, err := sess.Call(ctx, args)
	p.printf("\n")
	p.result(args, res, err)
	return err
}

// sessionWriter adapts a session to guestWriter.
type sessionWriter struct {
	s *engine.Session
}

func (w sessionWriter) Alloc(size uint32) (uint32, error) { return w.s.Alloc(size) }

func (w sessionWriter) Write(offset uint32, data []byte) error {
	if w.s.Memory() == nil {
		return fmt.Errorf("guest has no memory")
	}
	var mem wasmtrampoline.Memory = w.s.Memory()
	return mem.Write(offset, data)
}
