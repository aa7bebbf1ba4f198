package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	clamd "github.com/DevHatRo/clamd-instream-go"
	"github.com/DevHatRo/clamd-instream-go/internal/logging"
)

const (
	defaultAddr   = "localhost:3310"
	configRelPath = "clamd-instream/config.toml"
	sniffLen      = 512
	stdinName     = "-"
	nul           = "\x00"
)

// logProfile selects the logger defaults; tests switch it to the test profile.
var logProfile = logging.ProfileRuntime

type options struct {
	addr       string
	configPath string
	chunkSize  int
	timeout    time.Duration
	logLevel   string
	ping       bool
	version    bool
	targets    []string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "clamd-instream: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("clamd-instream", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.addr, "addr", "", "clamd address host:port (default from config, then "+defaultAddr+")")
	fs.StringVar(&opts.configPath, "config", "", "path to a TOML config file (default: $XDG_CONFIG_HOME/"+configRelPath+")")
	fs.IntVar(&opts.chunkSize, "chunk-size", 0, "INSTREAM chunk size in bytes (default from config, then 4096)")
	fs.DurationVar(&opts.timeout, "timeout", 0, "overall timeout per command, 0 for none")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: trace|debug|info|warn|error|off")
	fs.BoolVar(&opts.ping, "ping", false, "ping the daemon and exit")
	fs.BoolVar(&opts.version, "version", false, "print the daemon version and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	opts.targets = fs.Args()
	if len(opts.targets) == 0 {
		opts.targets = []string{stdinName}
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	logger := logging.New(stderr, logProfile)
	if opts.logLevel != "" {
		lvl, ok := logging.ParseLevel(opts.logLevel)
		if !ok {
			return fmt.Errorf("unknown log level %q", opts.logLevel)
		}
		logger = logger.Level(lvl)
	}

	client, err := newClient(opts, logger)
	if err != nil {
		return err
	}

	switch {
	case opts.ping:
		return ping(ctx, client, opts.timeout, stdout)
	case opts.version:
		return version(ctx, client, opts.timeout, stdout)
	}

	var errs []error
	for _, target := range opts.targets {
		if err := scanTarget(ctx, client, opts.timeout, target, stdin, stdout, logger); err != nil {
			logger.Error().Err(err).Str("target", target).Msg("scan failed")
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
		}
	}
	return errors.Join(errs...)
}

// loadConfig reads the explicit config path, or the first config file found
// in the XDG config directories. Missing discovery is not an error.
func loadConfig(path string) (clamd.Config, error) {
	if path != "" {
		return clamd.LoadConfig(path)
	}
	found, err := xdg.SearchConfigFile(configRelPath)
	if err != nil {
		return clamd.DefaultConfig(), nil
	}
	return clamd.LoadConfig(found)
}

func newClient(opts options, logger zerolog.Logger) (*clamd.Client, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	addr := cfg.Address
	if opts.addr != "" {
		addr = opts.addr
	}
	if addr == "" {
		addr = defaultAddr
	}
	cfg.Address = ""

	return clamd.NewClient(addr,
		clamd.WithConfig(cfg),
		clamd.WithChunkSize(opts.chunkSize),
		clamd.WithLogger(logger),
	)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func scanTarget(ctx context.Context, client *clamd.Client, timeout time.Duration, target string, stdin io.Reader, stdout io.Writer, logger zerolog.Logger) error {
	src := stdin
	name := "stdin"
	if target != stdinName {
		f, err := os.Open(target)
		if err != nil {
			return err
		}
		defer f.Close()
		src, name = f, target
	}

	br := bufio.NewReaderSize(src, sniffLen)
	head, _ := br.Peek(sniffLen)
	mtype := mimetype.Detect(head)

	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.Scan(ctx, br)
	if err != nil {
		return err
	}

	verdict := strings.TrimRight(resp, nul)
	logger.Info().
		Str("target", name).
		Str("mime", mtype.String()).
		Str("verdict", verdict).
		Msg("scanned")
	fmt.Fprintf(stdout, "%s: %s\n", name, verdict)
	return nil
}

func ping(ctx context.Context, client *clamd.Client, timeout time.Duration, stdout io.Writer) error {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, strings.TrimRight(resp, nul))
	return nil
}

func version(ctx context.Context, client *clamd.Client, timeout time.Duration, stdout io.Writer) error {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	v, err := client.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "engine=%s signatures=%d date=%q\n", v.Engine, v.SignatureVersion, v.SignatureDate)
	return nil
}
