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
	"path/filepath"
	"strings"
	"syscall"

	"internwatch/internal/config"
	"internwatch/internal/logging"
	"internwatch/internal/secrets"
)

var version = "dev"

type options struct {
	configPath  string
	dataDir     string
	once        bool
	daemon      bool
	dryRun      bool
	setPassword bool
	version     bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("internwatch", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "path to config.yml (default: <data-dir>/config.yml)")
	fs.StringVar(&o.dataDir, "data-dir", envOr("INTERNWATCH_DATA_DIR", "."), "directory for config, snapshot and lock files")
	fs.BoolVar(&o.once, "once", false, "run a single cycle and exit")
	fs.BoolVar(&o.daemon, "daemon", false, "keep polling on the configured schedule")
	fs.BoolVar(&o.dryRun, "dry-run", false, "print new listings without notifying or saving")
	fs.BoolVar(&o.setPassword, "set-smtp-password", false, "read the SMTP password from stdin into the OS keychain")
	fs.BoolVar(&o.version, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.once && o.daemon {
		return o, errors.New("-once and -daemon are mutually exclusive")
	}
	return o, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

func run(args []string, stdin io.Reader, stdout io.Writer) int {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	}
	if opts.version {
		fmt.Fprintln(stdout, "internwatch", version)
		return 0
	}

	if err := os.MkdirAll(opts.dataDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return 1
	}
	if err := config.LoadDotEnv(".env", filepath.Join(opts.dataDir, ".env")); err != nil {
		fmt.Fprintln(os.Stderr, "fatal: load .env:", err)
		return 1
	}

	cfgPath := opts.configPath
	if cfgPath == "" {
		cfgPath, err = config.EnsureUserConfig(opts.dataDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fatal: config bootstrap:", err)
			return 1
		}
	}

	cfg, vr, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: config %s: %v\n", cfgPath, err)
		return 1
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr).
		With().Str("app", "internwatch").Logger()
	for _, w := range vr.Warnings {
		log.Warn().Str("config", cfgPath).Msg(w)
	}

	if opts.setPassword {
		if err := storePassword(cfg, stdin); err != nil {
			log.Error().Err(err).Msg("store smtp password")
			return 1
		}
		log.Info().Str("account", secrets.SMTPKeyringAccount(cfg.Email.Username, cfg.Email.Server)).Msg("smtp password saved to keychain")
		return 0
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, cfgPath, opts.dataDir, opts.dryRun, log)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return 1
	}
	defer a.Close()

	daemonMode := opts.daemon || (!opts.once && cfg.Scheduled())
	if !daemonMode {
		return a.once(ctx)
	}
	if err := a.serve(ctx); err != nil {
		log.Error().Err(err).Msg("daemon stopped")
		return 1
	}
	return 0
}

// loadConfig reads path and applies the environment on top.
func loadConfig(path string) (config.Config, config.Validation, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, config.Validation{}, err
	}
	if err := config.OverlayEnv(&cfg); err != nil {
		return cfg, config.Validation{}, err
	}
	cfg, vr := config.NormalizeAndValidate(cfg)
	return cfg, vr, vr.Err()
}

func storePassword(cfg config.Config, stdin io.Reader) error {
	if cfg.Email.Username == "" || cfg.Email.Server == "" {
		return errors.New("email.username and email.smtp_server must be set first")
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return errors.New("empty password on stdin")
	}
	return secrets.SetSMTPPassword(secrets.SMTPKeyringAccount(cfg.Email.Username, cfg.Email.Server), pw)
}

func (a *app) once(ctx context.Context) int {
	res, err := a.poller.Trigger(ctx, "")
	if err != nil {
		a.log.Error().Err(err).Msg("run failed")
		return 1
	}
	a.log.Info().
		Bool("not_modified", res.NotModified).
		Int("new", len(res.New)).
		Bool("saved", res.Saved).
		Dur("took", res.Duration).
		Msg("run complete")
	return 0
}
