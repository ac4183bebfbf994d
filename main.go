package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/teknomedia/sited/config"
	"github.com/teknomedia/sited/system"
	"go.uber.org/zap"
	"golang.org/x/term"

	_ "net/http/pprof"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "(devel)"

var logo = "" +
	"        _ __         __\n" +
	"  _____(_) /____ ___/ /\n" +
	" (_-< / / __/ -_) _  /   company profile and blog portal\n" +
	"/___/_/\\__/\\__/\\_,_/    \n\n"

const (
	DefaultListenAddrTLS = "127.0.0.1:1443"
	DefaultConfigPath    = "config.yaml"
)

type options struct {
	configpath string
	devmode    bool
	addr       string
	sslCert    string
	sslKey     string
	sslAddr    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var o options
	root := &cobra.Command{
		Use:          "sited",
		Short:        "company profile site with a merged blog feed",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, &o)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&o.configpath, "conf", "c", DefaultConfigPath, "path to config.yaml or config.json (use - for JSON on stdin)")
	pf.BoolVar(&o.devmode, "dev", false, "development mode (insecure)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the site (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, &o)
		},
	}
	for _, c := range []*cobra.Command{root, serveCmd} {
		f := c.Flags()
		f.StringVar(&o.addr, "addr", "", "address to serve, overrides Meta.listen")
		f.StringVar(&o.sslCert, "sslcert", "", "path to ssl cert")
		f.StringVar(&o.sslKey, "sslkey", "", "path to ssl key")
		f.StringVar(&o.sslAddr, "ssladdr", DefaultListenAddrTLS, "listen TLS if cert and key exist")
	}

	root.AddCommand(
		serveCmd,
		newFetchCmd(&o),
		newAddUserCmd(&o),
		newDumpConfigCmd(&o),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), "sited", Version)
			},
		},
	)
	return root
}

func newLogger(dev bool) *zap.SugaredLogger {
	var lg *zap.Logger
	var err error
	if dev {
		lg, err = zap.NewDevelopment()
	} else {
		lg, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return lg.Sugar()
}

// loadConfig reads the config, overlays environment and flags, and checks it.
func loadConfig(cmd *cobra.Command, o *options, lg *zap.SugaredLogger) (*config.Config, error) {
	cfg, err := config.Load(o.configpath, cmd.InOrStdin())
	if err != nil {
		return nil, err
	}
	if o.configpath == "-" {
		lg.Infow("read config from stdin")
	} else {
		lg.Infow("read config", "path", o.configpath)
	}
	cfg.Meta.Version = "sited " + Version
	if err := config.ApplyEnv(cfg, lg); err != nil {
		return nil, err
	}
	// override config with flag
	if o.devmode {
		cfg.Meta.DevelopmentMode = true
	}
	if o.addr != "" {
		cfg.Meta.ListenAddr = o.addr
	}
	if err := config.CheckConfig(cfg, lg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// boot loads the config and the system for commands that need both.
func boot(cmd *cobra.Command, o *options) (*system.System, *zap.SugaredLogger, error) {
	lg := newLogger(o.devmode)
	cfg, err := loadConfig(cmd, o, lg)
	if err != nil {
		return nil, lg, err
	}
	if cfg.Meta.DevelopmentMode && !o.devmode {
		lg = newLogger(true)
	}
	s, err := system.New(cfg, lg)
	if err != nil {
		return nil, lg, fmt.Errorf("boot error: %w", err)
	}
	return s, lg, nil
}

func serve(cmd *cobra.Command, o *options) error {
	fmt.Fprint(cmd.ErrOrStderr(), logo)
	s, lg, err := boot(cmd, o)
	defer lg.Sync()
	if err != nil {
		lg.Errorw("can't start", "err", err)
		return err
	}
	defer s.Close()
	cfg := s.Config()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := system.SetupTracing(ctx, cfg.Telemetry.OTLPEndpoint, "sited", Version)
	if err != nil {
		lg.Warnw("tracing disabled", "err", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			lg.Warnw("error flushing traces", "err", err)
		}
	}()

	if os.Getenv("DEBUG") != "" {
		go func() {
			lg.Infow("pprof listening", "addr", "localhost:6060")
			lg.Warnw("pprof stopped", "err", http.ListenAndServe("localhost:6060", nil))
		}()
	}

	return s.Run(ctx, s.Handler(), system.TLS{Addr: o.sslAddr, Cert: o.sslCert, Key: o.sslKey})
}

func newFetchCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch every configured feed once and print the merged posts as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, lg, err := boot(cmd, o)
			defer lg.Sync()
			if err != nil {
				return err
			}
			defer s.Close()
			res := s.Feeds().Refresh(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			return res.Err()
		},
	}
}

func newAddUserCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "adduser NAME",
		Short: "Create an admin account, reading the password from the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, lg, err := boot(cmd, o)
			defer lg.Sync()
			if err != nil {
				return err
			}
			defer s.Close()
			pass, err := readPassword(cmd)
			if err != nil {
				return err
			}
			u, err := s.AddUser(args[0], pass)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "created", u.ID)
			return nil
		},
	}
}

// readPassword prompts without echo on a terminal, else reads one line.
func readPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		return string(b), err
	}
	var pass string
	_, err := fmt.Fscanln(cmd.InOrStdin(), &pass)
	return pass, err
}

func newDumpConfigCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dumpconfig",
		Short: "Print the effective config as JSON and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			lg := newLogger(o.devmode)
			defer lg.Sync()
			cfg, err := loadConfig(cmd, o, lg)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(" ", " ")
			return enc.Encode(cfg)
		},
	}
}
