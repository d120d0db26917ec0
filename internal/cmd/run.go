package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wbrown/janus-nql/nql"
	"github.com/wbrown/janus-nql/nql/adapters/input/filetail"
	"github.com/wbrown/janus-nql/nql/adapters/input/pcap"
	"github.com/wbrown/janus-nql/nql/adapters/input/syslogd"
	"github.com/wbrown/janus-nql/nql/adapters/output"
	"github.com/wbrown/janus-nql/nql/adapters/parsers"
	"github.com/wbrown/janus-nql/nql/config"
	"github.com/wbrown/janus-nql/nql/executor"
	"github.com/wbrown/janus-nql/nql/logging"
	"github.com/wbrown/janus-nql/nql/parser"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a QL query against live logs and/or network traffic",
	RunE:  runRun,
}

func init() {
	flags := runCmd.Flags()
	flags.String("logs", "", "path to a log file to tail")
	flags.String("network", "", "network interface to capture (requires packet capture privileges)")
	flags.String("syslog", "", "UDP address to receive RFC5424 syslog datagrams on (e.g. :514)")
	flags.String("filter", "*", "QL query to evaluate against ingested events")
	flags.String("output", "stdout", "output sink: stdout, table, file, http, metrics")
	flags.String("output-path", "", "output file path (for --output=file) or URL (for --output=http)")
	flags.String("log-level", "info", "logger level: debug, info, warn, error")
	flags.String("metrics-addr", ":9090", "listen address for --output=metrics")
	flags.Int64("correlate-within-ms", 100, "legacy time-based correlator window")
	flags.String("config", "", "YAML config file; flags override its values")
}

func runRun(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, false)
	if err != nil {
		return fmt.Errorf("run: init logger: %w", err)
	}
	defer log.Sync()

	node, err := parser.Compile(cfg.Filter)
	if err != nil {
		return fmt.Errorf("run: compile query %q: %w", cfg.Filter, err)
	}

	sink, closeSink, err := buildSink(cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	world := executor.NewWorld(sink, log)
	world.SetCorrelationBufferCap(10000)
	world.SetTimeBasedWithinMs(cfg.CorrelateWithinMs)
	if err := world.Open(); err != nil {
		return err
	}
	if err := world.Start(); err != nil {
		return err
	}
	defer world.Free()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := func(event *nql.Event) {
		world.Dispatch(node, cfg.Filter, event)
		world.IngestEvent(event)
	}

	if err := startInputs(ctx, cfg, log, handler); err != nil {
		return err
	}

	log.Infow("nql running", "filter", cfg.Filter, "output", cfg.Output)
	return world.Run(ctx)
}

// buildSink constructs the configured output adapter's Handler, plus a
// cleanup func to flush/close it on shutdown.
func buildSink(cfg *config.Config) (nql.Handler, func(), error) {
	switch cfg.Output {
	case "", "stdout":
		s := output.NewStdout(os.Stdout)
		return s.Handle, func() {}, nil
	case "table":
		t := output.NewTable(os.Stdout, nil)
		return t.Handle, t.Flush, nil
	case "file":
		if cfg.OutputPath == "" {
			return nil, nil, fmt.Errorf("run: --output=file requires --output-path")
		}
		f := output.NewFile(output.FileConfig{Path: cfg.OutputPath})
		return f.Handle, func() { f.Close() }, nil
	case "http":
		if cfg.OutputPath == "" {
			return nil, nil, fmt.Errorf("run: --output=http requires --output-path as the target URL")
		}
		h := output.NewHTTP(output.HTTPConfig{URL: cfg.OutputPath})
		return h.Handle, func() { h.Close() }, nil
	case "metrics":
		m := output.NewMetrics()
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler()}
		go srv.ListenAndServe()
		return m.Handle, func() { srv.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("run: unknown --output %q", cfg.Output)
	}
}

// startInputs launches whichever of --logs/--network/--syslog was
// supplied. None is required: a bare `nql run` with no inputs is valid and
// simply idles, matching spec's treatment of World as usable with zero
// input adapters attached.
func startInputs(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger, handler nql.Handler) error {
	if cfg.LogsPath != "" {
		tail, err := filetail.New(filetail.Config{
			Path:  cfg.LogsPath,
			Parse: parsers.JSONLog,
		}, handler)
		if err != nil {
			return fmt.Errorf("run: start file tail: %w", err)
		}
		go func() {
			if err := tail.Run(ctx); err != nil {
				log.Errorw("file tail stopped", "error", err)
			}
		}()
	}

	if cfg.NetworkIface != "" {
		capture, err := pcap.Open(pcap.Config{Interface: cfg.NetworkIface}, handler)
		if err != nil {
			return fmt.Errorf("run: start packet capture: %w", err)
		}
		go func() {
			if err := capture.Run(ctx); err != nil {
				log.Errorw("packet capture stopped", "error", err)
			}
		}()
	}

	if cfg.SyslogAddr != "" {
		listener, err := syslogd.Listen(cfg.SyslogAddr, handler)
		if err != nil {
			return fmt.Errorf("run: start syslog listener: %w", err)
		}
		go func() {
			if err := listener.Run(ctx); err != nil {
				log.Errorw("syslog listener stopped", "error", err)
			}
		}()
	}

	return nil
}
