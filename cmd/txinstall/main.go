package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	txerrors "github.com/gxo-labs/txinstall/pkg/txinstall/v1/errors"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/installer"
	txlog "github.com/gxo-labs/txinstall/pkg/txinstall/v1/log"

	"github.com/gxo-labs/txinstall/internal/discovery"
	"github.com/gxo-labs/txinstall/internal/driver"
	"github.com/gxo-labs/txinstall/internal/events"
	"github.com/gxo-labs/txinstall/internal/logger"
	"github.com/gxo-labs/txinstall/internal/metrics"
	"github.com/gxo-labs/txinstall/internal/registry"
	"github.com/gxo-labs/txinstall/internal/secrets"
	"github.com/gxo-labs/txinstall/internal/tracing"

	_ "github.com/gxo-labs/txinstall/modules/dir"
	_ "github.com/gxo-labs/txinstall/modules/exec"
	_ "github.com/gxo-labs/txinstall/modules/file"
	_ "github.com/gxo-labs/txinstall/modules/message"
)

const (
	ExitSuccess          = 0
	ExitFailure          = 1
	ExitUsageError       = 2
	ExitSigIntBase       = 128
	ExitSigInt           = ExitSigIntBase + int(syscall.SIGINT)
	ExitSigTerm          = ExitSigIntBase + int(syscall.SIGTERM)
	DefaultLogLevel      = "warn"
	DefaultLogFmt        = "text"
	DefaultEventBusSize  = 256
	SecretsEnvPrefix     = "TXINSTALL_"
	ComponentPathEnvVar  = "TXINSTALL_COMPONENT_PATH"
	diagLogMaxSizeMB     = 10
	diagLogMaxBackups    = 3
	tracerShutdownPeriod = 5 * time.Second
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// toolFlags are consumed by the binary itself. Every other argument is
// handed to the driver.
var toolFlags = map[string]bool{
	"version":     true,
	"loglevel":    true,
	"logformat":   true,
	"diaglog":     true,
	"metricsfile": true,
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func printVersion() {
	fmt.Printf("txinstall version %s\n", version)
	fmt.Printf("commit: %s\n", commit)
	fmt.Printf("built: %s\n", buildDate)
	fmt.Printf("go version: %s\n", runtime.Version())
	fmt.Printf("os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// splitArgs separates the binary's own flags from installer arguments.
// Tool flags are matched case-insensitively and normalized to lower case.
func splitArgs(args []string) (tool, rest []string) {
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
			if toolFlags[strings.ToLower(name)] {
				normalized := "-" + strings.ToLower(name)
				if hasValue {
					normalized += "=" + value
				}
				tool = append(tool, normalized)
				continue
			}
		}
		rest = append(rest, arg)
	}
	return tool, rest
}

func run(args []string) int {
	toolArgs, installArgs := splitArgs(args)

	toolFlagSet := flag.NewFlagSet("txinstall", flag.ContinueOnError)
	versionFlag := toolFlagSet.Bool("version", false, "Print version information and exit")
	logLevel := toolFlagSet.String("loglevel", DefaultLogLevel, "Diagnostic log level (debug, info, warn, error)")
	logFormat := toolFlagSet.String("logformat", DefaultLogFmt, "Diagnostic log format (text, json)")
	diagLog := toolFlagSet.String("diaglog", "", "Also write diagnostics to this rotating log file")
	metricsFile := toolFlagSet.String("metricsfile", "", "Write Prometheus metrics to this file at exit")
	if err := toolFlagSet.Parse(toolArgs); err != nil {
		return ExitUsageError
	}

	if *versionFlag {
		printVersion()
		return ExitSuccess
	}
	if *logFormat != "text" && *logFormat != "json" {
		fmt.Fprintln(os.Stderr, "Error: -logformat must be 'text' or 'json'")
		return ExitUsageError
	}

	var logWriter io.Writer = os.Stderr
	if *diagLog != "" {
		rotating := &lumberjack.Logger{
			Filename:   *diagLog,
			MaxSize:    diagLogMaxSizeMB,
			MaxBackups: diagLogMaxBackups,
		}
		defer rotating.Close()
		logWriter = io.MultiWriter(os.Stderr, rotating)
	}
	log := logger.NewLogger(*logLevel, *logFormat, logWriter)
	log = log.With("txinstall_version", version)
	log.Debugf("txinstall v%s starting with arguments %v", version, installArgs)

	metricsProvider := metrics.NewPrometheusRegistryProvider()
	collectors, err := metrics.NewCollectors(metricsProvider.Registry())
	if err != nil {
		log.Errorf("Failed to register metrics: %v", err)
		return ExitFailure
	}
	eventBus := events.NewChannelEventBus(DefaultEventBusSize, log)
	listener := events.NewMetricsEventListener(eventBus, collectors, log)

	tracerProvider := tracing.NewProviderFromEnv(context.Background(), log)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	var listenerDone sync.WaitGroup
	listenerDone.Add(1)
	go func() {
		defer listenerDone.Done()
		listener.Start(context.Background())
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var receivedSignal os.Signal
	var sigMu sync.Mutex
	go func() {
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Cancelling running commands...", sig)
			sigMu.Lock()
			receivedSignal = sig
			sigMu.Unlock()
			cancelRun()
		case <-runCtx.Done():
		}
	}()

	opts := driver.Options{
		Discoverer: discovery.NewManifestDiscoverer(registry.Default,
			discovery.WithSecrets(secrets.NewEnvProvider(SecretsEnvPrefix))),
		SearchPath: discovery.SplitSearchPath(os.Getenv(ComponentPathEnvVar)),
		ContextOptions: []installer.ContextOption{
			installer.WithLogger(log),
			installer.WithEventBus(eventBus),
			installer.WithTracer(tracerProvider.GetTracer("txinstall")),
		},
		Logger: log,
	}
	runErr := driver.Run(runCtx, installArgs, opts)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), tracerShutdownPeriod)
	defer cancelShutdown()
	if shutdownErr := tracerProvider.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warnf("Error shutting down tracer provider: %v", shutdownErr)
	}

	eventBus.Close()
	listenerDone.Wait()
	if *metricsFile != "" {
		if err := metricsProvider.WriteTextfile(*metricsFile); err != nil {
			log.Warnf("Failed to write metrics to '%s': %v", *metricsFile, err)
		}
	}

	sigMu.Lock()
	finalSignal := receivedSignal
	sigMu.Unlock()
	return exitCode(runErr, finalSignal, log)
}

func exitCode(runErr error, sig os.Signal, log txlog.Logger) int {
	if runErr == nil {
		return ExitSuccess
	}
	if txerrors.IsHelpRequested(runErr) {
		fmt.Fprint(os.Stdout, runErr.Error())
		return ExitUsageError
	}
	fmt.Fprintf(os.Stderr, "An exception occurred during the installation: %v\n", runErr)
	if sig != nil {
		switch sig {
		case syscall.SIGINT:
			log.Warnf("Installation interrupted by signal: SIGINT")
			return ExitSigInt
		case syscall.SIGTERM:
			log.Warnf("Installation terminated by signal: SIGTERM")
			return ExitSigTerm
		}
	}
	if errors.Is(runErr, context.Canceled) {
		log.Warnf("Installation cancelled.")
	}
	return ExitFailure
}
