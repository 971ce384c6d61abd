package installer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	internalevents "github.com/gxo-labs/txinstall/internal/events"
	"github.com/gxo-labs/txinstall/internal/logger"
	"github.com/gxo-labs/txinstall/internal/tracing"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/events"
	txlog "github.com/gxo-labs/txinstall/pkg/txinstall/v1/log"
	"go.opentelemetry.io/otel/trace"
)

// Well-known parameter names. Parameter names are always lower case.
const (
	ParamLogFile         = "logfile"
	ParamLogToConsole    = "logtoconsole"
	ParamShowCallStack   = "showcallstack"
	ParamInstallStateDir = "installstatedir"
	ParamInstallType     = "installtype"
	ParamAction          = "action"
	ParamAssemblyPath    = "assemblypath"
	ParamPassword        = "password"
)

// Parameters is the case-insensitive parameter map of an install context.
// Keys are stored lower-cased.
type Parameters map[string]string

// ParseParameters converts command-line style arguments into Parameters.
// One leading "--", "-" or "/" is stripped, the remainder is split on the
// first "=", and a bare flag maps to the empty string.
func ParseParameters(args []string) Parameters {
	params := make(Parameters, len(args))
	for _, arg := range args {
		key, value := splitArgument(arg)
		if key == "" {
			continue
		}
		params[key] = value
	}
	return params
}

func splitArgument(arg string) (string, string) {
	switch {
	case strings.HasPrefix(arg, "--"):
		arg = arg[2:]
	case strings.HasPrefix(arg, "-"), strings.HasPrefix(arg, "/"):
		arg = arg[1:]
	}
	key, value, found := strings.Cut(arg, "=")
	if !found {
		value = ""
	}
	return strings.ToLower(key), value
}

// Get returns the value of name, looked up case-insensitively.
func (p Parameters) Get(name string) (string, bool) {
	v, ok := p[strings.ToLower(name)]
	return v, ok
}

// IsTrue reports whether name is present with a value of "true", "yes", "1"
// (case-insensitive) or the empty string.
func (p Parameters) IsTrue(name string) bool {
	v, ok := p.Get(name)
	if !ok {
		return false
	}
	switch strings.ToLower(v) {
	case "", "true", "yes", "1":
		return true
	}
	return false
}

// Set stores value under the lower-cased name.
func (p Parameters) Set(name, value string) {
	p[strings.ToLower(name)] = value
}

// Keys returns the parameter names in sorted order.
func (p Parameters) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy of p.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// InstallContext carries the parameters of one lifecycle invocation and the
// install log shared by every node in the tree.
//
// LogMessage is safe for concurrent use; the console writer must be too.
// The parameter map must not be modified while a lifecycle call is running.
type InstallContext struct {
	mu         sync.Mutex
	parameters Parameters
	logger     txlog.Logger
	bus        events.Bus
	tracer     trace.Tracer
	console    io.Writer
	handlers   []LogHandler
}

// ContextOption customizes a new InstallContext.
type ContextOption func(*InstallContext)

// WithLogger sets the structured diagnostics logger.
func WithLogger(l txlog.Logger) ContextOption {
	return func(c *InstallContext) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithEventBus sets the bus that receives lifecycle events.
func WithEventBus(bus events.Bus) ContextOption {
	return func(c *InstallContext) {
		if bus != nil {
			c.bus = bus
		}
	}
}

// WithTracer sets the tracer used for lifecycle spans.
func WithTracer(t trace.Tracer) ContextOption {
	return func(c *InstallContext) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithConsole redirects the console echo of logged messages. A nil writer
// disables the echo entirely.
func WithConsole(w io.Writer) ContextOption {
	return func(c *InstallContext) {
		c.console = w
	}
}

// WithLogHandler adds a handler that receives every logged message.
func WithLogHandler(h LogHandler) ContextOption {
	return func(c *InstallContext) {
		if h != nil {
			c.handlers = append(c.handlers, h)
		}
	}
}

// NewInstallContext parses args into the parameter map. When logFilePath is
// not empty and args do not name a log file, logFilePath becomes the
// "logfile" parameter.
func NewInstallContext(logFilePath string, args []string, opts ...ContextOption) *InstallContext {
	params := ParseParameters(args)
	if _, ok := params[ParamLogFile]; !ok && logFilePath != "" {
		params[ParamLogFile] = logFilePath
	}
	c := &InstallContext{
		parameters: params,
		logger:     logger.NewDiscardLogger(),
		bus:        internalevents.NewNoOpEventBus(),
		tracer:     tracing.GetTracer(),
		console:    os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewDefaultContext returns a context without parameters or log file.
func NewDefaultContext(opts ...ContextOption) *InstallContext {
	return NewInstallContext("", nil, opts...)
}

// Derive creates a context with new parameters that shares this context's
// logger, event bus, tracer, console and log handlers.
func (c *InstallContext) Derive(logFilePath string, args []string) *InstallContext {
	c.mu.Lock()
	handlers := append([]LogHandler(nil), c.handlers...)
	c.mu.Unlock()
	return NewInstallContext(logFilePath, args,
		WithLogger(c.logger),
		WithEventBus(c.bus),
		WithTracer(c.tracer),
		WithConsole(c.console),
		func(n *InstallContext) { n.handlers = handlers },
	)
}

type installContextKey struct{}

// WithInstallContext returns a copy of ctx that carries ic. Components pass
// their install context to discoverers this way.
func WithInstallContext(ctx context.Context, ic *InstallContext) context.Context {
	return context.WithValue(ctx, installContextKey{}, ic)
}

// InstallContextFrom returns the install context carried by ctx, if any.
func InstallContextFrom(ctx context.Context) (*InstallContext, bool) {
	ic, ok := ctx.Value(installContextKey{}).(*InstallContext)
	return ic, ok && ic != nil
}

// Parameters returns the parameter map. Callers may read it freely.
func (c *InstallContext) Parameters() Parameters {
	return c.parameters
}

// Parameter returns the value of name, looked up case-insensitively.
func (c *InstallContext) Parameter(name string) (string, bool) {
	return c.parameters.Get(name)
}

// IsParameterTrue reports whether the named parameter is set to a true value.
func (c *InstallContext) IsParameterTrue(name string) bool {
	return c.parameters.IsTrue(name)
}

// Logger returns the structured diagnostics logger.
func (c *InstallContext) Logger() txlog.Logger { return c.logger }

// Events returns the lifecycle event bus.
func (c *InstallContext) Events() events.Bus { return c.bus }

// Tracer returns the tracer used for lifecycle spans.
func (c *InstallContext) Tracer() trace.Tracer { return c.tracer }

// LogFile returns the current install log path, or "" when file logging is off.
func (c *InstallContext) LogFile() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parameters[ParamLogFile]
}

// LogMessage appends message to the install log, echoes it to the console
// unless "logtoconsole" is present and not true, and passes it to every log
// handler. It never fails: when the log file cannot be written the message is
// retried once in the temp directory under the same base name, and file
// logging is turned off if that fails too.
func (c *InstallContext) LogMessage(message string) {
	c.mu.Lock()
	c.appendToLogFile(message)
	var console io.Writer
	if c.consoleEnabled() {
		console = c.console
	}
	handlers := append([]LogHandler(nil), c.handlers...)
	c.mu.Unlock()

	if console != nil {
		fmt.Fprintln(console, message)
	}
	for _, h := range handlers {
		h(message)
	}
	DefaultLogHandlers.dispatch(message)

	c.bus.Emit(events.Event{
		Type:      events.MessageLogged,
		Timestamp: time.Now(),
		Payload:   map[string]interface{}{"message": message},
	})
}

// consoleEnabled implements the echo rule: absent means echo, present means
// echo only when the value is true. It must be called with c.mu held.
func (c *InstallContext) consoleEnabled() bool {
	if _, ok := c.parameters[ParamLogToConsole]; !ok {
		return true
	}
	return c.parameters.IsTrue(ParamLogToConsole)
}

// appendToLogFile must be called with c.mu held.
func (c *InstallContext) appendToLogFile(message string) {
	path := c.parameters[ParamLogFile]
	if path == "" {
		return
	}
	err := appendLine(path, message)
	if err == nil {
		return
	}
	fallback := filepath.Join(os.TempDir(), filepath.Base(path))
	if fallbackErr := appendLine(fallback, message); fallbackErr != nil {
		c.logger.Warnf("Install log disabled: cannot write '%s' or '%s': %v", path, fallback, fallbackErr)
		c.parameters[ParamLogFile] = ""
		return
	}
	c.logger.Warnf("Install log '%s' is not writable (%v); logging to '%s' instead", path, err, fallback)
	c.parameters[ParamLogFile] = fallback
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(f, line+"\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
