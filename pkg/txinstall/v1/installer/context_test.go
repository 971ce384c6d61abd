package installer_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/events"
	"github.com/gxo-labs/txinstall/pkg/txinstall/v1/installer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParameters(t *testing.T) {
	params := installer.ParseParameters([]string{
		"-InstallStateDir=/var/state",
		"--LogFile=install.log",
		"/ShowCallStack",
		"plain=value",
		"-conn=a=b",
		"-empty=",
		"-",
	})

	assert.Equal(t, installer.Parameters{
		"installstatedir": "/var/state",
		"logfile":         "install.log",
		"showcallstack":   "",
		"plain":           "value",
		"conn":            "a=b",
		"empty":           "",
	}, params)
}

func TestParameters_IsTrue(t *testing.T) {
	params := installer.ParseParameters([]string{
		"-a=true", "-b=YES", "-c=1", "-d", "-e=false", "-f=0", "-g=no", "-h=maybe",
	})

	testCases := []struct {
		name string
		want bool
	}{
		{"a", true}, {"B", true}, {"c", true}, {"d", true},
		{"e", false}, {"f", false}, {"g", false}, {"h", false},
		{"missing", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, params.IsTrue(tc.name))
		})
	}
}

func TestNewInstallContext_LogFileDefault(t *testing.T) {
	ic := installer.NewInstallContext("default.log", nil)
	assert.Equal(t, "default.log", ic.LogFile())

	ic = installer.NewInstallContext("default.log", []string{"-logfile=explicit.log"})
	assert.Equal(t, "explicit.log", ic.LogFile())

	ic = installer.NewInstallContext("", nil)
	_, ok := ic.Parameter("logfile")
	assert.False(t, ok)
}

func TestLogMessage_WritesFileAndConsole(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "install.log")
	var console bytes.Buffer
	ic := installer.NewInstallContext(logPath, nil, installer.WithConsole(&console))

	ic.LogMessage("first")
	ic.LogMessage("second")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
	assert.Equal(t, "first\nsecond\n", console.String())
}

func TestLogMessage_ConsoleRule(t *testing.T) {
	testCases := []struct {
		name     string
		args     []string
		wantEcho bool
	}{
		{name: "Absent", args: nil, wantEcho: true},
		{name: "Explicit true", args: []string{"-logtoconsole=true"}, wantEcho: true},
		{name: "Bare flag", args: []string{"-LogToConsole"}, wantEcho: true},
		{name: "Explicit false", args: []string{"-logtoconsole=false"}, wantEcho: false},
		{name: "Unrecognized value", args: []string{"-logtoconsole=sometimes"}, wantEcho: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ic, console := quietContext(tc.args...)
			ic.LogMessage("hello")
			if tc.wantEcho {
				assert.Equal(t, "hello\n", console.String())
			} else {
				assert.Empty(t, console.String())
			}
		})
	}
}

func TestLogMessage_FallsBackToTempDir(t *testing.T) {
	name := "txinstall-fallback-" + strings.ReplaceAll(t.Name(), "/", "_") + ".log"
	fallback := filepath.Join(os.TempDir(), name)
	_ = os.Remove(fallback)
	t.Cleanup(func() { _ = os.Remove(fallback) })

	unwritable := filepath.Join(t.TempDir(), "does", "not", "exist", name)
	ic, _ := quietContext("-logfile=" + unwritable)

	ic.LogMessage("rescued")

	assert.Equal(t, fallback, ic.LogFile())
	data, err := os.ReadFile(fallback)
	require.NoError(t, err)
	assert.Equal(t, "rescued\n", string(data))
}

func TestLogMessage_DisablesFileLoggingWhenFallbackFails(t *testing.T) {
	name := "txinstall-blocked-" + strings.ReplaceAll(t.Name(), "/", "_")
	blocker := filepath.Join(os.TempDir(), name)
	require.NoError(t, os.MkdirAll(blocker, 0o755))
	t.Cleanup(func() { _ = os.RemoveAll(blocker) })

	unwritable := filepath.Join(t.TempDir(), "missing", name)
	ic, console := quietContext("-logfile=" + unwritable)

	assert.NotPanics(t, func() { ic.LogMessage("lost") })
	assert.Empty(t, ic.LogFile())
	assert.Equal(t, "lost\n", console.String(), "console echo still happens")

	assert.NotPanics(t, func() { ic.LogMessage("after") })
}

func TestLogMessage_Handlers(t *testing.T) {
	var local, global []string
	ic := installer.NewInstallContext("", []string{"-logtoconsole=false"},
		installer.WithLogHandler(func(m string) { local = append(local, m) }))

	unsubscribe := installer.DefaultLogHandlers.Subscribe(func(m string) { global = append(global, m) })
	ic.LogMessage("one")
	unsubscribe()
	unsubscribe()
	ic.LogMessage("two")

	assert.Equal(t, []string{"one", "two"}, local)
	assert.Equal(t, []string{"one"}, global)
}

func TestLogMessage_EmitsEvent(t *testing.T) {
	bus := &recordingBus{}
	ic := installer.NewInstallContext("", []string{"-logtoconsole=false"}, installer.WithEventBus(bus))

	before := time.Now()
	ic.LogMessage("observed")

	logged := bus.ofType(events.MessageLogged)
	require.Len(t, logged, 1)
	assert.Equal(t, "observed", logged[0].Payload["message"])
	assert.False(t, logged[0].Timestamp.Before(before))
}

func TestInstallContext_Derive(t *testing.T) {
	var seen []string
	bus := &recordingBus{}
	parent := installer.NewInstallContext("", []string{"-a=1"},
		installer.WithEventBus(bus),
		installer.WithConsole(nil),
		installer.WithLogHandler(func(m string) { seen = append(seen, m) }))

	childLog := filepath.Join(t.TempDir(), "child.log")
	child := parent.Derive(childLog, []string{"-b=2"})

	_, hasA := child.Parameter("a")
	assert.False(t, hasA)
	assert.False(t, child.IsParameterTrue("b"))
	v, _ := child.Parameter("B")
	assert.Equal(t, "2", v)
	assert.Equal(t, childLog, child.LogFile())
	assert.Same(t, parent.Events(), child.Events())

	child.LogMessage("from child")
	assert.Equal(t, []string{"from child"}, seen)
	data, err := os.ReadFile(childLog)
	require.NoError(t, err)
	assert.Equal(t, "from child\n", string(data))
}

func TestInstallContext_CarriedByContext(t *testing.T) {
	ic := installer.NewDefaultContext(installer.WithConsole(nil))

	_, ok := installer.InstallContextFrom(context.Background())
	assert.False(t, ok)

	got, ok := installer.InstallContextFrom(installer.WithInstallContext(context.Background(), ic))
	require.True(t, ok)
	assert.Same(t, ic, got)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) lines() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Count(b.buf.String(), "\n")
}

func TestLogMessage_ConcurrentWithFallback(t *testing.T) {
	name := "txinstall-concurrent-" + strings.ReplaceAll(t.Name(), "/", "_") + ".log"
	fallback := filepath.Join(os.TempDir(), name)
	_ = os.Remove(fallback)
	t.Cleanup(func() { _ = os.Remove(fallback) })

	console := &lockedBuffer{}
	unwritable := filepath.Join(t.TempDir(), "missing", name)
	ic := installer.NewInstallContext(unwritable, nil, installer.WithConsole(console))

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				ic.LogMessage("line")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, writers*perWriter, console.lines())
	assert.Equal(t, fallback, ic.LogFile())
	data, err := os.ReadFile(fallback)
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, strings.Count(string(data), "\n"))
}
