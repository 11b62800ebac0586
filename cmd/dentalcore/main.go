// Command dentalcore manages clinic patients, treatments and month reports
// from the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"dentalcore/internal/blob"
	"dentalcore/internal/config"
	"dentalcore/internal/core"
	"dentalcore/internal/logging"
	"dentalcore/internal/report"
	"dentalcore/pkg/domain"
)

var exitFunc = os.Exit

// errUsage marks malformed invocations; cli exits with status 2 for them.
var errUsage = errors.New("usage")

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("dentalcore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	envFile := fs.String("env-file", "", "load settings from this .env file instead of ./.env")
	fs.Usage = func() { printUsage(stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	name, rest, cmd := lookup(fs.Args())
	if cmd == nil {
		printUsage(stderr)
		return 2
	}

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "configuration: %v\n", err)
		return 1
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, stdout, stderr, name == "report export")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "startup: %v\n", err)
		return 1
	}
	err = cmd(ctx, a, rest)
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return 2
	default:
		_, _ = fmt.Fprintf(stderr, "%s: %s\n", name, describe(err))
		return 1
	}
}

// app holds the wired service and the sinks that need flushing on exit.
type app struct {
	cfg     config.Config
	svc     *core.Service
	stdout  io.Writer
	stderr  io.Writer
	logger  *slog.Logger
	reg     *prometheus.Registry
	closers []io.Closer
}

// newApp wires the service. The blob store is opened only when export is set,
// so other commands never touch report storage.
func newApp(ctx context.Context, cfg config.Config, stdout, stderr io.Writer, export bool) (*app, error) {
	a := &app{cfg: cfg, stdout: stdout, stderr: stderr}
	a.logger = logging.Setup(stderr, cfg.Log)

	opts := []core.Option{
		core.WithLogger(a.logger),
		core.WithAuditRecorder(core.LogAuditRecorder{Logger: a.logger}),
	}
	switch cfg.Metrics.Exporter {
	case "expvar":
		opts = append(opts, core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("")))
	case "prometheus":
		a.reg = prometheus.NewRegistry()
		rec, err := core.NewPrometheusMetricsRecorder(a.reg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, core.WithMetricsRecorder(rec))
	}
	if cfg.TraceFile != "" {
		f, err := os.OpenFile(cfg.TraceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		a.closers = append(a.closers, f)
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
	}

	store, err := core.OpenPersistentStore(cfg.Storage, nil)
	if err != nil {
		a.closeFiles()
		return nil, err
	}
	if export {
		blobs, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			_ = store.Close()
			a.closeFiles()
			return nil, err
		}
		opts = append(opts, core.WithReportExporter(report.NewExporter(store, blobs)))
	}
	a.svc = core.NewService(store, opts...)
	return a, nil
}

func (a *app) close() error {
	err := a.svc.Close()
	if a.reg != nil && a.cfg.Metrics.File != "" {
		if werr := core.WriteMetricsFile(a.cfg.Metrics.File, a.reg); werr != nil && err == nil {
			err = werr
		}
	}
	a.closeFiles()
	return err
}

func (a *app) closeFiles() {
	for _, c := range a.closers {
		_ = c.Close()
	}
}

// describe turns service errors into operator-facing text.
func describe(err error) string {
	switch {
	case errors.Is(err, domain.ErrDuplicateKey):
		return "a patient with that phone number already exists"
	case errors.Is(err, domain.ErrForeignKeyViolation):
		return "the patient does not exist"
	case errors.Is(err, errLoginRejected):
		return "invalid username or password"
	}
	return err.Error()
}

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"catalog":           runCatalog,
	"login":             runLogin,
	"user add":          runUserAdd,
	"patient register":  runPatientRegister,
	"patient list":      runPatientList,
	"patient search":    runPatientSearch,
	"patient show":      runPatientShow,
	"patient update":    runPatientUpdate,
	"patient delete":    runPatientDelete,
	"patient deleted":   runPatientDeleted,
	"treatment record":  runTreatmentRecord,
	"treatment history": runTreatmentHistory,
	"report months":     runReportMonths,
	"report counts":     runReportCounts,
	"report revenue":    runReportRevenue,
	"report export":     runReportExport,
}

// lookup resolves one- and two-word command names.
func lookup(args []string) (string, []string, command) {
	if len(args) >= 2 {
		name := args[0] + " " + args[1]
		if cmd, ok := commands[name]; ok {
			return name, args[2:], cmd
		}
	}
	if len(args) >= 1 {
		if cmd, ok := commands[args[0]]; ok {
			return args[0], args[1:], cmd
		}
	}
	return "", nil, nil
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	_, _ = fmt.Fprintf(w, "usage: dentalcore [-env-file path] <command> [flags]\n\ncommands:\n  %s\n", strings.Join(names, "\n  "))
	_, _ = fmt.Fprintln(w, "\nlogin only checks a username and password and reports the result in its exit\nstatus. It does not unlock the other commands; access to them is governed by\naccess to the database configured in the environment.")
}
