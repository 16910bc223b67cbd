// Package app implements the application layer for kiln.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/auditor"
	"go.trai.ch/kiln/internal/engine/driver"
	"go.trai.ch/kiln/internal/engine/packager"
	"go.trai.ch/zerr"
)

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	provisioner  ports.Provisioner
	executor     ports.Executor
	driver       *driver.Driver
	auditor      *auditor.Auditor
	packager     *packager.Packager
	telemetry    ports.Telemetry
	runLog       ports.RunLog
	logger       ports.Logger
	out          io.Writer
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	provisioner ports.Provisioner,
	executor ports.Executor,
	drv *driver.Driver,
	aud *auditor.Auditor,
	pkg *packager.Packager,
	telemetry ports.Telemetry,
	runLog ports.RunLog,
	logger ports.Logger,
) *App {
	return &App{
		configLoader: loader,
		provisioner:  provisioner,
		executor:     executor,
		driver:       drv,
		auditor:      aud,
		packager:     pkg,
		telemetry:    telemetry,
		runLog:       runLog,
		logger:       logger,
		out:          os.Stdout,
	}
}

// WithOutput sets the writer reports are printed to.
func (a *App) WithOutput(w io.Writer) *App {
	a.out = w
	return a
}

// SetLogLevel changes the logger's level if the logger supports it.
func (a *App) SetLogLevel(level domain.LogLevel) {
	if l, ok := a.logger.(interface{ SetLevel(domain.LogLevel) }); ok {
		l.SetLevel(level)
	}
}

// Close flushes the progress recording.
func (a *App) Close() error {
	if err := a.telemetry.Close(); err != nil {
		return zerr.Wrap(err, "failed to close telemetry")
	}
	return nil
}

// RunOptions controls a full pipeline run.
type RunOptions struct {
	// Only restricts the build to the named targets.
	Only []string
	// Provision installs host packages before building.
	Provision bool
	// SkipRelease stops after the last target is built.
	SkipRelease bool
	// Strict turns audit warnings into a failure.
	Strict bool
}

// Run builds the pipeline and, unless skipped, assembles, audits and
// archives the release. Any failure is joined with domain.ErrPipelineFailed.
func (a *App) Run(ctx context.Context, configPath string, opts RunOptions) (err error) {
	defer func() {
		if err != nil {
			err = errors.Join(domain.ErrPipelineFailed, err)
		}
	}()

	p, err := a.load(configPath)
	if err != nil {
		return err
	}

	if opts.Provision {
		if err := a.provisioner.Provision(ctx, p.Provision); err != nil {
			return err
		}
	}
	if err := a.provisioner.Verify(p.Provision.Tools); err != nil {
		return err
	}

	start := time.Now()
	if err := a.driver.Run(ctx, p, driver.Options{Only: opts.Only}); err != nil {
		return err
	}
	a.logger.Info(fmt.Sprintf("finished building in %s", time.Since(start).Round(time.Second)))

	if opts.SkipRelease {
		return nil
	}
	return a.release(ctx, p, opts.Strict)
}

// Provision installs the host packages and checks the required tools.
func (a *App) Provision(ctx context.Context, configPath string) error {
	p, err := a.load(configPath)
	if err != nil {
		return err
	}
	if err := a.provisioner.Provision(ctx, p.Provision); err != nil {
		return err
	}
	return a.provisioner.Verify(p.Provision.Tools)
}

// Package assembles, audits and archives the release from the current
// staging prefix without building anything.
func (a *App) Package(ctx context.Context, configPath string, strict bool) error {
	p, err := a.load(configPath)
	if err != nil {
		return err
	}
	return a.release(ctx, p, strict)
}

func (a *App) release(ctx context.Context, p *domain.Pipeline, strict bool) error {
	set, err := a.packager.Assemble(ctx, p)
	if err != nil {
		return err
	}

	report, err := a.auditor.Audit(ctx, set.Root, p.Audit)
	if err != nil {
		return err
	}
	if strict && report.HasWarnings() {
		return auditError(report)
	}

	_, err = a.packager.Archive(ctx, p, set)
	return err
}

// AuditOptions controls the audit command.
type AuditOptions struct {
	// Strict turns warnings into a failure.
	Strict bool
	// JSON prints the report as JSON.
	JSON bool
}

// Audit prints the dependency report of dir, or of the release directory
// when dir is empty.
func (a *App) Audit(ctx context.Context, configPath, dir string, opts AuditOptions) error {
	p, err := a.load(configPath)
	if err != nil {
		return err
	}
	if dir == "" {
		dir = p.Release.Dir
	}

	report, err := a.auditor.Audit(ctx, dir, p.Audit)
	if err != nil {
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return zerr.Wrap(err, "failed to encode report")
		}
	} else {
		printReport(a.out, report)
	}

	if opts.Strict && report.HasWarnings() {
		return auditError(report)
	}
	return nil
}

func auditError(report *domain.DependencyReport) error {
	return errors.Join(domain.ErrAuditFailed,
		zerr.With(zerr.New("audit produced warnings"), "warnings", len(report.Warnings)))
}

func printReport(w io.Writer, report *domain.DependencyReport) {
	_, _ = fmt.Fprintf(w, "external dependencies (%d):\n", len(report.External))
	for _, name := range report.External {
		_, _ = fmt.Fprintf(w, "  %s\n", name)
	}
	_, _ = fmt.Fprintf(w, "self-satisfied (%d):\n", len(report.SelfSatisfied))
	for _, name := range report.SelfSatisfied {
		_, _ = fmt.Fprintf(w, "  %s\n", name)
	}
	for _, warning := range report.Warnings {
		_, _ = fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

// Status prints every target's state relative to its last recorded build,
// next to its outcome in the journal of the last run.
func (a *App) Status(_ context.Context, configPath string) error {
	p, err := a.load(configPath)
	if err != nil {
		return err
	}

	states, err := a.driver.Report(p)
	if err != nil {
		return err
	}

	runs, err := a.runLog.LastRun(p.Staging.JournalPath())
	if err != nil {
		return err
	}
	lastRun := make(map[string]domain.RunEntry, len(runs))
	for _, r := range runs {
		lastRun[r.Name] = r
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TARGET\tSTATUS\tBUILT\tLAST RUN")
	for _, s := range states {
		built := "-"
		if !s.Built.IsZero() {
			built = s.Built.Local().Format(time.DateTime)
		}
		status := string(s.Status)
		if len(s.Missing) > 0 {
			status = fmt.Sprintf("%s (%d missing)", status, len(s.Missing))
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, status, built, describeRun(lastRun, s.Name))
	}
	if err := tw.Flush(); err != nil {
		return zerr.Wrap(err, "failed to write status")
	}
	return nil
}

func describeRun(runs map[string]domain.RunEntry, name string) string {
	r, ok := runs[name]
	switch {
	case !ok:
		return "-"
	case r.Failed() && r.LastLine != "":
		return "failed: " + r.LastLine
	case r.Failed():
		return "failed"
	case !r.Completed:
		return "interrupted"
	default:
		return fmt.Sprintf("ok in %s", r.Duration.Round(time.Millisecond))
	}
}

// Clean removes the staging prefix, the release directory and the archive.
// With sources, untracked files are also removed from every source checkout.
func (a *App) Clean(ctx context.Context, configPath string, sources bool) error {
	p, err := a.load(configPath)
	if err != nil {
		return err
	}

	archive := filepath.Join(p.Root, domain.HostPlatform().ArchiveName(p.Release.Name))
	for _, path := range []string{p.Staging.Root, p.Release.Dir, archive} {
		if err := os.RemoveAll(path); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to remove"), "path", path)
		}
		a.logger.Debug("removed " + path)
	}

	if !sources {
		return nil
	}
	for t := range p.Graph.Walk() {
		dir := p.SourceDir(&t)
		if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
			a.logger.Debug("skipping " + dir + ": not a git checkout")
			continue
		}
		err := a.executor.Execute(ctx, &domain.Command{
			Target: t.Name.String(),
			Step:   "clean",
			Args:   []string{"git", "clean", "-ffdx"},
			Dir:    dir,
		})
		if err != nil {
			return zerr.With(err, "target", t.Name.String())
		}
	}
	return nil
}

func (a *App) load(configPath string) (*domain.Pipeline, error) {
	p, err := a.configLoader.Load(configPath)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	return p, nil
}
