// Package driver runs pipeline targets in order against the staging prefix.
package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

// Step names recorded on commands and errors.
const (
	StepFetch     = "fetch"
	StepPatch     = "patch"
	StepBootstrap = "bootstrap"
	StepConfigure = "configure"
	StepBuild     = "build"
	StepPost      = "post"
	StepVerify    = "verify"
	StepRecord    = "record"
)

// Options controls a single run.
type Options struct {
	// Only restricts the run to the named targets. The staging prefix and
	// build records are kept when set.
	Only []string
}

// Driver builds targets sequentially and stops at the first failure.
type Driver struct {
	executor  ports.Executor
	hasher    ports.Hasher
	store     ports.BuildInfoStore
	verifier  ports.Verifier
	snapshots ports.Snapshotter
	post      ports.PostRunner
	fetcher   ports.Fetcher
	telemetry ports.Telemetry
	logger    ports.Logger
}

// New creates a new Driver.
func New(
	executor ports.Executor,
	hasher ports.Hasher,
	store ports.BuildInfoStore,
	verifier ports.Verifier,
	snapshots ports.Snapshotter,
	post ports.PostRunner,
	fetcher ports.Fetcher,
	telemetry ports.Telemetry,
	logger ports.Logger,
) *Driver {
	return &Driver{
		executor:  executor,
		hasher:    hasher,
		store:     store,
		verifier:  verifier,
		snapshots: snapshots,
		post:      post,
		fetcher:   fetcher,
		telemetry: telemetry,
		logger:    logger,
	}
}

// Run builds the selected targets in execution order. A full run empties
// the staging prefix and discards every build record first. Progress of
// the run replaces the journal in the state directory.
func (d *Driver) Run(ctx context.Context, p *domain.Pipeline, opts Options) error {
	targets, err := p.Graph.Select(opts.Only)
	if err != nil {
		return err
	}

	partial := len(opts.Only) > 0
	if err := d.prepareStaging(p.Staging, partial); err != nil {
		return err
	}

	if err := d.store.Open(p.Staging.StatePath()); err != nil {
		return err
	}
	if !partial {
		if err := d.store.Reset(); err != nil {
			return err
		}
	}

	if err := d.telemetry.Journal(p.Staging.JournalPath()); err != nil {
		return err
	}

	for i := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}

		t := &targets[i]
		name := t.Name.String()
		d.logger.Info(fmt.Sprintf("[%d/%d] building %s", i+1, len(targets), name))

		start := time.Now()
		if err := d.runTarget(ctx, p, t); err != nil {
			return err
		}
		d.logger.Info(fmt.Sprintf("built %s in %s", name, time.Since(start).Round(time.Millisecond)))
	}

	return nil
}

// prepareStaging creates the staging layout. Unless partial, everything in
// the prefix except the state directory is removed first.
func (d *Driver) prepareStaging(layout domain.Layout, partial bool) error {
	if !partial {
		entries, err := os.ReadDir(layout.Root)
		if err != nil && !os.IsNotExist(err) {
			return zerr.With(zerr.Wrap(err, "failed to read staging prefix"), "path", layout.Root)
		}
		for _, e := range entries {
			if e.Name() == domain.KilnDirName {
				continue
			}
			path := filepath.Join(layout.Root, e.Name())
			if err := os.RemoveAll(path); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to reset staging prefix"), "path", path)
			}
		}
	}

	for _, dir := range layout.Dirs() {
		if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to create staging directory"), "path", dir)
		}
	}
	return nil
}

func (d *Driver) runTarget(ctx context.Context, p *domain.Pipeline, t *domain.Target) (err error) {
	name := t.Name.String()
	ctx, vertex := d.telemetry.Record(ctx, name)
	defer func() { vertex.Complete(err) }()

	if err := d.ensureSource(ctx, p, t); err != nil {
		return err
	}

	rt, err := p.Resolve(t)
	if err != nil {
		return err
	}

	before, err := d.snapshots.Snapshot(p.Staging.Root)
	if err != nil {
		return err
	}

	if err := d.applyPatches(ctx, rt); err != nil {
		return err
	}

	for _, argv := range rt.Bootstrap {
		if err := d.exec(ctx, rt, StepBootstrap, argv); err != nil {
			return stepError(domain.ErrConfigureFailed, err, name, StepBootstrap)
		}
	}
	if len(rt.Configure) > 0 {
		if err := d.exec(ctx, rt, StepConfigure, rt.Configure); err != nil {
			return stepError(domain.ErrConfigureFailed, err, name, StepConfigure)
		}
	}
	for _, argv := range rt.Build {
		if err := d.exec(ctx, rt, StepBuild, argv); err != nil {
			return stepError(domain.ErrBuildFailed, err, name, StepBuild)
		}
	}

	if err := d.applyPost(rt, vertex); err != nil {
		return err
	}

	missing, err := d.verifier.VerifyOutputs(rt.OutputPaths())
	if err != nil {
		return zerr.With(err, "target", name)
	}
	if len(missing) > 0 {
		detail := zerr.With(zerr.New("declared outputs not found after install"), "missing", strings.Join(missing, " "))
		return stepError(domain.ErrMissingOutput, detail, name, StepVerify)
	}

	after, err := d.snapshots.Snapshot(p.Staging.Root)
	if err != nil {
		return err
	}

	return d.record(rt, p.Staging.Root, before.Changed(after))
}

func (d *Driver) ensureSource(ctx context.Context, p *domain.Pipeline, t *domain.Target) error {
	dir := p.SourceDir(t)
	if _, err := os.Stat(dir); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return zerr.With(zerr.Wrap(err, "failed to stat source directory"), "path", dir)
	}

	name := t.Name.String()
	if t.Source.URL == "" {
		detail := zerr.With(zerr.New("source directory does not exist and no source url is declared"), "path", dir)
		return stepError(domain.ErrSourceMissing, detail, name, StepFetch)
	}

	if err := d.fetcher.Fetch(ctx, t.Source, dir); err != nil {
		return stepError(domain.ErrSourceMissing, err, name, StepFetch)
	}
	return nil
}

// applyPatches applies each patch unless it is already applied.
func (d *Driver) applyPatches(ctx context.Context, rt *domain.ResolvedTarget) error {
	for _, patch := range rt.Patches {
		check := []string{"git", "apply", "--reverse", "--check", patch}
		if err := d.exec(ctx, rt, StepPatch, check); err == nil {
			d.logger.Debug(fmt.Sprintf("%s: patch %s already applied", rt.Name, filepath.Base(patch)))
			continue
		}

		if err := d.exec(ctx, rt, StepPatch, []string{"git", "apply", patch}); err != nil {
			return stepError(domain.ErrPatchFailed, zerr.With(err, "patch", patch), rt.Name, StepPatch)
		}
		d.logger.Info(fmt.Sprintf("%s: applied %s", rt.Name, filepath.Base(patch)))
	}
	return nil
}

func (d *Driver) applyPost(rt *domain.ResolvedTarget, vertex ports.Vertex) error {
	for _, action := range rt.Post {
		res, err := d.post.Apply(action)
		if err != nil {
			return stepError(domain.ErrPostInstallFailed, zerr.With(err, "action", string(action.Kind)), rt.Name, StepPost)
		}
		if action.Kind == domain.PostActionRemove && len(res.Matched) == 0 {
			msg := fmt.Sprintf("%s: cleanup matched nothing: %s", rt.Name, strings.Join(action.Globs, " "))
			d.logger.Warn(msg)
			vertex.Log(domain.LogLevelWarn, msg)
		}
	}
	return nil
}

// record stores the build record with the files the target installed.
func (d *Driver) record(rt *domain.ResolvedTarget, root string, installed []string) error {
	inputHash, err := d.hasher.ComputeInputHash(rt)
	if err != nil {
		return stepError(errRecord, err, rt.Name, StepRecord)
	}

	paths := make([]string, len(installed))
	for i, rel := range installed {
		paths[i] = filepath.Join(root, filepath.FromSlash(rel))
	}
	outputHash, err := d.hasher.ComputeOutputHash(paths)
	if err != nil {
		return stepError(errRecord, err, rt.Name, StepRecord)
	}

	info := domain.BuildInfo{
		Target:     rt.Name,
		InputHash:  inputHash,
		OutputHash: outputHash,
		Installed:  installed,
		Timestamp:  time.Now(),
	}
	if err := d.store.Put(info); err != nil {
		return stepError(errRecord, err, rt.Name, StepRecord)
	}
	return nil
}

var errRecord = zerr.New("failed to record build")

func (d *Driver) exec(ctx context.Context, rt *domain.ResolvedTarget, step string, argv []string) error {
	return d.executor.Execute(ctx, &domain.Command{
		Target:     rt.Name,
		Step:       step,
		Args:       argv,
		Dir:        rt.SourceDir,
		Env:        rt.Env,
		PathPrefix: rt.PathPrefix,
	})
}

// stepError joins sentinel with the cause annotated by target and step.
func stepError(sentinel, err error, target, step string) error {
	return errors.Join(sentinel, zerr.With(zerr.With(err, "target", target), "step", step))
}

// TargetState is a target's status relative to its build record.
type TargetState struct {
	Name   string
	Status domain.TargetStatus
	Built  time.Time
	// Missing lists recorded or declared files absent from the staging prefix.
	Missing []string
}

// Report compares every target against its build record without running anything.
func (d *Driver) Report(p *domain.Pipeline) ([]TargetState, error) {
	if err := d.store.Open(p.Staging.StatePath()); err != nil {
		return nil, err
	}

	var states []TargetState
	for t := range p.Graph.Walk() {
		state, err := d.state(p, &t)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}

func (d *Driver) state(p *domain.Pipeline, t *domain.Target) (TargetState, error) {
	name := t.Name.String()
	state := TargetState{Name: name, Status: domain.TargetStatusPending}

	info, err := d.store.Get(name)
	if err != nil {
		return state, err
	}
	if info == nil {
		return state, nil
	}
	state.Built = info.Timestamp

	rt, err := p.Resolve(t)
	if err != nil {
		return state, err
	}
	inputHash, err := d.hasher.ComputeInputHash(rt)
	if err != nil {
		return state, zerr.With(err, "target", name)
	}
	if inputHash != info.InputHash {
		state.Status = domain.TargetStatusStale
		return state, nil
	}

	installed := make([]string, len(info.Installed))
	for i, rel := range info.Installed {
		installed[i] = filepath.Join(p.Staging.Root, filepath.FromSlash(rel))
	}
	expected := append(slices.Clone(installed), rt.OutputPaths()...)
	slices.Sort(expected)
	missing, err := d.verifier.VerifyOutputs(slices.Compact(expected))
	if err != nil {
		return state, zerr.With(err, "target", name)
	}
	if len(missing) > 0 {
		state.Status = domain.TargetStatusBroken
		state.Missing = missing
		return state, nil
	}

	outputHash, err := d.hasher.ComputeOutputHash(installed)
	if err != nil {
		return state, zerr.With(err, "target", name)
	}
	if outputHash != info.OutputHash {
		state.Status = domain.TargetStatusBroken
		return state, nil
	}

	state.Status = domain.TargetStatusBuilt
	return state, nil
}
