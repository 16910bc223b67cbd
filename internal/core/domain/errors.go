package domain

import "go.trai.ch/zerr"

var (
	// ErrTargetAlreadyExists is returned when attempting to add a target with a name that already exists.
	ErrTargetAlreadyExists = zerr.New("target already exists")

	// ErrUnknownTarget is returned when a target references another target that is not in the pipeline.
	ErrUnknownTarget = zerr.New("reference to unknown target")

	// ErrUnknownOutput is returned when a target references an output its producer does not declare.
	ErrUnknownOutput = zerr.New("reference to unknown output")

	// ErrCycleDetected is returned when a cycle is detected in the target graph.
	ErrCycleDetected = zerr.New("cycle detected")

	// ErrTargetNotFound is returned when a requested target is not found in the graph.
	ErrTargetNotFound = zerr.New("target not found")

	// ErrUnknownSubstitution is returned when a value references a variable that is not defined.
	ErrUnknownSubstitution = zerr.New("unknown substitution variable")

	// ErrUnknownBuildSystem is returned when a target declares an unsupported build system.
	ErrUnknownBuildSystem = zerr.New("unknown build system")

	// ErrInvalidPostAction is returned when a post-install action is malformed.
	ErrInvalidPostAction = zerr.New("invalid post-install action")

	// ErrInvalidTarget is returned when a target definition is incomplete.
	ErrInvalidTarget = zerr.New("invalid target definition")

	// ErrPipelineFailed is the top-level error joined with the cause of a failed run.
	ErrPipelineFailed = zerr.New("pipeline failed")

	// ErrSourceMissing is returned when a target's source directory is absent and cannot be fetched.
	ErrSourceMissing = zerr.New("source directory missing")

	// ErrFetchFailed is returned when a source archive cannot be downloaded or extracted.
	ErrFetchFailed = zerr.New("source fetch failed")

	// ErrPatchFailed is returned when a patch cannot be applied.
	ErrPatchFailed = zerr.New("patch failed")

	// ErrConfigureFailed is returned when a bootstrap or configure command exits non-zero.
	ErrConfigureFailed = zerr.New("configure failed")

	// ErrBuildFailed is returned when the build and install command exits non-zero.
	ErrBuildFailed = zerr.New("build failed")

	// ErrPostInstallFailed is returned when a post-install action fails.
	ErrPostInstallFailed = zerr.New("post-install action failed")

	// ErrStrayShared is returned when shared objects survive a remove action.
	ErrStrayShared = zerr.New("stray shared objects remain after removal")

	// ErrMissingOutput is returned when a declared output does not exist after a target finished.
	ErrMissingOutput = zerr.New("declared output missing")

	// ErrUnsupportedPackageManager is returned when no known host package manager is available.
	ErrUnsupportedPackageManager = zerr.New("unsupported package manager")

	// ErrProvisionFailed is returned when the host package manager exits non-zero.
	ErrProvisionFailed = zerr.New("provisioning failed")

	// ErrMissingTool is returned when a required build tool is not on PATH.
	ErrMissingTool = zerr.New("required tool missing")

	// ErrNotELF is returned when an inspected file is not an ELF object.
	ErrNotELF = zerr.New("not an ELF file")

	// ErrAuditFailed is returned by a strict audit that produced warnings.
	ErrAuditFailed = zerr.New("dependency audit failed")

	// ErrArtifactMissing is returned when a release artifact is not present in the staging prefix.
	ErrArtifactMissing = zerr.New("release artifact missing")

	// ErrArchiveFailed is returned when the release archive cannot be written.
	ErrArchiveFailed = zerr.New("archive failed")
)
