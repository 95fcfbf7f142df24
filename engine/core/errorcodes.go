package core

// Error codes produced by the resolution/reconciliation engine. Callers
// match on these via errors.As to a *Error and switch on Code, the same
// pattern autoload.go uses for its own category codes.
const (
	ErrManifestParse    = "MANIFEST_PARSE"
	ErrManifestConflict = "MANIFEST_CONFLICT"
	ErrWorkflowParse    = "WORKFLOW_PARSE"
	ErrWorkflowMissing  = "WORKFLOW_MISSING"
	ErrModelIndexCorrupt = "MODEL_INDEX_CORRUPT"
	ErrCacheCorrupt     = "CACHE_CORRUPT"
	ErrUnsafeArchivePath = "UNSAFE_ARCHIVE_PATH"
	ErrNotFound         = "NOT_FOUND"
	ErrBackendMissing   = "BACKEND_MISSING"
	ErrBackendInvalid   = "BACKEND_INVALID"
	ErrSubprocessFailure = "SUBPROCESS_FAILURE"
	ErrWorkflowPatch    = "WORKFLOW_PATCH"
)
