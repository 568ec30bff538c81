package auth

// Action identifiers enforced by the Casbin policy set. Handlers and
// services refer to these constants, never to raw strings.
const (
	ActionProjectRead   = "project:read"
	ActionProjectWrite  = "project:write"
	ActionProjectDelete = "project:delete"
	ActionProjectRename = "project:rename"

	ActionLockAcquire = "lock:acquire"
	ActionLockRenew   = "lock:renew"
	ActionLockRelease = "lock:release"

	ActionAccessList   = "access:list"
	ActionAccessGrant  = "access:grant"
	ActionAccessRevoke = "access:revoke"

	ActionQueryRead   = "query:read"
	ActionQueryRun    = "query:run"
	ActionQueryCreate = "query:create"
	ActionQueryUpdate = "query:update"
	ActionQueryDelete = "query:delete"
)

// Casbin subjects corresponding to effective rights levels. Levels
// form a chain: owner inherits write inherits read.
const (
	SubjectRead  = "level:read"
	SubjectWrite = "level:write"
	SubjectOwner = "level:owner"
)
