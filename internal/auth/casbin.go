package auth

import (
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

//go:embed model.conf
var casbinModelContent string

// policies maps rights levels to the actions they permit. Grants are
// stored in the accesses table, not in Casbin; the enforcer only
// answers "may someone at this level perform this action".
var policies = [][]string{
	{SubjectRead, ActionProjectRead},
	{SubjectRead, ActionQueryRead},
	{SubjectRead, ActionQueryRun},
	{SubjectRead, ActionAccessList},

	{SubjectWrite, ActionProjectWrite},
	{SubjectWrite, ActionLockAcquire},
	{SubjectWrite, ActionLockRenew},
	{SubjectWrite, ActionLockRelease},
	{SubjectWrite, ActionQueryCreate},
	{SubjectWrite, ActionQueryUpdate},
	{SubjectWrite, ActionQueryDelete},

	{SubjectOwner, ActionProjectDelete},
	{SubjectOwner, ActionProjectRename},
	{SubjectOwner, ActionAccessGrant},
	{SubjectOwner, ActionAccessRevoke},
}

// groupings chain the levels so owner inherits write, write inherits read.
var groupings = [][]string{
	{SubjectWrite, SubjectRead},
	{SubjectOwner, SubjectWrite},
}

// InitEnforcer creates a Casbin enforcer with the embedded RBAC model and
// the static level-to-action policy set loaded in memory.
func InitEnforcer() (casbin.IEnforcer, error) {
	m, err := model.NewModelFromString(casbinModelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	if _, err := enforcer.AddPolicies(policies); err != nil {
		return nil, fmt.Errorf("load casbin policies: %w", err)
	}
	if _, err := enforcer.AddGroupingPolicies(groupings); err != nil {
		return nil, fmt.Errorf("load casbin groupings: %w", err)
	}

	return enforcer, nil
}
