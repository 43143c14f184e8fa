package memstore

import (
	"strconv"

	"github.com/cortexdb/cortex/pkg/kernel"
)

// HashWorkspacePath derives the stable workspace id for an absolute
// path: a deterministic 32-bit FNV-1a hash rendered base-36, reproducible
// across processes and languages (nothing Go-specific like maphash).
func HashWorkspacePath(path string) kernel.WorkspaceID {
	var h uint32 = 2166136261
	for i := 0; i < len(path); i++ {
		h ^= uint32(path[i])
		h *= 16777619
	}
	return kernel.NewWorkspaceID(strconv.FormatUint(uint64(h), 36))
}

// ScopeKeys derives which membership key(s) an operation should read given
// the process-wide mode (hybrid reads both the workspace and the global
// key). Mode is
// always taken as an explicit parameter from the caller — never memoized on
// an engine — so a toggle takes effect on the very next call.
func ScopeKeys(ks KeyScheme, scope Scope, keyFor func(KeyScheme, kernel.WorkspaceID) string) []string {
	switch scope.Mode {
	case ModeGlobal:
		return []string{keyFor(ks, "")}
	case ModeHybrid:
		return []string{keyFor(ks, scope.Workspace), keyFor(ks, "")}
	default: // ModeIsolated
		return []string{keyFor(ks, scope.Workspace)}
	}
}
