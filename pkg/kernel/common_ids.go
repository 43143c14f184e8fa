package kernel

// WorkspaceID is the base-36 rendering of the 32-bit hash of a workspace's
// absolute path. Empty iff the entity it labels lives in the global scope.
type WorkspaceID string

func NewWorkspaceID(id string) WorkspaceID { return WorkspaceID(id) }
func (w WorkspaceID) String() string       { return string(w) }
func (w WorkspaceID) IsEmpty() bool        { return string(w) == "" }
