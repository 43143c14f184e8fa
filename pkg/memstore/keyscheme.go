package memstore

import (
	"fmt"

	"github.com/cortexdb/cortex/pkg/kernel"
)

// KeyScheme is a pure function set producing the canonical backend key
// for every index. It holds no state; every method derives its keys
// purely from the scope and ids passed in, mirroring a workspace scope
// either as `ws:{w}:...` or, for the global namespace, the bare `global:...`
// form with no workspace segment.
type KeyScheme struct{}

func prefix(ws kernel.WorkspaceID) string {
	if ws.IsEmpty() {
		return "global"
	}
	return fmt.Sprintf("ws:%s", ws.String())
}

func (KeyScheme) Memory(ws kernel.WorkspaceID, id string) string {
	return fmt.Sprintf("%s:memory:%s", prefix(ws), id)
}

func (KeyScheme) MemoriesAll(ws kernel.WorkspaceID) string {
	return fmt.Sprintf("%s:memories:all", prefix(ws))
}

func (KeyScheme) MemoriesByType(ws kernel.WorkspaceID, t ContextType) string {
	return fmt.Sprintf("%s:memories:type:%s", prefix(ws), t)
}

func (KeyScheme) MemoriesByTag(ws kernel.WorkspaceID, tag string) string {
	return fmt.Sprintf("%s:memories:tag:%s", prefix(ws), tag)
}

func (KeyScheme) MemoriesTimeline(ws kernel.WorkspaceID) string {
	return fmt.Sprintf("%s:memories:timeline", prefix(ws))
}

func (KeyScheme) MemoriesImportant(ws kernel.WorkspaceID) string {
	return fmt.Sprintf("%s:memories:important", prefix(ws))
}

func (KeyScheme) Session(ws kernel.WorkspaceID, sessionID string) string {
	return fmt.Sprintf("%s:session:%s", prefix(ws), sessionID)
}

func (KeyScheme) SessionsAll(ws kernel.WorkspaceID) string {
	return fmt.Sprintf("%s:sessions:all", prefix(ws))
}

func (KeyScheme) Relationship(ws kernel.WorkspaceID, id string) string {
	return fmt.Sprintf("%s:relationship:%s", prefix(ws), id)
}

func (KeyScheme) RelationshipsAll(ws kernel.WorkspaceID) string {
	return fmt.Sprintf("%s:relationships", prefix(ws))
}

func (KeyScheme) MemoryRelationshipsOut(ws kernel.WorkspaceID, memoryID string) string {
	return fmt.Sprintf("%s:memory:%s:relationships/out", prefix(ws), memoryID)
}

func (KeyScheme) MemoryRelationshipsIn(ws kernel.WorkspaceID, memoryID string) string {
	return fmt.Sprintf("%s:memory:%s:relationships/in", prefix(ws), memoryID)
}

func (KeyScheme) Version(ws kernel.WorkspaceID, memoryID, versionID string) string {
	return fmt.Sprintf("%s:memory_version:%s:%s", prefix(ws), memoryID, versionID)
}

func (KeyScheme) Versions(ws kernel.WorkspaceID, memoryID string) string {
	return fmt.Sprintf("%s:memory_version:versions:%s", prefix(ws), memoryID)
}

func (KeyScheme) Template(ws kernel.WorkspaceID, templateID string) string {
	return fmt.Sprintf("%s:template:%s", prefix(ws), templateID)
}

func (KeyScheme) TemplatesAll(ws kernel.WorkspaceID) string {
	return fmt.Sprintf("%s:templates:all", prefix(ws))
}

func (KeyScheme) Category(ws kernel.WorkspaceID, category string) string {
	return fmt.Sprintf("%s:category:%s", prefix(ws), category)
}

func (KeyScheme) CategoryOf(ws kernel.WorkspaceID, memoryID string) string {
	return fmt.Sprintf("%s:memory:%s:category", prefix(ws), memoryID)
}

func (KeyScheme) Categories(ws kernel.WorkspaceID) string {
	return fmt.Sprintf("%s:categories", prefix(ws))
}

func (KeyScheme) RLMChain(ws kernel.WorkspaceID, chainID string) string {
	return fmt.Sprintf("%s:rlm:chain:%s", prefix(ws), chainID)
}

func (KeyScheme) RLMContext(ws kernel.WorkspaceID, chainID string) string {
	return fmt.Sprintf("%s:rlm:context:%s", prefix(ws), chainID)
}

func (KeyScheme) RLMSubtasks(ws kernel.WorkspaceID, chainID string) string {
	return fmt.Sprintf("%s:rlm:subtasks:%s", prefix(ws), chainID)
}

func (KeyScheme) RLMSubtask(ws kernel.WorkspaceID, chainID, subtaskID string) string {
	return fmt.Sprintf("%s:rlm:subtask:%s:%s", prefix(ws), chainID, subtaskID)
}

func (KeyScheme) RLMResults(ws kernel.WorkspaceID, chainID string) string {
	return fmt.Sprintf("%s:rlm:results:%s", prefix(ws), chainID)
}

func (KeyScheme) RLMExecutions(ws kernel.WorkspaceID) string {
	return fmt.Sprintf("%s:rlm:executions", prefix(ws))
}

func (KeyScheme) RLMExecutionsActive(ws kernel.WorkspaceID) string {
	return fmt.Sprintf("%s:rlm:executions:active", prefix(ws))
}
