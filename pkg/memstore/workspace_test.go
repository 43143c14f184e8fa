package memstore

import "testing"

func TestHashWorkspacePathIsReproducible(t *testing.T) {
	a := HashWorkspacePath("/tmp/proj")
	b := HashWorkspacePath("/tmp/proj")
	if a != b {
		t.Fatalf("expected stable hash, got %v != %v", a, b)
	}
}

func TestHashWorkspacePathDistinguishesPaths(t *testing.T) {
	a := HashWorkspacePath("/tmp/proj")
	b := HashWorkspacePath("/tmp/other")
	if a == b {
		t.Fatalf("expected distinct hashes for distinct paths, got %v", a)
	}
}

func TestHashWorkspacePathNeverEmpty(t *testing.T) {
	if HashWorkspacePath("/tmp/proj").IsEmpty() {
		t.Fatal("workspace hash of a non-empty path must not be empty")
	}
}

func TestScopeKeysIsolated(t *testing.T) {
	ks := KeyScheme{}
	keys := ScopeKeys(ks, Scope{Workspace: "abc", Mode: ModeIsolated}, KeyScheme.MemoriesAll)
	if len(keys) != 1 || keys[0] != "ws:abc:memories:all" {
		t.Fatalf("unexpected isolated scope keys: %v", keys)
	}
}

func TestScopeKeysGlobal(t *testing.T) {
	ks := KeyScheme{}
	keys := ScopeKeys(ks, Scope{Workspace: "abc", Mode: ModeGlobal}, KeyScheme.MemoriesAll)
	if len(keys) != 1 || keys[0] != "global:memories:all" {
		t.Fatalf("unexpected global scope keys: %v", keys)
	}
}

func TestScopeKeysHybridUnionsBoth(t *testing.T) {
	ks := KeyScheme{}
	keys := ScopeKeys(ks, Scope{Workspace: "abc", Mode: ModeHybrid}, KeyScheme.MemoriesAll)
	if len(keys) != 2 || keys[0] != "ws:abc:memories:all" || keys[1] != "global:memories:all" {
		t.Fatalf("unexpected hybrid scope keys: %v", keys)
	}
}
