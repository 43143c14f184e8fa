package memstore

import "testing"

func TestKeySchemeWorkspaceForms(t *testing.T) {
	ks := KeyScheme{}
	ws := HashWorkspacePath("/tmp/proj")

	if got, want := ks.Memory(ws, "m1"), "ws:"+ws.String()+":memory:m1"; got != want {
		t.Fatalf("Memory: got %q want %q", got, want)
	}
	if got, want := ks.MemoriesByType(ws, ContextDirective), "ws:"+ws.String()+":memories:type:directive"; got != want {
		t.Fatalf("MemoriesByType: got %q want %q", got, want)
	}
	if got, want := ks.MemoriesByTag(ws, "id"), "ws:"+ws.String()+":memories:tag:id"; got != want {
		t.Fatalf("MemoriesByTag: got %q want %q", got, want)
	}
}

func TestKeySchemeGlobalFormsOmitWorkspaceSegment(t *testing.T) {
	ks := KeyScheme{}
	var global = KeyScheme{}.Memory("", "m1")
	if global != "global:memory:m1" {
		t.Fatalf("expected global mirror form, got %q", global)
	}
	if ks.MemoriesAll("") != "global:memories:all" {
		t.Fatalf("expected global:memories:all, got %q", ks.MemoriesAll(""))
	}
}

func TestKeySchemeRLMChainKeys(t *testing.T) {
	ks := KeyScheme{}
	ws := HashWorkspacePath("/tmp/proj")
	if got, want := ks.RLMChain(ws, "c1"), "ws:"+ws.String()+":rlm:chain:c1"; got != want {
		t.Fatalf("RLMChain: got %q want %q", got, want)
	}
	if got, want := ks.RLMExecutionsActive(ws), "ws:"+ws.String()+":rlm:executions:active"; got != want {
		t.Fatalf("RLMExecutionsActive: got %q want %q", got, want)
	}
}
