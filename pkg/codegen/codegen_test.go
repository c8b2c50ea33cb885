package codegen_test

import (
	"strings"
	"testing"

	"github.com/wireflow-dev/wireflow/pkg/codegen"
	"github.com/wireflow-dev/wireflow/pkg/script"
	"github.com/wireflow-dev/wireflow/pkg/workflow"
)

func generate(t *testing.T, fn func(b *workflow.Builder)) string {
	t.Helper()
	b := workflow.NewBuilder()
	fn(b)
	b.SetMeta("wf-1", "demo")
	src, err := codegen.Generate(b.Build(), nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return src
}

// ─── Rendering ────────────────────────────────────────────────────────────────

func TestGenerate_SimpleChain(t *testing.T) {
	src := generate(t, func(b *workflow.Builder) {
		b.AddNode(&workflow.Node{Name: "Start", Type: "n8n-nodes-base.manualTrigger"})
		b.AddNode(&workflow.Node{Name: "HTTP Request", Type: "n8n-nodes-base.httpRequest", TypeVersion: 4.2})
		b.AddNode(&workflow.Node{Name: "Save", Type: "n8n-nodes-base.postgres"})
		b.Connect("Start", 0, "HTTP Request", 0)
		b.Connect("HTTP Request", 0, "Save", 0)
	})

	for _, want := range []string{
		"const start = trigger({",
		"const httpRequest = node({",
		"version: 4.2,",
		"chain(start, httpRequest, save);",
		"export default workflow('wf-1', 'demo');",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("output missing %q:\n%s", want, src)
		}
	}
}

func TestGenerate_IfElseWithEmptyBranch(t *testing.T) {
	src := generate(t, func(b *workflow.Builder) {
		b.AddNode(&workflow.Node{Name: "Check", Type: "n8n-nodes-base.if"})
		b.AddNode(&workflow.Node{Name: "Yes", Type: "t"})
		b.Connect("Check", 0, "Yes", 0)
	})
	if !strings.Contains(src, "ifElse(check, yes, null);") {
		t.Errorf("output missing ifElse statement:\n%s", src)
	}
}

func TestGenerate_MergeWiring(t *testing.T) {
	src := generate(t, func(b *workflow.Builder) {
		b.AddNode(&workflow.Node{Name: "Start", Type: "n8n-nodes-base.manualTrigger"})
		b.AddNode(&workflow.Node{Name: "A", Type: "t"})
		b.AddNode(&workflow.Node{Name: "B", Type: "t"})
		b.AddNode(&workflow.Node{Name: "M", Type: "n8n-nodes-base.merge"})
		b.AddNode(&workflow.Node{Name: "End", Type: "t"})
		b.Connect("Start", 0, "A", 0)
		b.Connect("Start", 0, "B", 0)
		b.Connect("A", 0, "M", 0)
		b.Connect("B", 0, "M", 1)
		b.Connect("M", 0, "End", 0)
	})

	for _, want := range []string{
		"const m = merge({",
		"connect(a, 0, m, 0);",
		"connect(b, 0, m, 1);",
		"chain(m, end);",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("output missing %q:\n%s", want, src)
		}
	}
}

func TestGenerate_ReservedNamesAvoided(t *testing.T) {
	src := generate(t, func(b *workflow.Builder) {
		b.AddNode(&workflow.Node{Name: "Merge", Type: "n8n-nodes-base.merge"})
		b.AddNode(&workflow.Node{Name: "Chain", Type: "t"})
		b.Connect("Chain", 0, "Merge", 0)
	})
	if strings.Contains(src, "const merge =") || strings.Contains(src, "const chain =") {
		t.Errorf("reserved builder names leaked as identifiers:\n%s", src)
	}
	if !strings.Contains(src, "const myMerge = merge({") {
		t.Errorf("expected myMerge identifier:\n%s", src)
	}
}

func TestGenerate_SubnodeAttachments(t *testing.T) {
	src := generate(t, func(b *workflow.Builder) {
		b.AddNode(&workflow.Node{Name: "Start", Type: "n8n-nodes-base.manualTrigger"})
		b.AddNode(&workflow.Node{Name: "Agent", Type: "@n8n/n8n-nodes-langchain.agent"})
		b.AddNode(&workflow.Node{Name: "Model", Type: "@n8n/n8n-nodes-langchain.lmChatOpenAi"})
		b.Connect("Start", 0, "Agent", 0)
		b.AttachSubnode("Agent", "Model", "ai_languageModel")
	})
	for _, want := range []string{
		"const model = languageModel({",
		"attach(agent, model, 'ai_languageModel');",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("output missing %q:\n%s", want, src)
		}
	}
}

func TestGenerate_ErrorHandlerStatement(t *testing.T) {
	src := generate(t, func(b *workflow.Builder) {
		b.AddNode(&workflow.Node{Name: "Start", Type: "n8n-nodes-base.manualTrigger"})
		b.AddNode(&workflow.Node{Name: "Fetch", Type: "t"})
		b.AddNode(&workflow.Node{Name: "Alert", Type: "t"})
		b.Connect("Start", 0, "Fetch", 0)
		b.ConnectError("Fetch", "Alert")
	})
	if !strings.Contains(src, "onError(fetch, alert);") {
		t.Errorf("output missing onError statement:\n%s", src)
	}
	if !strings.Contains(src, "onError: 'continueErrorOutput',") {
		t.Errorf("node definition should carry onError:\n%s", src)
	}
}

func TestGenerate_PinDataAnnotation(t *testing.T) {
	src := generate(t, func(b *workflow.Builder) {
		b.AddNode(&workflow.Node{Name: "A", Type: "t"})
		b.Pin("A", []byte(`[{"id": 7, "token": "s3cret"}]`))
	})
	if !strings.Contains(src, "// @output ") {
		t.Errorf("output missing @output annotation:\n%s", src)
	}
	if strings.Contains(src, "s3cret") {
		t.Errorf("secret value leaked into annotation:\n%s", src)
	}
	if !strings.Contains(src, "[redacted]") {
		t.Errorf("expected redaction marker:\n%s", src)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	gen := func() string {
		b := workflow.NewBuilder()
		b.AddNode(&workflow.Node{ID: "1", Name: "Start", Type: "n8n-nodes-base.manualTrigger"})
		b.AddNode(&workflow.Node{ID: "2", Name: "A", Type: "t", Parameters: map[string]any{"z": 1, "a": 2, "m": 3}})
		b.Connect("Start", 0, "A", 0)
		b.SetMeta("wf", "demo")
		src, err := codegen.Generate(b.Build(), nil)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		return src
	}
	if a, b := gen(), gen(); a != b {
		t.Errorf("same graph rendered differently:\n%s\n---\n%s", a, b)
	}
}

// ─── Round trip ───────────────────────────────────────────────────────────────

// connectionSet flattens main-kind wiring into comparable strings.
func connectionSet(w *workflow.Workflow) map[string]bool {
	out := map[string]bool{}
	for src, kinds := range w.Connections {
		for kind, slots := range kinds {
			for outIdx, slot := range slots {
				for _, ep := range slot {
					key := src + "|" + kind + "|" +
						string(rune('0'+outIdx)) + "|" + ep.Node + "|" + string(rune('0'+ep.Index))
					out[key] = true
				}
			}
		}
	}
	return out
}

func TestRoundTrip_PreservesWiring(t *testing.T) {
	b := workflow.NewBuilder()
	b.AddNode(&workflow.Node{Name: "Start", Type: "n8n-nodes-base.manualTrigger"})
	b.AddNode(&workflow.Node{Name: "Check", Type: "n8n-nodes-base.if"})
	b.AddNode(&workflow.Node{Name: "Left", Type: "t"})
	b.AddNode(&workflow.Node{Name: "Right", Type: "t"})
	b.AddNode(&workflow.Node{Name: "M", Type: "n8n-nodes-base.merge"})
	b.AddNode(&workflow.Node{Name: "End", Type: "t"})
	b.AddNode(&workflow.Node{Name: "H", Type: "t"})
	b.Connect("Start", 0, "Check", 0)
	b.Connect("Check", 0, "Left", 0)
	b.Connect("Check", 1, "Right", 0)
	b.Connect("Left", 0, "M", 0)
	b.Connect("Right", 0, "M", 1)
	b.Connect("M", 0, "End", 0)
	b.ConnectError("Left", "H")
	b.SetMeta("wf-rt", "round trip")
	original := b.Build()

	src, err := codegen.Generate(original, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	rebuilt, err := script.Interpret(src)
	if err != nil {
		t.Fatalf("Interpret generated program:\n%s\nerror: %v", src, err)
	}

	if rebuilt.ID != original.ID || rebuilt.Name != original.Name {
		t.Errorf("meta = %q/%q, want %q/%q", rebuilt.ID, rebuilt.Name, original.ID, original.Name)
	}
	if len(rebuilt.Nodes) != len(original.Nodes) {
		t.Errorf("nodes = %d, want %d", len(rebuilt.Nodes), len(original.Nodes))
	}

	got, want := connectionSet(rebuilt), connectionSet(original)
	for k := range want {
		if !got[k] {
			t.Errorf("connection lost in round trip: %s\nprogram:\n%s", k, src)
		}
	}
	for k := range got {
		if !want[k] {
			t.Errorf("connection invented in round trip: %s\nprogram:\n%s", k, src)
		}
	}
}

func TestRoundTrip_CyclePreserved(t *testing.T) {
	b := workflow.NewBuilder()
	b.AddNode(&workflow.Node{Name: "Start", Type: "n8n-nodes-base.manualTrigger"})
	b.AddNode(&workflow.Node{Name: "Batch", Type: "n8n-nodes-base.splitInBatches"})
	b.AddNode(&workflow.Node{Name: "Work", Type: "t"})
	b.AddNode(&workflow.Node{Name: "Done", Type: "t"})
	b.Connect("Start", 0, "Batch", 0)
	b.Connect("Batch", 0, "Done", 0)
	b.Connect("Batch", 1, "Work", 0)
	b.Connect("Work", 0, "Batch", 0)
	b.SetMeta("", "loop")
	original := b.Build()

	src, err := codegen.Generate(original, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	rebuilt, err := script.Interpret(src)
	if err != nil {
		t.Fatalf("Interpret generated program:\n%s\nerror: %v", src, err)
	}

	got, want := connectionSet(rebuilt), connectionSet(original)
	for k := range want {
		if !got[k] {
			t.Errorf("connection lost in round trip: %s\nprogram:\n%s", k, src)
		}
	}
}

func TestRoundTrip_FanOutLegIntoJoin(t *testing.T) {
	// A fan-out leg that enters a join at input 1 must keep that index
	// through generation and re-interpretation.
	b := workflow.NewBuilder()
	b.AddNode(&workflow.Node{Name: "Start", Type: "n8n-nodes-base.manualTrigger"})
	b.AddNode(&workflow.Node{Name: "A", Type: "t"})
	b.AddNode(&workflow.Node{Name: "B", Type: "t"})
	b.AddNode(&workflow.Node{Name: "M", Type: "n8n-nodes-base.merge"})
	b.AddNode(&workflow.Node{Name: "End", Type: "t"})
	b.Connect("Start", 0, "A", 0)
	b.Connect("Start", 0, "M", 1)
	b.Connect("B", 0, "M", 0)
	b.Connect("M", 0, "End", 0)
	b.SetMeta("", "fan into join")
	original := b.Build()

	src, err := codegen.Generate(original, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	rebuilt, err := script.Interpret(src)
	if err != nil {
		t.Fatalf("Interpret generated program:\n%s\nerror: %v", src, err)
	}

	got, want := connectionSet(rebuilt), connectionSet(original)
	for k := range want {
		if !got[k] {
			t.Errorf("connection lost in round trip: %s\nprogram:\n%s", k, src)
		}
	}
	for k := range got {
		if !want[k] {
			t.Errorf("connection invented in round trip: %s\nprogram:\n%s", k, src)
		}
	}
}
