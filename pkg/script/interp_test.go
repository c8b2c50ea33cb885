package script_test

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/wireflow-dev/wireflow/pkg/script"
	"github.com/wireflow-dev/wireflow/pkg/workflow"
)

func interpret(t *testing.T, src string) *workflow.Workflow {
	t.Helper()
	w, err := script.Interpret(src)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	return w
}

// ─── Building workflows ───────────────────────────────────────────────────────

func TestInterpret_SimpleChain(t *testing.T) {
	w := interpret(t, `
const start = trigger({ name: 'Start', type: 'n8n-nodes-base.manualTrigger' });
const fetch = node({ name: 'Fetch', type: 'n8n-nodes-base.httpRequest', version: 4.2 });
const save = node({ name: 'Save', type: 'n8n-nodes-base.postgres' });
chain(start, fetch, save);
export default workflow('wf-1', 'demo');
`)
	if w.ID != "wf-1" || w.Name != "demo" {
		t.Errorf("meta = %q/%q, want wf-1/demo", w.ID, w.Name)
	}
	if len(w.Nodes) != 3 {
		t.Fatalf("nodes = %d, want 3", len(w.Nodes))
	}
	if w.NodeByName("Fetch").TypeVersion != 4.2 {
		t.Errorf("version = %v, want 4.2", w.NodeByName("Fetch").TypeVersion)
	}
	outs := w.MainOutputs("Start")
	if len(outs) != 1 || outs[0][0].Node != "Fetch" {
		t.Errorf("Start outputs = %v, want Fetch", outs)
	}
	outs = w.MainOutputs("Fetch")
	if len(outs) != 1 || outs[0][0].Node != "Save" {
		t.Errorf("Fetch outputs = %v, want Save", outs)
	}
}

func TestInterpret_IfElseAndNullBranch(t *testing.T) {
	w := interpret(t, `
const check = node({ name: 'Check', type: 'n8n-nodes-base.if' });
const yes = node({ name: 'Yes', type: 't' });
ifElse(check, yes, null);
export default workflow('demo');
`)
	outs := w.MainOutputs("Check")
	if len(outs) != 1 {
		t.Fatalf("slots = %d, want 1 (only the true branch wired)", len(outs))
	}
	if outs[0][0].Node != "Yes" {
		t.Errorf("true branch = %v, want Yes", outs[0])
	}
}

func TestInterpret_MergeInputs(t *testing.T) {
	w := interpret(t, `
const a = node({ name: 'A', type: 't' });
const b = node({ name: 'B', type: 't' });
const m = merge({ name: 'M', type: 'n8n-nodes-base.merge' });
connect(a, 0, m, 0);
connect(b, 0, m, 1);
export default workflow('demo');
`)
	aOut := w.MainOutputs("A")
	bOut := w.MainOutputs("B")
	if aOut[0][0].Node != "M" || aOut[0][0].Index != 0 {
		t.Errorf("A → %v, want M input 0", aOut[0][0])
	}
	if bOut[0][0].Node != "M" || bOut[0][0].Index != 1 {
		t.Errorf("B → %v, want M input 1", bOut[0][0])
	}
}

func TestInterpret_InputMethod(t *testing.T) {
	w := interpret(t, `
const a = node({ name: 'A', type: 't' });
const m = merge({ name: 'M', type: 'n8n-nodes-base.merge' });
m.input(1, a);
export default workflow('demo');
`)
	out := w.MainOutputs("A")
	if out[0][0].Node != "M" || out[0][0].Index != 1 {
		t.Errorf("A → %v, want M input 1", out[0][0])
	}
}

func TestInterpret_SplitInBatchesCycle(t *testing.T) {
	w := interpret(t, `
const batch = node({ name: 'Batch', type: 'n8n-nodes-base.splitInBatches' });
const done = node({ name: 'Done', type: 't' });
const work = node({ name: 'Work', type: 't' });
splitInBatches(batch, done, chain(work, batch));
export default workflow('demo');
`)
	outs := w.MainOutputs("Batch")
	if len(outs) != 2 {
		t.Fatalf("Batch slots = %d, want 2", len(outs))
	}
	if outs[0][0].Node != "Done" || outs[1][0].Node != "Work" {
		t.Errorf("Batch outputs = %v, want done→Done loop→Work", outs)
	}
	back := w.MainOutputs("Work")
	if back[0][0].Node != "Batch" {
		t.Errorf("Work → %v, want cycle back to Batch", back[0][0])
	}
}

func TestInterpret_OnErrorMethodSetsErrorSlot(t *testing.T) {
	w := interpret(t, `
const a = node({ name: 'A', type: 't' });
const b = node({ name: 'B', type: 't' });
const h = node({ name: 'H', type: 't' });
chain(a, b);
a.onError(h);
export default workflow('demo');
`)
	if w.NodeByName("A").OnError != workflow.OnErrorContinue {
		t.Error("onError should mark the node continueErrorOutput")
	}
	outs := w.MainOutputs("A")
	if len(outs) != 2 || outs[1][0].Node != "H" {
		t.Errorf("A outputs = %v, want error slot → H", outs)
	}
}

func TestInterpret_AttachSubnodes(t *testing.T) {
	w := interpret(t, `
const agent = node({ name: 'Agent', type: '@n8n/n8n-nodes-langchain.agent' });
const model = languageModel({ name: 'Model', type: '@n8n/n8n-nodes-langchain.lmChatOpenAi' });
const mem = node({ name: 'Mem', type: '@n8n/n8n-nodes-langchain.memoryBufferWindow' });
attach(agent, model);
attach(agent, mem, 'ai_memory');
export default workflow('demo');
`)
	lm := w.Connections["Model"]["ai_languageModel"]
	if len(lm) != 1 || lm[0][0].Node != "Agent" {
		t.Errorf("languageModel attachment = %v, want Model → Agent", lm)
	}
	mem := w.Connections["Mem"]["ai_memory"]
	if len(mem) != 1 || mem[0][0].Node != "Agent" {
		t.Errorf("memory attachment = %v, want Mem → Agent", mem)
	}
}

// ─── Name collisions ──────────────────────────────────────────────────────────

func TestInterpret_ReservedNameFails(t *testing.T) {
	_, err := script.Interpret(`
const merge = node({ name: 'M', type: 't' });
export default workflow('demo');
`)
	var sv *script.SecurityViolationError
	if !errors.As(err, &sv) {
		t.Fatalf("error = %v, want *SecurityViolationError for reserved name", err)
	}
}

func TestInterpret_AutoRenameableShadowing(t *testing.T) {
	w := interpret(t, `
const agent = node({ name: 'Agent', type: '@n8n/n8n-nodes-langchain.agent' });
const memory = node({ name: 'Mem', type: '@n8n/n8n-nodes-langchain.memoryBufferWindow' });
attach(agent, memory, 'ai_memory');
export default workflow('demo');
`)
	mem := w.Connections["Mem"]["ai_memory"]
	if len(mem) != 1 || mem[0][0].Node != "Agent" {
		t.Errorf("later references must resolve to the renamed binding, got %v", mem)
	}
}

func TestInterpret_ShadowedBuilderInOwnInitializer(t *testing.T) {
	// The rename applies to references after the declaration; inside its own
	// initializer the name must still reach the builder function.
	w := interpret(t, `
const agent = node({ name: 'Agent', type: '@n8n/n8n-nodes-langchain.agent' });
const languageModel = languageModel({ name: 'LM', type: '@n8n/n8n-nodes-langchain.lmChatOpenAi' });
attach(agent, languageModel);
export default workflow('demo');
`)
	if w.NodeByName("LM") == nil {
		t.Fatal("shadowed builder call did not create its node")
	}
	lm := w.Connections["LM"]["ai_languageModel"]
	if len(lm) != 1 || lm[0][0].Node != "Agent" {
		t.Errorf("attachment through the renamed binding = %v, want wire to Agent", lm)
	}
}

// ─── Expression semantics ─────────────────────────────────────────────────────

func evalParam(t *testing.T, expr string) any {
	t.Helper()
	w := interpret(t, `
const a = node({ name: 'A', type: 't', parameters: { v: `+expr+` } });
export default workflow('demo');
`)
	return w.NodeByName("A").Parameters["v"]
}

func TestInterpret_Operators(t *testing.T) {
	cases := []struct {
		expr string
		want any
	}{
		{"1 + 2", float64(3)},
		{"'a' + 1", "a1"},
		{"'5' - 2", float64(3)},
		{"1 == '1'", true},
		{"1 === '1'", false},
		{"null == undefined", true},
		{"0 ?? 'x'", float64(0)},
		{"null ?? 'x'", "x"},
		{"0 || 'x'", "x"},
		{"'' && 'y'", ""},
		{"!0", true},
		{"2 < 10", true},
		{"'2' < '10'", false},
		{"true ? 'a' : 'b'", "a"},
		{"7 % 4", float64(3)},
	}
	for _, tc := range cases {
		got := evalParam(t, tc.expr)
		if got != tc.want {
			t.Errorf("%s = %#v, want %#v", tc.expr, got, tc.want)
		}
	}
}

func TestInterpret_StringAndArrayMethods(t *testing.T) {
	cases := []struct {
		expr string
		want any
	}{
		{"' hi '.trim()", "hi"},
		{"'ab'.toUpperCase()", "AB"},
		{"'a,b,c'.split(',').join('-')", "a-b-c"},
		{"[1, 2, 3].indexOf(2)", float64(1)},
		{"[[1], [2]].flat().join('')", "12"},
		{"'hello'.slice(1, 3)", "el"},
		{"'abc'.includes('b')", true},
		{"JSON.parse('{\"a\": 5}').a", float64(5)},
		{"JSON.stringify([1, 2])", "[1,2]"},
		{"String(42)", "42"},
		{"Number('3.5')", 3.5},
		{"Boolean('')", false},
	}
	for _, tc := range cases {
		got := evalParam(t, tc.expr)
		if got != tc.want {
			t.Errorf("%s = %#v, want %#v", tc.expr, got, tc.want)
		}
	}
}

func TestInterpret_TemplateEvaluation(t *testing.T) {
	got := evalParam(t, "`n=${1 + 1}`")
	if got != "n=2" {
		t.Errorf("template = %q, want %q", got, "n=2")
	}
}

func TestInterpret_RuntimeHolesPreservedVerbatim(t *testing.T) {
	got := evalParam(t, "`value: ${$json.body.id}`")
	if got != "value: ${$json.body.id}" {
		t.Errorf("runtime hole = %q, want it preserved verbatim", got)
	}
}

func TestInterpret_SpreadAndPropertyAssignment(t *testing.T) {
	w := interpret(t, `
const base = { a: 1, b: 2 };
const params = { ...base, c: 3 };
params.a = 10;
const a = node({ name: 'A', type: 't', parameters: params });
export default workflow('demo');
`)
	p := w.NodeByName("A").Parameters
	if p["a"] != float64(10) || p["b"] != float64(2) || p["c"] != float64(3) {
		t.Errorf("parameters = %v, want a=10 b=2 c=3", p)
	}
}

// ─── Typed errors ─────────────────────────────────────────────────────────────

func TestInterpret_UnknownIdentifier(t *testing.T) {
	_, err := script.Interpret(`
const a = node({ name: 'A', type: 't' });
chain(a, ghost);
export default workflow('demo');
`)
	var unknown *script.UnknownIdentifierError
	if !errors.As(err, &unknown) {
		t.Fatalf("error = %v, want *UnknownIdentifierError", err)
	}
	if unknown.Name != "ghost" {
		t.Errorf("name = %q, want ghost", unknown.Name)
	}
	if unknown.Pos.Line == 0 || unknown.Snippet == "" {
		t.Error("error should carry position and source snippet")
	}
}

func TestInterpret_ErrorSnippetKeepsRunesWhole(t *testing.T) {
	// A long line of multi-byte characters must truncate on a rune boundary.
	pad := strings.Repeat("π", 70)
	_, err := script.Interpret("const a = '" + pad + "' + bogus;\nexport default workflow('demo');")
	var unknown *script.UnknownIdentifierError
	if !errors.As(err, &unknown) {
		t.Fatalf("error = %v, want *UnknownIdentifierError", err)
	}
	if !utf8.ValidString(unknown.Snippet) {
		t.Errorf("snippet %q splits a multi-byte rune", unknown.Snippet)
	}
	if !strings.HasSuffix(unknown.Snippet, "…") {
		t.Errorf("snippet %q should be truncated", unknown.Snippet)
	}
}

func TestInterpret_NotCallable(t *testing.T) {
	_, err := script.Interpret(`
const a = node({ name: 'A', type: 't' });
a('again');
export default workflow('demo');
`)
	var nc *script.NotCallableError
	if !errors.As(err, &nc) {
		t.Fatalf("error = %v, want *NotCallableError", err)
	}
}

func TestInterpret_ExportMustBeWorkflow(t *testing.T) {
	_, err := script.Interpret(`
const a = node({ name: 'A', type: 't' });
export default a;
`)
	var unsupported *script.UnsupportedNodeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("error = %v, want *UnsupportedNodeError", err)
	}
}
