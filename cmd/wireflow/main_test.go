package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleWorkflow = `{
  "id": "wf-1",
  "name": "demo",
  "nodes": [
    {"id": "1", "name": "Start", "type": "n8n-nodes-base.manualTrigger", "typeVersion": 1, "position": [0, 0]},
    {"id": "2", "name": "Fetch", "type": "n8n-nodes-base.httpRequest", "typeVersion": 4.2, "position": [220, 0]}
  ],
  "connections": {
    "Start": {"main": [[{"node": "Fetch", "type": "main", "index": 0}]]}
  }
}`

const sampleProgram = `const start = trigger({ name: 'Start', type: 'n8n-nodes-base.manualTrigger' });
const fetch = node({ name: 'Fetch', type: 'n8n-nodes-base.httpRequest', version: 4.2 });
chain(start, fetch);
export default workflow('demo');
`

// ─── TestOutputPath ───────────────────────────────────────────────────────────

func TestOutputPath_StripsExtensionAndFlowSuffix(t *testing.T) {
	dir := t.TempDir()

	got := outputPath(filepath.Join(dir, "demo.flow.js"), ".json")
	base := filepath.Base(got)
	if !strings.HasPrefix(base, "demo-") {
		t.Errorf("output base = %q, want demo-<stamp> prefix", base)
	}
	if strings.Contains(base, ".flow") {
		t.Errorf("output base = %q, want .flow suffix stripped", base)
	}
	if !strings.HasSuffix(base, ".json") {
		t.Errorf("output base = %q, want .json extension", base)
	}
}

func TestOutputPath_AvoidsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "demo.json")

	first := outputPath(in, ".flow.js")
	if err := os.WriteFile(first, []byte("x"), 0o644); err != nil {
		t.Fatalf("write first output: %v", err)
	}

	second := outputPath(in, ".flow.js")
	if second == first {
		t.Fatalf("outputPath reused occupied path %q", first)
	}
	if _, err := os.Stat(second); !os.IsNotExist(err) {
		t.Errorf("second path %q should not exist yet", second)
	}
}

// ─── TestCommands ─────────────────────────────────────────────────────────────

func TestCodegenCmd_WritesProgram(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "demo.json")
	out := filepath.Join(dir, "demo.flow.js")
	if err := os.WriteFile(in, []byte(sampleWorkflow), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	cmd := rootCmd()
	cmd.SetArgs([]string{"codegen", in, "--out", out})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("codegen: %v", err)
	}

	src, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	for _, want := range []string{
		"const start = trigger({",
		"chain(start, fetch);",
		"export default workflow('wf-1', 'demo');",
	} {
		if !strings.Contains(string(src), want) {
			t.Errorf("generated program missing %q:\n%s", want, src)
		}
	}
}

func TestBuildCmd_WritesWorkflowJSON(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "demo.flow.js")
	out := filepath.Join(dir, "demo.json")
	if err := os.WriteFile(in, []byte(sampleProgram), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	cmd := rootCmd()
	cmd.SetArgs([]string{"build", in, "--out", out})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("build: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var doc struct {
		Name  string `json:"name"`
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if doc.Name != "demo" {
		t.Errorf("workflow name = %q, want demo", doc.Name)
	}
	if len(doc.Nodes) != 2 {
		t.Errorf("node count = %d, want 2", len(doc.Nodes))
	}
}

func TestLintCmd_ValidWorkflow(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "demo.json")
	if err := os.WriteFile(in, []byte(sampleWorkflow), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	cmd := rootCmd()
	cmd.SetArgs([]string{"lint", in})
	if err := cmd.Execute(); err != nil {
		t.Errorf("lint on valid workflow: %v", err)
	}
}

func TestLintCmd_ValidProgram(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "demo.flow.js")
	if err := os.WriteFile(in, []byte(sampleProgram), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	cmd := rootCmd()
	cmd.SetArgs([]string{"lint", in})
	if err := cmd.Execute(); err != nil {
		t.Errorf("lint on valid program: %v", err)
	}
}

func TestLintCmd_BrokenWorkflow(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "broken.json")
	// Connection to a node that does not exist.
	broken := `{
  "name": "broken",
  "nodes": [
    {"id": "1", "name": "Start", "type": "n8n-nodes-base.manualTrigger", "typeVersion": 1, "position": [0, 0]}
  ],
  "connections": {
    "Start": {"main": [[{"node": "Missing", "type": "main", "index": 0}]]}
  }
}`
	if err := os.WriteFile(in, []byte(broken), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	cmd := rootCmd()
	cmd.SetArgs([]string{"lint", in})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected lint error for dangling connection")
	}
}
