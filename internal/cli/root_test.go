package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func executeCommand(args ...string) (string, error) {
	resetFlags(rootCmd)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// resetFlags restores every flag to its default so that values from one
// test do not leak into the next.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// writeManifest creates an app with one component whose build command
// appends a line to count.txt.
func writeManifest(t *testing.T, command string) (manifest, componentDir string) {
	t.Helper()
	root := t.TempDir()
	componentDir = filepath.Join(root, "api")
	if err := os.MkdirAll(componentDir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest = filepath.Join(root, "wfactory.yaml")
	content := `app:
  name: demo
  components:
    - name: api
      dir: api
      build:
        - command: "` + command + `"
`
	if err := os.WriteFile(manifest, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return manifest, componentDir
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Count(string(data), "\n")
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedSubcommands := []string{
		"build", "status", "clean", "markers", "history",
		"config", "db", "version",
	}
	for _, sub := range expectedSubcommands {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestSubcommandHelp(t *testing.T) {
	cmds := [][]string{
		{"build"}, {"status"}, {"clean"},
		{"markers", "list"},
		{"history", "list"}, {"history", "stats"},
		{"db", "migrate"}, {"db", "reset"},
		{"config", "validate"}, {"config", "show"},
	}
	for _, c := range cmds {
		out, err := executeCommand(append(c, "--help")...)
		if err != nil {
			t.Errorf("%s --help failed: %v", strings.Join(c, " "), err)
		}
		if out == "" {
			t.Errorf("%s --help produced no output", strings.Join(c, " "))
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	_, err := executeCommand("nonexistent")
	if err == nil {
		t.Error("expected error for unknown command, got nil")
	}
}

func TestResolveConfigPath_FileNotFound(t *testing.T) {
	_, err := resolveConfigPath("/nonexistent/path/wfactory.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent config file, got nil")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected 'not found' error, got: %v", err)
	}
}

func TestResolveConfigPath_Empty(t *testing.T) {
	got, err := resolveConfigPath("")
	if err != nil {
		t.Fatalf("unexpected error for empty flag: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestBuildIsIncremental(t *testing.T) {
	manifest, dir := writeManifest(t, "echo built >> count.txt")

	out, err := executeCommand("build", "-c", manifest)
	if err != nil {
		t.Fatalf("first build: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 built, 0 up-to-date, 0 failed") {
		t.Errorf("unexpected first build output:\n%s", out)
	}
	if n := countLines(t, filepath.Join(dir, "count.txt")); n != 1 {
		t.Errorf("command ran %d times, want 1", n)
	}

	out, err = executeCommand("build", "-c", manifest)
	if err != nil {
		t.Fatalf("second build: %v\n%s", err, out)
	}
	if !strings.Contains(out, "api componentize: up to date") {
		t.Errorf("expected up-to-date output:\n%s", out)
	}
	if n := countLines(t, filepath.Join(dir, "count.txt")); n != 1 {
		t.Errorf("command ran %d times, want 1", n)
	}

	out, err = executeCommand("build", "-c", manifest, "--force-build")
	if err != nil {
		t.Fatalf("forced build: %v\n%s", err, out)
	}
	if n := countLines(t, filepath.Join(dir, "count.txt")); n != 2 {
		t.Errorf("command ran %d times after --force-build, want 2", n)
	}
}

func TestBuildFailure(t *testing.T) {
	manifest, _ := writeManifest(t, "echo nope >&2; exit 3")

	out, err := executeCommand("build", "-c", manifest)
	if err == nil {
		t.Fatalf("expected build error, got output:\n%s", out)
	}
	if !strings.Contains(err.Error(), "component api") || !strings.Contains(err.Error(), "nope") {
		t.Errorf("unexpected error: %v", err)
	}

	out, err = executeCommand("status", "-c", manifest)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "failed") {
		t.Errorf("expected failed state after failed build:\n%s", out)
	}
}

func TestBuildInvalidStep(t *testing.T) {
	manifest, _ := writeManifest(t, "true")
	_, err := executeCommand("build", "-c", manifest, "--step", "deploy")
	if err == nil || !strings.Contains(err.Error(), "unknown step") {
		t.Errorf("expected unknown step error, got %v", err)
	}
}

func TestBuildMetricsFile(t *testing.T) {
	manifest, dir := writeManifest(t, "true")
	metricsPath := filepath.Join(dir, "wfactory.prom")

	if out, err := executeCommand("build", "-c", manifest, "--metrics-file", metricsPath); err != nil {
		t.Fatalf("build: %v\n%s", err, out)
	}
	data, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(data), `wfactory_tasks_total{app="demo",kind="ExternalCommand",outcome="success"} 1`) {
		t.Errorf("unexpected metrics:\n%s", data)
	}
}

func TestStatusMarkersAndClean(t *testing.T) {
	manifest, _ := writeManifest(t, "true")

	out, err := executeCommand("status", "-c", manifest)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "missing") {
		t.Errorf("expected missing state before build:\n%s", out)
	}

	if out, err := executeCommand("build", "-c", manifest); err != nil {
		t.Fatalf("build: %v\n%s", err, out)
	}

	out, err = executeCommand("status", "-c", manifest)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "up-to-date") {
		t.Errorf("expected up-to-date state after build:\n%s", out)
	}

	out, err = executeCommand("markers", "list", "-c", manifest)
	if err != nil {
		t.Fatalf("markers list: %v", err)
	}
	if !strings.Contains(out, "ExternalCommand") || !strings.Contains(out, "true") {
		t.Errorf("unexpected markers output:\n%s", out)
	}

	if out, err := executeCommand("clean", "-c", manifest); err != nil {
		t.Fatalf("clean: %v\n%s", err, out)
	}
	out, err = executeCommand("markers", "list", "-c", manifest)
	if err != nil {
		t.Fatalf("markers list: %v", err)
	}
	if !strings.Contains(out, "No markers.") {
		t.Errorf("expected no markers after clean:\n%s", out)
	}
}

func TestCleanAllRefusesProjectRoot(t *testing.T) {
	root := t.TempDir()
	manifest := filepath.Join(root, "wfactory.yaml")
	content := "app:\n  name: demo\n  build_dir: .\n  components:\n    - name: api\n"
	if err := os.WriteFile(manifest, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := executeCommand("clean", "--all", "-c", manifest)
	if err == nil {
		t.Fatalf("expected clean --all to refuse, got:\n%s", out)
	}
	if !strings.Contains(err.Error(), "refusing to remove build dir") {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := os.Stat(manifest); err != nil {
		t.Errorf("manifest removed: %v", err)
	}
}

func TestHistoryCommands(t *testing.T) {
	manifest, _ := writeManifest(t, "true")
	for i := 0; i < 2; i++ {
		if out, err := executeCommand("build", "-c", manifest); err != nil {
			t.Fatalf("build: %v\n%s", err, out)
		}
	}

	out, err := executeCommand("history", "list", "-c", manifest)
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if !strings.Contains(out, "UP-TO-DATE") || strings.Count(out, "\n") != 3 {
		t.Errorf("expected header and 2 builds:\n%s", out)
	}

	out, err = executeCommand("history", "list", "-c", manifest, "--build", "1")
	if err != nil {
		t.Fatalf("history list --build: %v", err)
	}
	if !strings.Contains(out, "componentize") {
		t.Errorf("expected task rows:\n%s", out)
	}

	out, err = executeCommand("history", "stats", "-c", manifest)
	if err != nil {
		t.Fatalf("history stats: %v", err)
	}
	if !strings.Contains(out, "ExternalCommand") || !strings.Contains(out, "50.0") {
		t.Errorf("expected 50%% hit rate:\n%s", out)
	}

	if out, err := executeCommand("db", "reset", "-c", manifest); err != nil {
		t.Fatalf("db reset: %v\n%s", err, out)
	}
	out, err = executeCommand("history", "list", "-c", manifest)
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if !strings.Contains(out, "No builds recorded.") {
		t.Errorf("expected empty history after reset:\n%s", out)
	}
}

func TestConfigValidate(t *testing.T) {
	manifest, _ := writeManifest(t, "true")
	out, err := executeCommand("config", "validate", "-c", manifest)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration is valid.") {
		t.Errorf("unexpected output: %s", out)
	}

	bad := filepath.Join(t.TempDir(), "wfactory.yaml")
	if err := os.WriteFile(bad, []byte("app:\n  components: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err = executeCommand("config", "validate", "-c", bad)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(out, "app.name") {
		t.Errorf("expected app.name error in output: %s", out)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"cargo build", 50, "cargo build"},
		{"abcdefghij", 8, "abcde..."},
		{"build → ünïcode ✓ target", 10, "build →..."},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
	}
}
