package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tutu-network/riemann/internal/daemon"
	"github.com/tutu-network/riemann/internal/domain"
	"github.com/tutu-network/riemann/internal/infra/sqlite"
)

// execute runs the root command with args against a fresh RIEMANN_HOME and
// returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeIn(t, t.TempDir(), args...)
}

func executeIn(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("RIEMANN_HOME", home)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return out.String(), err
}

// ─── run ────────────────────────────────────────────────────────────────────

func TestParseRange(t *testing.T) {
	tests := []struct {
		args    []string
		want    [3]float64
		wantErr string
	}{
		{[]string{"0", "20", "0.1"}, [3]float64{0, 20, 0.1}, ""},
		{[]string{"-5", "5e1", "1"}, [3]float64{-5, 50, 1}, ""},
		{[]string{"a", "20", "0.1"}, [3]float64{}, "invalid start"},
		{[]string{"0", "", "0.1"}, [3]float64{}, "invalid end"},
		{[]string{"0", "20", "tiny"}, [3]float64{}, "invalid step"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, ","), func(t *testing.T) {
			s, e, st, err := parseRange(tt.args)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("parseRange() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRange() error: %v", err)
			}
			if got := [3]float64{s, e, st}; got != tt.want {
				t.Errorf("parseRange() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRun_WrongArgCount(t *testing.T) {
	_, err := execute(t, "run", "0", "20")
	if err == nil {
		t.Fatal("run with two arguments should fail")
	}
	if !strings.Contains(err.Error(), "accepts 3 arg(s)") {
		t.Errorf("error = %v", err)
	}
}

func TestRun_Unparsable(t *testing.T) {
	_, err := execute(t, "run", "zero", "20", "0.1")
	if err == nil || !strings.Contains(err.Error(), "invalid start") {
		t.Errorf("error = %v, want invalid start", err)
	}
}

func TestRun_InvalidStep(t *testing.T) {
	_, err := execute(t, "run", "0", "20", "0")
	if !errors.Is(err, domain.ErrInvalidStep) {
		t.Errorf("error = %v, want ErrInvalidStep", err)
	}
}

func TestRun_EmptyRange(t *testing.T) {
	out, err := execute(t, "run", "--log-level", "error", "5", "5", "0.1")
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if out != "Result: 0\n" {
		t.Errorf("output = %q, want %q", out, "Result: 0\n")
	}
}

func TestRun_NegativeBounds(t *testing.T) {
	out, err := execute(t, "run", "--log-level", "error", "-5", "-5", "0.1")
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if out != "Result: 0\n" {
		t.Errorf("output = %q, want %q", out, "Result: 0\n")
	}
}

func TestRun_NegativeBoundsWithFlags(t *testing.T) {
	t.Cleanup(func() { runVerbose = false })

	out, err := execute(t, "run", "-5", "--verbose", "-5", "--log-level=error", "0.1")
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !strings.HasPrefix(out, "Result: 0\n") {
		t.Errorf("output = %q, want Result: 0 first", out)
	}
	if !strings.Contains(out, "Tasks: 0") {
		t.Errorf("output = %q, want dispatch statistics", out)
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	if _, err := execute(t, "run", "--nope", "0", "20", "0.1"); err == nil {
		t.Error("run with an unknown flag should fail")
	}
}

func TestRun_Help(t *testing.T) {
	t.Cleanup(func() { _ = runCmd.Flags().Set("help", "false") })

	out, err := execute(t, "run", "--help")
	if err != nil {
		t.Fatalf("run --help error: %v", err)
	}
	for _, want := range []string{"START END STEP", "--max-attempts", "may be negative", "not rounded to 6 significant digits"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output missing %q:\n%s", want, out)
		}
	}
}

func TestSplitRunArgs(t *testing.T) {
	fs := runCmd.Flags()
	fs.AddFlagSet(rootCmd.PersistentFlags())

	tests := []struct {
		args      []string
		wantFlags []string
		wantPos   []string
	}{
		{
			args:    []string{"0", "20", "0.1"},
			wantPos: []string{"0", "20", "0.1"},
		},
		{
			args:      []string{"--log-level", "error", "-5", "-1e3", "--broadcast", "10.0.0.255", "0.5"},
			wantFlags: []string{"--log-level", "error", "--broadcast", "10.0.0.255"},
			wantPos:   []string{"-5", "-1e3", "0.5"},
		},
		{
			args:      []string{"-v", "-5", "--max-attempts", "-1", "5", "1"},
			wantFlags: []string{"-v", "--max-attempts", "-1"},
			wantPos:   []string{"-5", "5", "1"},
		},
		{
			args:      []string{"--record", "--broadcast=10.0.0.255", "-.5", ".5", "0.1"},
			wantFlags: []string{"--record", "--broadcast=10.0.0.255"},
			wantPos:   []string{"-.5", ".5", "0.1"},
		},
		{
			args:      []string{"--verbose", "--", "--record", "1", "2"},
			wantFlags: []string{"--verbose"},
			wantPos:   []string{"--record", "1", "2"},
		},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			flags, pos := splitRunArgs(fs, tt.args)
			if strings.Join(flags, " ") != strings.Join(tt.wantFlags, " ") {
				t.Errorf("flags = %q, want %q", flags, tt.wantFlags)
			}
			if strings.Join(pos, " ") != strings.Join(tt.wantPos, " ") {
				t.Errorf("positional = %q, want %q", pos, tt.wantPos)
			}
		})
	}
}

// ─── worker ─────────────────────────────────────────────────────────────────

func TestWorker_UnknownKernel(t *testing.T) {
	_, err := execute(t, "worker", "--kernel", "cosh")
	if !errors.Is(err, domain.ErrUnknownKernel) {
		t.Errorf("error = %v, want ErrUnknownKernel", err)
	}
	workerKernel = ""
}

func TestWorker_RejectsArgs(t *testing.T) {
	if _, err := execute(t, "worker", "extra"); err == nil {
		t.Error("worker with positional args should fail")
	}
}

// ─── history ────────────────────────────────────────────────────────────────

func TestHistory_Empty(t *testing.T) {
	out, err := execute(t, "history")
	if err != nil {
		t.Fatalf("history error: %v", err)
	}
	if !strings.Contains(out, "No runs recorded") {
		t.Errorf("output = %q", out)
	}
}

func TestHistory_ListAndShow(t *testing.T) {
	home := t.TempDir()
	db, err := sqlite.Open(home)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	run := domain.Run{ID: "run-abc", Start: 0, End: 20, Step: 0.1, Status: domain.RunRunning, Tasks: 2, StartedAt: time.Now()}
	if err := db.BeginRun(run); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordOutcomes(run.ID, []domain.TaskOutcome{
		{Seq: 0, Round: 1, Peer: "10.0.0.1:8002", Task: domain.Task{Start: 0, End: 10, Step: 0.1}, Result: 328.35},
		{Seq: 1, Round: 1, Peer: "10.0.0.2:8002", Task: domain.Task{Start: 10, End: 20, Step: 0.1}, Error: "task exchange failed"},
	}); err != nil {
		t.Fatal(err)
	}
	run.Status, run.Total, run.Dispatched, run.Failed, run.Rounds = domain.RunCompleted, 328.35, 2, 1, 1
	run.CompletedAt = time.Now()
	if err := db.FinishRun(run); err != nil {
		t.Fatal(err)
	}
	db.Close()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Setenv("RIEMANN_HOME", home)

	rootCmd.SetArgs([]string{"history"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("history error: %v", err)
	}
	if !strings.Contains(out.String(), "run-abc") || !strings.Contains(out.String(), "COMPLETED") {
		t.Errorf("list output = %q", out.String())
	}

	out.Reset()
	rootCmd.SetArgs([]string{"history", "run-abc"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("history show error: %v", err)
	}
	if !strings.Contains(out.String(), "failed: task exchange failed") {
		t.Errorf("show output = %q", out.String())
	}
	rootCmd.SetArgs(nil)
}

func TestHistory_UnknownRun(t *testing.T) {
	_, err := execute(t, "history", "ghost")
	if !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("error = %v, want ErrRunNotFound", err)
	}
}

// ─── config ─────────────────────────────────────────────────────────────────

func TestConfigInit(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "config.toml")

	out, err := executeIn(t, home, "config", "init")
	if err != nil {
		t.Fatalf("config init error: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("output = %q, want it to name %s", out, path)
	}

	cfg, err := daemon.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg != daemon.DefaultConfig() {
		t.Errorf("written config = %+v, want defaults", cfg)
	}
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "config.toml")
	if err := os.WriteFile(path, []byte("[worker]\nkernel = \"exp\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := executeIn(t, home, "config", "init"); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("config init over existing file: error = %v", err)
	}
	if data, _ := os.ReadFile(path); !strings.Contains(string(data), "exp") {
		t.Errorf("existing config was overwritten: %q", data)
	}

	t.Cleanup(func() { configForce = false })
	if _, err := executeIn(t, home, "config", "init", "--force"); err != nil {
		t.Fatalf("config init --force error: %v", err)
	}
	cfg, err := daemon.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Worker.Kernel != "square" {
		t.Errorf("Worker.Kernel = %q after --force, want square", cfg.Worker.Kernel)
	}
}

func TestConfigPath(t *testing.T) {
	home := t.TempDir()
	out, err := executeIn(t, home, "config", "path")
	if err != nil {
		t.Fatalf("config path error: %v", err)
	}
	if want := filepath.Join(home, "config.toml") + "\n"; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}
