package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/litescript/ls-ephem/internal/catalog"
	"github.com/litescript/ls-ephem/internal/report"
	"github.com/litescript/ls-ephem/internal/version"
)

const twoArcOEM = `CCSDS_OEM_VERS = 1.0
CREATION_DATE = 2024-03-01T12:00:00
ORIGINATOR = TEST

META_START
OBJECT_NAME = ALPHA
OBJECT_ID = 2024-010A
CENTER_NAME = EARTH
REF_FRAME = EME2000
TIME_SYSTEM = UTC
START_TIME = 2024-03-01T00:00:00
STOP_TIME = 2024-03-01T00:02:00
INTERPOLATION = LAGRANGE
INTERPOLATION_DEGREE = 1
META_STOP
2024-03-01T00:00:00 7000 0 0 0 7.5 0
2024-03-01T00:01:00 7000 450 0 0 7.5 0
2024-03-01T00:02:00 7000 900 0 0 7.5 0

META_START
OBJECT_NAME = ALPHA
OBJECT_ID = 2024-010A
CENTER_NAME = EARTH
REF_FRAME = EME2000
TIME_SYSTEM = UTC
START_TIME = 2024-03-01T00:10:00
STOP_TIME = 2024-03-01T00:12:00
INTERPOLATION = HERMITE
INTERPOLATION_DEGREE = 3
META_STOP
2024-03-01T00:10:00 7000 4500 0 0 7.5 0
2024-03-01T00:11:00 7000 4950 0 0 7.5 0
2024-03-01T00:12:00 7000 5400 0 0 7.5 0
`

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// run executes the command tree with args and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestSummary(t *testing.T) {
	path := writeTestFile(t, "alpha.oem", twoArcOEM)

	out, _, err := run(t, "summary", path)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	for _, want := range []string{path, "ALPHA", "LAGRANGE/1", "HERMITE/3", "Total: 2 segments, 6 samples"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary output missing %q:\n%s", want, out)
		}
	}
}

func TestSummary_MultipleFilesInOrder(t *testing.T) {
	a := writeTestFile(t, "a.oem", twoArcOEM)
	b := writeTestFile(t, "b.oem", strings.ReplaceAll(twoArcOEM, "ALPHA", "BRAVO"))

	out, _, err := run(t, "summary", b, a)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if strings.Index(out, "BRAVO") > strings.Index(out, "ALPHA") {
		t.Error("summaries should follow argument order")
	}
}

func TestSummary_MissingFile(t *testing.T) {
	_, _, err := run(t, "summary", filepath.Join(t.TempDir(), "nope.oem"))
	if err == nil {
		t.Fatal("summary of a missing file should fail")
	}
}

func TestState(t *testing.T) {
	path := writeTestFile(t, "alpha.oem", twoArcOEM)

	out, _, err := run(t, "state", path, "--at", "2024-03-01T00:00:30")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if !strings.Contains(out, "225.000000") {
		t.Errorf("state output should show y = 225:\n%s", out)
	}
}

func TestState_Errors(t *testing.T) {
	path := writeTestFile(t, "alpha.oem", twoArcOEM)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing flag", []string{"state", path}, "at"},
		{"bad epoch", []string{"state", path, "--at", "yesterday"}, "--at"},
		{"gap", []string{"state", path, "--at", "2024-03-01T00:05:00"}, "no segment"},
		{"before start", []string{"state", path, "--at", "2024-02-29T23:00:00"}, "no segment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(strings.ToLower(err.Error()), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestTable(t *testing.T) {
	path := writeTestFile(t, "alpha.oem", twoArcOEM)

	out, _, err := run(t, "table", path)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	if !strings.Contains(out, "7 of 13 epochs fall outside segment coverage") {
		t.Errorf("table output:\n%s", out)
	}
}

func TestTable_StepSources(t *testing.T) {
	path := writeTestFile(t, "alpha.oem", twoArcOEM)

	t.Run("flag", func(t *testing.T) {
		out, _, err := run(t, "table", path, "--step", "30")
		if err != nil {
			t.Fatalf("table: %v", err)
		}
		if !strings.Contains(out, "15 of 25 epochs") {
			t.Errorf("30 s step output:\n%s", out)
		}
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv("LSEPHEM_STEP_SECONDS", "120")
		out, _, err := run(t, "table", path)
		if err != nil {
			t.Fatalf("table: %v", err)
		}
		if !strings.Contains(out, "3 of 7 epochs") {
			t.Errorf("120 s step output:\n%s", out)
		}
	})

	t.Run("config file", func(t *testing.T) {
		cfg := writeTestFile(t, "cfg.yaml", "step_seconds: 360\n")
		out, _, err := run(t, "--config", cfg, "table", path)
		if err != nil {
			t.Fatalf("table: %v", err)
		}
		if !strings.Contains(out, "1 of 3 epochs") {
			t.Errorf("360 s step output:\n%s", out)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, step := range []string{"-5", "1e-17"} {
			if _, _, err := run(t, "table", path, "--step", step); err == nil {
				t.Errorf("--step %s should fail", step)
			}
		}
	})
}

func TestExport_JSONToFile(t *testing.T) {
	path := writeTestFile(t, "alpha.oem", twoArcOEM)
	dest := filepath.Join(t.TempDir(), "alpha.json")

	if _, _, err := run(t, "export", path, "--out", dest); err != nil {
		t.Fatalf("export: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	var got report.MessageExport
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(got.Segments) != 2 || len(got.Series) != 6 {
		t.Errorf("segments = %d, series = %d, want 2 and 6", len(got.Segments), len(got.Series))
	}
	if got.Originator != "TEST" {
		t.Errorf("Originator = %q, want TEST", got.Originator)
	}
}

func TestExport_YAMLStdout(t *testing.T) {
	path := writeTestFile(t, "alpha.oem", twoArcOEM)

	out, _, err := run(t, "export", path, "--format", "yaml", "--no-series")
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	var got report.MessageExport
	if err := yaml.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("export is not valid YAML: %v\n%s", err, out)
	}
	if len(got.Series) != 0 {
		t.Errorf("--no-series exported %d records", len(got.Series))
	}
	if got.Segments[1].Interpolation != "HERMITE" {
		t.Errorf("segment 2 interpolation = %q, want HERMITE", got.Segments[1].Interpolation)
	}
}

func TestExport_UnknownFormat(t *testing.T) {
	path := writeTestFile(t, "alpha.oem", twoArcOEM)
	if _, _, err := run(t, "export", path, "--format", "xml"); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestVersion2Flag(t *testing.T) {
	v2 := strings.Replace(twoArcOEM, "CCSDS_OEM_VERS = 1.0", "CCSDS_OEM_VERS = 2.0", 1)
	path := writeTestFile(t, "v2.oem", v2)

	if _, _, err := run(t, "summary", path); err == nil {
		t.Error("version 2.0 should be rejected by default")
	}
	if _, _, err := run(t, "--allow-v2", "summary", path); err != nil {
		t.Errorf("--allow-v2 summary: %v", err)
	}
}

func TestDebugLogging(t *testing.T) {
	path := writeTestFile(t, "alpha.oem", twoArcOEM)

	_, errOut, err := run(t, "--log-level", "debug", "summary", path)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !strings.Contains(errOut, "[DEBUG]") {
		t.Errorf("debug log missing from stderr:\n%s", errOut)
	}

	_, errOut, _ = run(t, "summary", path)
	if strings.Contains(errOut, "[DEBUG]") {
		t.Errorf("debug lines at info level:\n%s", errOut)
	}
}

func TestBrowse_NonTerminalFallsBackToSummary(t *testing.T) {
	path := writeTestFile(t, "alpha.oem", twoArcOEM)

	out, _, err := run(t, "browse", path)
	if err != nil {
		t.Fatalf("browse: %v", err)
	}
	if !strings.Contains(out, "Total: 2 segments") {
		t.Errorf("browse without a terminal should print the summary:\n%s", out)
	}
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, version.Version) {
		t.Errorf("version output = %q", out)
	}
}

func TestWatchLoop(t *testing.T) {
	changes := make(chan catalog.Event, 2)
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	changes <- catalog.Event{Type: catalog.EventReloaded, Timestamp: ts, Source: "a.oem", Segments: 2}
	changes <- catalog.Event{Type: catalog.EventFailed, Timestamp: ts, Source: "a.oem", Error: "line 4: boom"}
	close(changes)

	var out bytes.Buffer
	if err := watchLoop(context.Background(), &out, changes); err != nil {
		t.Fatalf("watchLoop: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], "RELOADED") || !strings.Contains(lines[0], "(2 segments)") {
		t.Errorf("line 1 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "FAILED") || !strings.HasSuffix(lines[1], "a.oem: line 4: boom") {
		t.Errorf("line 2 = %q", lines[1])
	}
}

func TestWatchLoop_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan catalog.Event)

	done := make(chan error, 1)
	go func() { done <- watchLoop(ctx, &bytes.Buffer{}, changes) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watchLoop = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watchLoop did not stop after cancel")
	}
}
