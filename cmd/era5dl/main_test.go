package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunNoArgs(t *testing.T) {
	if code := run(nil); code != ExitInvalidArgs {
		t.Errorf("run() = %d, want %d", code, ExitInvalidArgs)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if code := run([]string{"upload"}); code != ExitInvalidArgs {
		t.Errorf("run(upload) = %d, want %d", code, ExitInvalidArgs)
	}
}

func TestRunHelp(t *testing.T) {
	if code := run([]string{"help"}); code != ExitSuccess {
		t.Errorf("run(help) = %d, want %d", code, ExitSuccess)
	}
}

func TestPlanWithConfig(t *testing.T) {
	path := writeConfig(t, `
years: ["2019", "2020"]
variables: [2m_temperature]
output_dir: /data/era5
`)
	if code := run([]string{"plan", "-config", path}); code != ExitSuccess {
		t.Errorf("plan = %d, want %d", code, ExitSuccess)
	}
}

func TestPlanFlagsOverrideConfig(t *testing.T) {
	path := writeConfig(t, `
years: ["2019"]
variables: [2m_temperature]
`)
	code := run([]string{"plan", "-config", path, "-years", "2021,2022", "-levels", ""})
	if code != ExitSuccess {
		t.Errorf("plan = %d, want %d", code, ExitSuccess)
	}
}

func TestPlanIncompleteConfig(t *testing.T) {
	path := writeConfig(t, `
variables: [2m_temperature]
`)
	if code := run([]string{"plan", "-config", path}); code != ExitInvalidArgs {
		t.Errorf("plan without years = %d, want %d", code, ExitInvalidArgs)
	}
}

func TestPlanMissingConfigFile(t *testing.T) {
	absent := filepath.Join(t.TempDir(), "absent.yaml")
	if code := run([]string{"plan", "-config", absent}); code != ExitConfigError {
		t.Errorf("plan = %d, want %d", code, ExitConfigError)
	}
}

func TestDownloadInvalidChunkSize(t *testing.T) {
	path := writeConfig(t, `
years: ["2020"]
variables: [2m_temperature]
`)
	code := run([]string{"download", "-config", path, "-chunk-size", "huge"})
	if code != ExitInvalidArgs {
		t.Errorf("download = %d, want %d", code, ExitInvalidArgs)
	}
}

func TestDownloadMissingCredentials(t *testing.T) {
	path := writeConfig(t, `
years: ["2020"]
variables: [2m_temperature]
`)
	absent := filepath.Join(t.TempDir(), "absent-credentials.yaml")
	code := run([]string{"download", "-config", path, "-credentials", absent})
	if code != ExitCredentialsError {
		t.Errorf("download = %d, want %d", code, ExitCredentialsError)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"2019", []string{"2019"}},
		{"2019,2020", []string{"2019", "2020"}},
		{" 2019 , , 2020 ", []string{"2019", "2020"}},
	}
	for _, tt := range tests {
		if got := splitList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
