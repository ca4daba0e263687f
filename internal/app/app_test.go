package app

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"github.com/klytics/xlengine/internal/agent"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, k := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY", "XLENGINE_PROVIDER"} {
		t.Setenv(k, "")
	}
	wd, _ := os.Getwd()
	os.Chdir(dir)
	t.Cleanup(func() {
		os.Chdir(wd)
		viper.Reset()
	})
	viper.Reset()
	return dir
}

func TestNewWithoutKey(t *testing.T) {
	isolate(t)
	a, err := New(Overrides{}, io.Discard)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Config.Provider != "gemini" || a.Config.Model != "gemini-1.5-flash" {
		t.Errorf("config = %s/%s", a.Config.Provider, a.Config.Model)
	}
	if agent.Available(a.Agent) || a.Agent.Provider() != "gemini" {
		t.Errorf("agent should be unavailable without a key")
	}
	if !a.Store.RestrictPaths || a.Service == nil {
		t.Errorf("app = %+v", a)
	}
}

func TestNewWithOverrides(t *testing.T) {
	dir := isolate(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("storage:\n  output_dir: results\n  restrict_paths: false\noperations:\n  strict_aggregate: true\n"), 0644)

	a, err := New(Overrides{Provider: "Anthropic", Verbose: true}, io.Discard)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Config.Provider != "anthropic" || a.Config.Model != "claude-sonnet-4-20250514" {
		t.Errorf("config = %s/%s", a.Config.Provider, a.Config.Model)
	}
	if !agent.Available(a.Agent) || a.Agent.Provider() != "anthropic" {
		t.Error("agent should be available")
	}
	if a.Store.OutputDir != "results" || a.Store.RestrictPaths || !a.Dispatcher.StrictAggregate {
		t.Errorf("store = %+v, dispatcher = %+v", a.Store, a.Dispatcher)
	}

	b, err := New(Overrides{Provider: "ollama", Model: "mistral"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if !agent.Available(b.Agent) || b.Config.Model != "mistral" {
		t.Errorf("ollama agent: available=%v model=%s", agent.Available(b.Agent), b.Config.Model)
	}
}
