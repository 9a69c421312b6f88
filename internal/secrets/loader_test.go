package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	got, err := Load(Source{Name: "rapidapi key", Value: "inline", File: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-file" {
		t.Fatalf("expected file secret, got %q", got)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	_, err := Load(Source{Name: "embedding key", File: path})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(Source{File: filepath.Join(t.TempDir(), "absent")})
	if err == nil || errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestLoadFallsBackToEnv(t *testing.T) {
	t.Setenv("CAREERLENS_TEST_SECRET", " env-value ")

	got, err := Load(Source{Name: "key", Env: "CAREERLENS_TEST_SECRET"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "env-value" {
		t.Fatalf("expected env secret, got %q", got)
	}

	got, err = Load(Source{Name: "key", Value: "inline", Env: "CAREERLENS_TEST_SECRET"})
	if err != nil || got != "inline" {
		t.Fatalf("expected inline value to win, got %q (%v)", got, err)
	}
}

func TestLoadNotConfigured(t *testing.T) {
	t.Setenv("CAREERLENS_TEST_SECRET", "")

	for _, src := range []Source{
		{},
		{Value: "   "},
		{Env: "CAREERLENS_TEST_SECRET"},
	} {
		if _, err := Load(src); !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("expected ErrNotConfigured for %+v, got %v", src, err)
		}
	}
}

func TestOptional(t *testing.T) {
	got, err := Optional(Source{Name: "gemini key"})
	if err != nil || got != "" {
		t.Fatalf("expected empty optional secret, got %q (%v)", got, err)
	}
}
