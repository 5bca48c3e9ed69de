package provider

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFile_Send(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	f := NewFile(ProviderConfig{Endpoint: dir})

	res, err := f.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.ProviderMessageID != "file-"+testMessage().ID {
		t.Errorf("ProviderMessageID = %q", res.ProviderMessageID)
	}

	path := res.Metadata["path"]
	if filepath.Dir(path) != dir || !strings.HasSuffix(path, ".eml") {
		t.Errorf("unexpected path %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	for _, want := range []string{"To: mp@example.org", "Subject: Act now", "multipart/alternative"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("file missing %q", want)
		}
	}
}

func TestFile_DefaultDirAndName(t *testing.T) {
	f := NewFile(ProviderConfig{})
	if f.outputDir != defaultOutputDir {
		t.Errorf("outputDir = %q", f.outputDir)
	}
	if f.GetName() != "file" {
		t.Errorf("GetName() = %q", f.GetName())
	}
}

func TestFile_HealthCheck(t *testing.T) {
	f := NewFile(ProviderConfig{Endpoint: filepath.Join(t.TempDir(), "a", "b")})
	if err := f.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
