package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultOutputDir = "./mail_output"

// File writes each message to its own .eml file in a directory.
// Intended for development; messages are never actually delivered.
type File struct {
	outputDir string
}

// NewFile creates a File provider. ProviderConfig.Endpoint is the output
// directory; it defaults to "./mail_output".
func NewFile(cfg ProviderConfig) *File {
	dir := cfg.Endpoint
	if dir == "" {
		dir = defaultOutputDir
	}
	return &File{outputDir: dir}
}

func (f *File) GetName() string { return "file" }

// Send renders the message as MIME and writes it to
// <timestamp>_<message-id>.eml in the output directory.
func (f *File) Send(_ context.Context, msg *Message) (*DeliveryResult, error) {
	if err := os.MkdirAll(f.outputDir, 0o750); err != nil {
		return nil, fmt.Errorf("file: create output dir: %w", err)
	}

	id := msg.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now()

	raw, err := buildMIME(msg, id, now)
	if err != nil {
		return nil, fmt.Errorf("file: build message: %w", err)
	}

	safeID := strings.NewReplacer("/", "_", "\\", "_").Replace(id)
	path := filepath.Join(f.outputDir, fmt.Sprintf("%s_%s.eml", now.Format("20060102_150405"), safeID))
	if err := os.WriteFile(path, raw, 0o640); err != nil {
		return nil, fmt.Errorf("file: write %s: %w", path, err)
	}

	return &DeliveryResult{
		ProviderMessageID: "file-" + id,
		Status:            StatusSent,
		Timestamp:         now,
		Metadata:          map[string]string{"path": path},
	}, nil
}

// HealthCheck verifies the output directory is writable.
func (f *File) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(f.outputDir, 0o750); err != nil {
		return fmt.Errorf("file: output dir not writable: %w", err)
	}
	return nil
}
