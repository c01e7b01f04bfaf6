package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRotatingFileWriter(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(logFile, []byte("existing\n"), 0600); err != nil {
		t.Fatal(err)
	}

	writer, err := NewRotatingFileWriter(logFile, 1024, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer writer.Close()

	if writer.size != int64(len("existing\n")) {
		t.Errorf("Expected size of existing file, got %d", writer.size)
	}
	if _, err := writer.Write([]byte("appended\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	content, _ := os.ReadFile(logFile)
	if string(content) != "existing\nappended\n" {
		t.Errorf("Expected appended content, got %q", string(content))
	}
}

func TestRotatingFileWriter_Rotation(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	writer, err := NewRotatingFileWriter(logFile, 50, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer writer.Close()

	firstMsg := strings.Repeat("A", 30) + "\n"
	secondMsg := strings.Repeat("B", 30) + "\n"
	for _, msg := range []string{firstMsg, secondMsg} {
		if _, err := writer.Write([]byte(msg)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if string(content) != secondMsg {
		t.Errorf("Current log content = %q, want %q", string(content), secondMsg)
	}
	backup, err := os.ReadFile(filepath.Join(tmpDir, "test.1.log"))
	if err != nil {
		t.Fatalf("Backup file was not created: %v", err)
	}
	if string(backup) != firstMsg {
		t.Errorf("Backup content = %q, want %q", string(backup), firstMsg)
	}
}

func TestRotatingFileWriter_MaxBackups(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	writer, err := NewRotatingFileWriter(logFile, 20, 2)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer writer.Close()

	msgs := []string{"one\n", "two\n", "three\n", "four\n", "five\n"}
	for _, msg := range msgs {
		if _, err := writer.Write([]byte(strings.Repeat(msg, 4))); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read directory: %v", err)
	}
	if len(files) != 3 {
		t.Errorf("Expected current file and 2 backups, got %d files", len(files))
	}

	tests := []struct {
		name string
		want string
	}{
		{"test.log", "five\n"},
		{"test.1.log", "four\n"},
		{"test.2.log", "three\n"},
	}
	for _, tt := range tests {
		content, err := os.ReadFile(filepath.Join(tmpDir, tt.name))
		if err != nil {
			t.Errorf("Expected %s: %v", tt.name, err)
			continue
		}
		if !strings.HasPrefix(string(content), tt.want) {
			t.Errorf("%s content = %q, want %q repeated", tt.name, string(content), tt.want)
		}
	}
}

func TestRotatingFileWriter_NoBackups(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "test.log")

	writer, err := NewRotatingFileWriter(logFile, 10, 0)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer writer.Close()

	for _, msg := range []string{"first line\n", "second\n"} {
		if _, err := writer.Write([]byte(msg)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	content, _ := os.ReadFile(logFile)
	if string(content) != "second\n" {
		t.Errorf("Expected truncated file, got %q", string(content))
	}
	files, _ := os.ReadDir(tmpDir)
	if len(files) != 1 {
		t.Errorf("Expected no backups, got %d files", len(files))
	}
}

func TestRotatingFileWriter_Closed(t *testing.T) {
	writer, err := NewRotatingFileWriter(filepath.Join(t.TempDir(), "test.log"), 1024, 1)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
	if _, err := writer.Write([]byte("late")); err == nil {
		t.Error("Expected error writing to a closed writer")
	}
}

func TestRotatingFileWriter_BackupName(t *testing.T) {
	tmpDir := t.TempDir()
	writer, err := NewRotatingFileWriter(filepath.Join(tmpDir, "app.log"), 1024, 3)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter failed: %v", err)
	}
	defer writer.Close()

	if got, want := writer.backupName(2), filepath.Join(tmpDir, "app.2.log"); got != want {
		t.Errorf("Backup name = %q, want %q", got, want)
	}
}
