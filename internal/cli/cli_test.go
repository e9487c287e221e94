package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// 2026-02-16 10:00:00 UTC = 19:00 JST
const chatTS = 1771236000

func chatItem(ts int64, id, name, uid, text string) string {
	return fmt.Sprintf(`<div class="chat-item danmaku-item" data-uname=%q data-uid=%q data-ts="%d" data-ct=%q data-danmaku=%q></div>`,
		name, uid, ts, id, text)
}

func chatPage(items ...string) string {
	return `<html><body><div class="chat-history-panel"><div id="chat-history-list">` +
		strings.Join(items, "\n") +
		`<div class="chat-item important-prompt-item">someone entered the room</div>` +
		`</div></div></body></html>`
}

// twoMessagePage holds alice at 19:00:00 and bob at 19:01:05 JST.
func twoMessagePage() string {
	return chatPage(
		chatItem(chatTS, "A1", "alice", "1001", "hello"),
		chatItem(chatTS+65, "B2", "bob", "1002", "hi all"),
	)
}

const offlinePage = `<html><body><div class="live-offline">the stream has ended</div></body></html>`

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// resetCLIState points the CLI at an empty config dir and restores every
// flag variable when the test ends.
func resetCLIState(t *testing.T) string {
	t.Helper()

	oldConfigDir, oldVerbose, oldNoColor := configDir, verbose, noColor
	oldFetchSource, oldFetchFormat := fetchSource, fetchFormat
	oldRecordSource, oldRecordCycles, oldRecordInterval := recordSource, recordCycles, recordInterval
	oldRecordWindow, oldRecordCSV, oldRecordNoCSV, oldRecordDB := recordWindow, recordCSV, recordNoCSV, recordDB
	oldKeepWatermark, oldResume, oldContinue := recordKeepWatermark, recordResume, recordContinueOnError
	oldWatch, oldMetricsAddr := recordWatch, recordMetricsAddr
	oldExportDB, oldExportSince, oldExportFormat := exportDB, exportSince, exportFormat
	oldStatsDB, oldStatsFormat := statsDB, statsFormat
	t.Cleanup(func() {
		configDir, verbose, noColor = oldConfigDir, oldVerbose, oldNoColor
		fetchSource, fetchFormat = oldFetchSource, oldFetchFormat
		recordSource, recordCycles, recordInterval = oldRecordSource, oldRecordCycles, oldRecordInterval
		recordWindow, recordCSV, recordNoCSV, recordDB = oldRecordWindow, oldRecordCSV, oldRecordNoCSV, oldRecordDB
		recordKeepWatermark, recordResume, recordContinueOnError = oldKeepWatermark, oldResume, oldContinue
		recordWatch, recordMetricsAddr = oldWatch, oldMetricsAddr
		exportDB, exportSince, exportFormat = oldExportDB, oldExportSince, oldExportFormat
		statsDB, statsFormat = oldStatsDB, oldStatsFormat
	})

	configDir = filepath.Join(t.TempDir(), "config")
	verbose = false
	noColor = true
	fetchSource = sourceFlags{}
	fetchFormat = "terminal"
	recordSource = sourceFlags{}
	recordCycles = -1
	recordInterval = ""
	recordWindow = 0
	recordCSV = ""
	recordNoCSV = false
	recordDB = ""
	recordKeepWatermark = false
	recordResume = false
	recordContinueOnError = false
	recordWatch = false
	recordMetricsAddr = ""
	exportDB, exportSince, exportFormat = "", "", "terminal"
	statsDB, statsFormat = "", "terminal"
	return configDir
}

// writeTestConfig creates configDir/config.yaml.
func writeTestConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create config dir: %v", err)
	}
	writeFile(t, filepath.Join(dir, "config.yaml"), content)
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("open stdout pipe: %v", err)
	}

	os.Stdout = writer
	runErr := fn()
	_ = writer.Close()
	os.Stdout = oldStdout

	out, readErr := io.ReadAll(reader)
	_ = reader.Close()
	if readErr != nil {
		t.Fatalf("read stdout pipe: %v", readErr)
	}
	return string(out), runErr
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()

	if !strings.Contains(got, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, got)
	}
}

func requireNotContains(t *testing.T, got, unwanted string) {
	t.Helper()

	if strings.Contains(got, unwanted) {
		t.Fatalf("expected output not to contain %q, got:\n%s", unwanted, got)
	}
}
