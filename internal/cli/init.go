package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/chatharvest/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with an example config",
	RunE:  initAction,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig))
	if err != nil {
		return err
	}

	if wrote {
		fmt.Printf("Initialized %s. Edit source.url, then run 'chatharvest record'.\n", configDir)
	} else {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# chatharvest configuration

source:
  # command: render the page with a headless browser (chat is built by scripts)
  # http:    plain GET, only useful when the chat markup is served statically
  # file:    replay a saved snapshot
  mode: command
  url: "https://live.bilibili.com/XXX"
  # command: ["chromium", "--headless", "--no-sandbox", "--dump-dom", "{url}"]
  # user_agent: "Mozilla/5.0"
  # cookie_env: BILIBILI_COOKIE   # may also be set in .env next to this file
  # watch: false                  # file mode only: poll again when the file changes
  timeout: 2m

extract:
  container: "#chat-history-list"
  item: ".chat-item"

poll:
  max_cycles: 10
  interval: 5s
  reference_window: 500
  reset_watermark: true
  keep_history: true
  continue_on_error: false

storage:
  write_csv: true
  csv_path: chatdata.csv
  # db_path: chatharvest.db
  retain_days: 0

privacy:
  anonymize_authors: false
  redact:
    enabled: false
    patterns: []

display:
  utc_offset_hours: 9
  zone_name: JST

# metrics:
#   listen: "127.0.0.1:9464"     # Prometheus /metrics and /health during record
`
