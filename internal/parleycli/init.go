// init.go implements the parley init subcommand (scaffold .parley/).
package parleycli

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

//go:embed config.yaml
var initConfig string

// RunInit scaffolds .parley/ (config). If force is true, overwrites an
// existing file.
func RunInit(force bool) {
	cwd, err := os.Getwd()
	if err != nil {
		slog.Error("Cannot get current directory", "error", err)
		os.Exit(1)
	}
	parleyDir := filepath.Join(cwd, ".parley")
	if err := os.MkdirAll(parleyDir, 0750); err != nil {
		slog.Error("Failed to create .parley directory", "error", err)
		os.Exit(1)
	}
	configPath := filepath.Join(parleyDir, "config.yaml")
	if !force {
		if _, err := os.Stat(configPath); err == nil {
			fmt.Printf("  %s already exists (use --force to overwrite)\n", configPath)
			return
		}
	}
	if err := os.WriteFile(configPath, []byte(initConfig), 0644); err != nil {
		slog.Error("Failed to write file", "path", configPath, "error", err)
		os.Exit(1)
	}
	fmt.Printf("  Created %s\n", configPath)
	fmt.Println("Done. Point nats_url at your gateway's NATS server, then run:")
	fmt.Println("  parley hello there")
	fmt.Println("  parley session list")
}
