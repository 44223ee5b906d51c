package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"mirrorbot/internal/config"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your mirrorbot installation",
		Long: `Verifies that mirrorbot's configuration, tokens, journal database, and
network reachability are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("mirrorbot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				failed++
				fmt.Printf("\nRun 'mirrorbot init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Channel mapping populated
			if n := len(cfg.Relay.ChannelMapping); n == 0 {
				printWarn("Channel mapping", "empty; nothing will be mirrored until mappings are added")
				warned++
			} else {
				printPass("Channel mapping", fmt.Sprintf("%d channel(s)", n))
				passed++
			}

			// 4. Journal database writable
			if cfg.Journal.Enabled {
				dbPath := config.ExpandPath(cfg.Journal.DBPath)
				if err := checkDatabase(dbPath); err != nil {
					printFail("Journal database", err.Error())
					failed++
				} else {
					printPass("Journal database", dbPath)
					passed++
				}
			} else {
				printWarn("Journal database", "disabled; history and relay counts unavailable")
				warned++
			}

			// 5. Discord API reachable
			if err := checkDiscordAPI(); err != nil {
				printWarn("Discord API", fmt.Sprintf("unreachable: %v", err))
				warned++
			} else {
				printPass("Discord API", "reachable")
				passed++
			}

			// 6. Metrics port free
			if cfg.Metrics.Enabled {
				if err := checkPort(cfg.Metrics.Port); err != nil {
					printWarn("Metrics port", fmt.Sprintf("port %d may be in use: %v", cfg.Metrics.Port, err))
					warned++
				} else {
					printPass("Metrics port", fmt.Sprintf(":%d available", cfg.Metrics.Port))
					passed++
				}
			}

			// 7. Log file writable
			if cfg.General.LogFile != "" {
				dir := filepath.Dir(config.ExpandPath(cfg.General.LogFile))
				if err := os.MkdirAll(dir, 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running mirrorbot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nmirrorbot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! mirrorbot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkDiscordAPI() error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("https://discord.com/api/v10/gateway")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
