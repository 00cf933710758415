package cmd

import (
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/atendezap/atendezap/internal/config"
	"github.com/atendezap/atendezap/internal/store/pg"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("atendezap doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Agent:")
	fmt.Printf("    %-12s %s (%s)\n", "Persona:", cfg.Agent.Name, cfg.Agent.CompanyName)
	fmt.Printf("    %-12s %s\n", "Model:", cfg.Provider.Model)

	fmt.Println()
	fmt.Println("  Provider:")
	checkSecret("API key", cfg.Provider.APIKey, "ATENDEZAP_OPENAI_API_KEY")
	fmt.Printf("    %-12s %s\n", "Base URL:", cfg.Provider.BaseURL)

	fmt.Println()
	fmt.Println("  WhatsApp:")
	checkSecret("API key", cfg.WhatsApp.APIKey, "ATENDEZAP_EVOLUTION_API_KEY")
	if cfg.WhatsApp.Transport == "bridge" {
		fmt.Printf("    %-12s bridge (%s)\n", "Transport:", cfg.WhatsApp.BridgeURL)
	} else if cfg.WhatsApp.BaseURL == "" {
		fmt.Printf("    %-12s (evolution URL not configured)\n", "Transport:")
	} else {
		fmt.Printf("    %-12s %s", "Evolution:", cfg.WhatsApp.BaseURL)
		checkHTTP(cfg.WhatsApp.BaseURL)
	}

	fmt.Println()
	fmt.Println("  Database:")
	if cfg.IsManagedMode() {
		fmt.Printf("    %-12s postgres\n", "Backend:")
		checkPostgres(cfg.Database.PostgresDSN)
	} else {
		fmt.Printf("    %-12s sqlite\n", "Backend:")
		dir := cfg.StatePath()
		fmt.Printf("    %-12s %s", "State dir:", dir)
		if _, err := os.Stat(dir); err != nil {
			fmt.Println(" (will be created)")
		} else {
			fmt.Println(" (OK)")
		}
	}

	if cfg.Knowledge.Enabled {
		fmt.Println()
		fmt.Println("  Knowledge base:")
		addr := fmt.Sprintf("%s:%d", cfg.Knowledge.QdrantHost, cfg.Knowledge.QdrantPort)
		fmt.Printf("    %-12s %s", "Qdrant:", addr)
		checkTCP(addr)
		fmt.Printf("    %-12s %s\n", "Collection:", cfg.Knowledge.Collection)
	}

	if cfg.Scheduling.CalendarURL != "" {
		fmt.Println()
		fmt.Println("  Scheduling:")
		fmt.Printf("    %-12s %s", "Calendar:", cfg.Scheduling.CalendarURL)
		checkHTTP(cfg.Scheduling.CalendarURL)
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkSecret(label, value, envVar string) {
	if value == "" {
		fmt.Printf("    %-12s (not set — export %s)\n", label+":", envVar)
		return
	}
	masked := value
	if len(masked) > 8 {
		masked = masked[:4] + strings.Repeat("*", len(masked)-8) + masked[len(masked)-4:]
	} else {
		masked = "***"
	}
	fmt.Printf("    %-12s %s\n", label+":", masked)
}

func checkHTTP(url string) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Printf(" (UNREACHABLE: %s)\n", err)
		return
	}
	resp.Body.Close()
	fmt.Printf(" (reachable, %d)\n", resp.StatusCode)
}

func checkTCP(addr string) {
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		fmt.Printf(" (UNREACHABLE: %s)\n", err)
		return
	}
	conn.Close()
	fmt.Println(" (reachable)")
}

func checkPostgres(dsn string) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	fmt.Printf("    %-12s connected\n", "Status:")

	s, err := pg.CheckSchema(db)
	if err != nil {
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
		return
	}
	switch {
	case s.Dirty:
		fmt.Printf("    %-12s v%d (DIRTY — run: atendezap migrate force %d)\n", "Schema:", s.CurrentVersion, s.CurrentVersion-1)
	case s.Compatible:
		fmt.Printf("    %-12s v%d (up to date)\n", "Schema:", s.CurrentVersion)
	case s.NeedsMigration:
		fmt.Printf("    %-12s v%d (run: atendezap migrate up)\n", "Schema:", s.CurrentVersion)
	default:
		fmt.Printf("    %-12s v%d (binary too old, requires v%d)\n", "Schema:", s.CurrentVersion, s.RequiredVersion)
	}
}
