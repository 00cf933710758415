package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/atendezap/atendezap/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive first-run setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard()
		},
	}
}

func runOnboard() error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	port := strconv.Itoa(cfg.Gateway.Port)
	knowledgeEnabled := cfg.Knowledge.Enabled

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Assistant name").
				Description("Shown to customers in every reply").
				Value(&cfg.Agent.Name).
				Validate(required("assistant name")),
			huh.NewInput().
				Title("Company name").
				Value(&cfg.Agent.CompanyName).
				Validate(required("company name")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Evolution API URL").
				Placeholder("http://localhost:8080").
				Value(&cfg.WhatsApp.BaseURL).
				Validate(required("evolution URL")),
			huh.NewInput().
				Title("Evolution instance name").
				Value(&cfg.WhatsApp.Instance).
				Validate(required("instance name")),
			huh.NewInput().
				Title("Webhook port").
				Value(&port).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 1 || n > 65535 {
						return fmt.Errorf("enter a port between 1 and 65535")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the qdrant knowledge base?").
				Value(&knowledgeEnabled),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("onboarding aborted: %w", err)
	}

	cfg.Gateway.Port, _ = strconv.Atoi(port)
	cfg.Knowledge.Enabled = knowledgeEnabled

	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n\n", cfgPath)
	fmt.Println("Secrets are read from the environment, never from the config file:")
	fmt.Println("  export ATENDEZAP_OPENAI_API_KEY=...     # model provider")
	fmt.Println("  export ATENDEZAP_EVOLUTION_API_KEY=...  # Evolution API")
	fmt.Println("  export ATENDEZAP_WEBHOOK_TOKEN=...      # webhook auth (optional)")
	fmt.Println("  export ATENDEZAP_POSTGRES_DSN=...       # managed mode (optional)")
	fmt.Println("\nThen run: atendezap serve")
	return nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}
