package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kokonet/kokobot/internal/bus"
	"github.com/kokonet/kokobot/internal/config"
	"github.com/kokonet/kokobot/internal/gateway"
	"github.com/kokonet/kokobot/internal/memory"
)

var rootCmd = &cobra.Command{
	Use:   "kokobot",
	Short: "kokobot - companion chat bot with persistent memory",
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the bot (channels + maintenance jobs)",
	RunE:  runGateway,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the bot in a local REPL",
	RunE:  runChat,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show kokobot status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(gatewayCmd, chatCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'kokobot onboard' or set KOKOBOT_API_KEY / GROQ_API_KEY")
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

// ChatOptions allow injecting IO in tests.
type ChatOptions struct {
	Stdin  io.Reader
	Stdout io.Writer
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'kokobot onboard' or set KOKOBOT_API_KEY / GROQ_API_KEY")
	}
	// The REPL talks straight to the core; no channels needed.
	cfg.Channels = config.ChannelsConfig{}

	return runChatWithOptions(cfg, ChatOptions{})
}

func runChatWithOptions(cfg *config.Config, opts ChatOptions) error {
	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := gw.Bus()
	b.SubscribeOutbound("cli", func(msg bus.OutboundMessage) {
		fmt.Fprintln(stdout, msg.Content)
	})
	go b.DispatchOutbound(ctx)

	fmt.Fprintln(stdout, "kokobot chat (type 'exit' to quit)")
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		gw.HandleInbound(ctx, bus.InboundMessage{
			Channel:   "cli",
			SenderID:  "cli",
			ChatID:    "cli",
			Content:   input,
			Timestamp: time.Now(),
		})
		// Give the dispatcher a beat to flush the reply.
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key\n", cfgPath)
	fmt.Println("  2. Or set KOKOBOT_API_KEY / GROQ_API_KEY")
	fmt.Println("  3. Run 'kokobot chat' to test")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Model: %s\n", cfg.Provider.Model)
	if cfg.Provider.APIKey != "" && len(cfg.Provider.APIKey) > 8 {
		masked := cfg.Provider.APIKey[:4] + "..." + cfg.Provider.APIKey[len(cfg.Provider.APIKey)-4:]
		fmt.Printf("API Key: %s\n", masked)
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set")
	}
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Printf("WebUI: enabled=%v\n", cfg.Channels.WebUI.Enabled)
	fmt.Printf("Memory file: %s\n", config.MemoryPath(cfg))

	store, err := memory.NewStore(config.MemoryPath(cfg))
	if err != nil {
		fmt.Printf("Memory: error (%v)\n", err)
		return nil
	}
	fmt.Printf("Known users: %d\n", store.Len())

	return nil
}
