package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// configKey describes a single configuration value.
type configKey struct {
	Key    string
	Desc   string
	Secret bool
	Prefix string // expected prefix for validation, empty = no check
}

// allConfigKeys lists every configurable value in display order.
var allConfigKeys = []configKey{
	{"ANTHROPIC_API_KEY", "Anthropic API key (questions and scoring)", true, "sk-ant-"},
	{"OPENAI_API_KEY", "OpenAI API key (speech, and questions if no Anthropic key)", true, "sk-"},
	{"TELEINTERVIEW_LLM_PROVIDER", "LLM provider (anthropic, openai, or empty for auto)", false, ""},
	{"TELEINTERVIEW_LLM_MODEL", "LLM model override", false, ""},
	{"TELEINTERVIEW_TTS_VOICE", "Voice used to read questions aloud", false, ""},
	{"TELEINTERVIEW_TIMING_FILE", "YAML timing profile", false, ""},
	{"SLACK_BOT_TOKEN", "Slack Bot User OAuth Token (xoxb-...)", true, "xoxb-"},
	{"SLACK_CHANNEL", "Slack channel for finished-interview summaries", false, ""},
	{"TELEGRAM_BOT_TOKEN", "Telegram bot token (from @BotFather)", true, ""},
	{"TELEGRAM_CHAT_ID", "Telegram chat ID for finished-interview summaries", false, ""},
}

var validProviders = map[string]bool{"": true, "anthropic": true, "openai": true}

// ---------------------------------------------------------------------------
// Cobra commands
// ---------------------------------------------------------------------------

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage TeleInterview configuration",
	Long: `Manage TeleInterview configuration (API keys, notifications, timing).

Configuration is stored in ~/.teleinterview/config.env and can be overridden
by environment variables.

  teleinterview config setup              Interactive setup wizard
  teleinterview config set KEY VALUE      Set a single config value
  teleinterview config show               Show current configuration
  teleinterview config path               Print config file path`,
}

var (
	setupNonInteractive bool
	setupAnthropicKey   string
	setupOpenAIKey      string
)

var configSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Long: `Guided setup for API keys and optional notifications.

Non-interactive mode for CI/scripting:
  teleinterview config setup --non-interactive --openai-key=sk-xxx`,
	RunE: runConfigSetup,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a config value",
	Long: `Set a single configuration value. Example:
  teleinterview config set SLACK_CHANNEL C0123456789`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display all configured values. Secrets are masked.",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(configFilePath())
		return nil
	},
}

func init() {
	configSetupCmd.Flags().BoolVar(&setupNonInteractive, "non-interactive", false, "Run without prompts")
	configSetupCmd.Flags().StringVar(&setupAnthropicKey, "anthropic-key", "", "Anthropic API key (non-interactive mode)")
	configSetupCmd.Flags().StringVar(&setupOpenAIKey, "openai-key", "", "OpenAI API key (non-interactive mode)")

	configCmd.AddCommand(configSetupCmd, configSetCmd, configShowCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// ---------------------------------------------------------------------------
// Config file helpers
// ---------------------------------------------------------------------------

// configFilePath returns ~/.teleinterview/config.env.
func configFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".teleinterview", "config.env")
	}
	return filepath.Join(home, ".teleinterview", "config.env")
}

// loadConfigFile reads key=value pairs from the config file.
func loadConfigFile() (map[string]string, error) {
	values := make(map[string]string)

	f, err := os.Open(configFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			values[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return values, scanner.Err()
}

// saveConfigFile writes key=value pairs to the config file, known keys first.
func saveConfigFile(values map[string]string) error {
	path := configFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	fmt.Fprintln(f, "# TeleInterview configuration")
	fmt.Fprintln(f, "# Managed by: teleinterview config")
	fmt.Fprintln(f, "# Environment variables override these values.")
	fmt.Fprintln(f)

	written := make(map[string]bool)
	for _, ck := range allConfigKeys {
		if v, ok := values[ck.Key]; ok && v != "" {
			fmt.Fprintf(f, "%s=%s\n", ck.Key, v)
			written[ck.Key] = true
		}
	}

	var extras []string
	for k := range values {
		if !written[k] && values[k] != "" {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	for _, k := range extras {
		fmt.Fprintf(f, "%s=%s\n", k, values[k])
	}
	return nil
}

// effectiveValue returns the current value for a key, preferring env vars over config file.
func effectiveValue(key string, fileValues map[string]string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fileValues[key]
}

// maskSecret shows only the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 12 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

func findKey(key string) configKey {
	for _, ck := range allConfigKeys {
		if ck.Key == key {
			return ck
		}
	}
	return configKey{Key: key}
}

// validateValue checks a value against the rules for its key.
func validateValue(ck configKey, value string) error {
	if ck.Prefix != "" && !strings.HasPrefix(value, ck.Prefix) {
		return fmt.Errorf("expected prefix %q", ck.Prefix)
	}
	switch ck.Key {
	case "TELEINTERVIEW_LLM_PROVIDER":
		if !validProviders[value] {
			return fmt.Errorf("unknown provider %q (anthropic or openai)", value)
		}
	case "TELEGRAM_CHAT_ID":
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return fmt.Errorf("chat ID must be an integer")
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Interactive helpers
// ---------------------------------------------------------------------------

type wizard struct {
	reader     *bufio.Reader
	fileValues map[string]string
	changed    int
}

func newWizard(fileValues map[string]string) *wizard {
	return &wizard{
		reader:     bufio.NewReader(os.Stdin),
		fileValues: fileValues,
	}
}

// askYesNo asks a yes/no question; Enter picks defaultYes.
func (w *wizard) askYesNo(prompt string, defaultYes bool) (bool, error) {
	hint := "[Y/n]"
	if !defaultYes {
		hint = "[y/N]"
	}
	fmt.Printf("  %s %s ", prompt, hint)
	input, err := w.reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return defaultYes, nil
	}
	return input == "y" || input == "yes", nil
}

// askValue prompts for a single config value, re-asking until it validates
// or the user presses Enter.
func (w *wizard) askValue(ck configKey) error {
	current := effectiveValue(ck.Key, w.fileValues)

	status := "\033[31m✗ not set\033[0m"
	if current != "" {
		shown := current
		if ck.Secret {
			shown = maskSecret(current)
		}
		status = fmt.Sprintf("\033[32m✓ set\033[0m (%s)", shown)
	}
	fmt.Printf("  %s  %s\n", ck.Key, status)

	for {
		fmt.Print("  Paste value (Enter to keep): ")
		input, err := w.reader.ReadString('\n')
		if err != nil {
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			return nil
		}
		if err := validateValue(ck, input); err != nil {
			fmt.Printf("  \033[33m!\033[0m  %v. Try again or press Enter to skip.\n", err)
			continue
		}
		w.fileValues[ck.Key] = input
		w.changed++
		fmt.Printf("  \033[32m✓ saved\033[0m\n")
		return nil
	}
}

// ---------------------------------------------------------------------------
// Setup wizard
// ---------------------------------------------------------------------------

func runConfigSetup(cmd *cobra.Command, args []string) error {
	fileValues, err := loadConfigFile()
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	if setupNonInteractive {
		return runNonInteractiveSetup(fileValues)
	}

	w := newWizard(fileValues)

	fmt.Println()
	fmt.Println("  \033[1mTeleInterview Setup\033[0m")
	fmt.Println("  ───────────────────")
	fmt.Println("  Press Enter at any prompt to keep the current value.")
	fmt.Println()

	// ── Step 1: LLM ──────────────────────────────────────────────────────
	fmt.Println("  \033[1mStep 1 of 3 — LLM API Key\033[0m")
	fmt.Println("  Questions and scoring use Anthropic (preferred) or OpenAI.")
	fmt.Println("  Without a key every question is a generic fallback and answers score 5.")
	fmt.Println()
	if err := w.askValue(findKey("ANTHROPIC_API_KEY")); err != nil {
		return err
	}
	fmt.Println()
	if err := w.askValue(findKey("OPENAI_API_KEY")); err != nil {
		return err
	}
	if effectiveValue("OPENAI_API_KEY", w.fileValues) == "" {
		fmt.Println()
		fmt.Println("  \033[33m!\033[0m  No OpenAI key: questions will not be spoken and answers will not be transcribed.")
	}
	fmt.Println()

	// ── Step 2: Slack ────────────────────────────────────────────────────
	fmt.Println("  \033[1mStep 2 of 3 — Slack (optional)\033[0m")
	fmt.Println("  Post a summary to a channel when an interview finishes.")
	fmt.Println()
	doSlack, err := w.askYesNo("Set up Slack?", false)
	if err != nil {
		return err
	}
	if doSlack {
		fmt.Println()
		if err := w.askValue(findKey("SLACK_BOT_TOKEN")); err != nil {
			return err
		}
		fmt.Println()
		if err := w.askValue(findKey("SLACK_CHANNEL")); err != nil {
			return err
		}
	}
	fmt.Println()

	// ── Step 3: Telegram ─────────────────────────────────────────────────
	fmt.Println("  \033[1mStep 3 of 3 — Telegram (optional)\033[0m")
	fmt.Println("  Message a chat when an interview finishes.")
	fmt.Println()
	doTelegram, err := w.askYesNo("Set up Telegram?", false)
	if err != nil {
		return err
	}
	if doTelegram {
		fmt.Println()
		if err := w.askValue(findKey("TELEGRAM_BOT_TOKEN")); err != nil {
			return err
		}
		fmt.Println()
		if err := w.askValue(findKey("TELEGRAM_CHAT_ID")); err != nil {
			return err
		}
	}
	fmt.Println()

	if err := saveConfigFile(w.fileValues); err != nil {
		return err
	}

	fmt.Println("  \033[1mConfiguration Summary\033[0m")
	fmt.Println("  ────────────────────")
	printSummaryLine("Anthropic", effectiveValue("ANTHROPIC_API_KEY", w.fileValues) != "")
	printSummaryLine("OpenAI", effectiveValue("OPENAI_API_KEY", w.fileValues) != "")
	printSummaryLine("Slack", effectiveValue("SLACK_BOT_TOKEN", w.fileValues) != "" &&
		effectiveValue("SLACK_CHANNEL", w.fileValues) != "")
	printSummaryLine("Telegram", effectiveValue("TELEGRAM_BOT_TOKEN", w.fileValues) != "" &&
		effectiveValue("TELEGRAM_CHAT_ID", w.fileValues) != "")
	fmt.Println()
	fmt.Printf("  Saved to %s (%d changed)\n", configFilePath(), w.changed)
	fmt.Println()
	fmt.Println("  Start the server with: teleinterview serve")
	fmt.Println()
	return nil
}

func runNonInteractiveSetup(fileValues map[string]string) error {
	if setupAnthropicKey == "" && setupOpenAIKey == "" {
		return fmt.Errorf("--anthropic-key or --openai-key is required in non-interactive mode")
	}
	if setupAnthropicKey != "" {
		if err := validateValue(findKey("ANTHROPIC_API_KEY"), setupAnthropicKey); err != nil {
			return fmt.Errorf("ANTHROPIC_API_KEY: %w", err)
		}
		fileValues["ANTHROPIC_API_KEY"] = setupAnthropicKey
	}
	if setupOpenAIKey != "" {
		if err := validateValue(findKey("OPENAI_API_KEY"), setupOpenAIKey); err != nil {
			return fmt.Errorf("OPENAI_API_KEY: %w", err)
		}
		fileValues["OPENAI_API_KEY"] = setupOpenAIKey
	}
	if err := saveConfigFile(fileValues); err != nil {
		return err
	}
	fmt.Printf("Configuration saved to %s\n", configFilePath())
	return nil
}

func printSummaryLine(name string, ok bool) {
	mark := "\033[31m✗\033[0m"
	if ok {
		mark = "\033[32m✓\033[0m"
	}
	fmt.Printf("  %-14s %s\n", name, mark)
}

// ---------------------------------------------------------------------------
// set / show
// ---------------------------------------------------------------------------

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := strings.ToUpper(args[0]), strings.TrimSpace(args[1])

	if err := validateValue(findKey(key), value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	fileValues, err := loadConfigFile()
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	fileValues[key] = value
	if err := saveConfigFile(fileValues); err != nil {
		return err
	}
	fmt.Printf("Set %s in %s\n", key, configFilePath())
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	fileValues, err := loadConfigFile()
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	fmt.Printf("Config file: %s\n\n", configFilePath())
	for _, ck := range allConfigKeys {
		v := effectiveValue(ck.Key, fileValues)
		source := ""
		if os.Getenv(ck.Key) != "" {
			source = " (env)"
		}
		switch {
		case v == "":
			v = "(not set)"
		case ck.Secret:
			v = maskSecret(v)
		}
		fmt.Printf("  %-28s %s%s\n", ck.Key, v, source)
	}
	return nil
}
