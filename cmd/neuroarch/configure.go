package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fruitflybrain/neuroarch/internal/config"
)

var configureCheck bool

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Interactive setup of the graph store connection",
	Long: `Walk through the Neo4j connection settings and store the password in the
OS keychain. The config file never holds the password.

With --check, print the effective configuration and validation results
without prompting.`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().BoolVar(&configureCheck, "check", false, "validate the current configuration and exit")
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".neuroarch", "config.yaml")
}

func runConfigure(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	km := config.NewKeyringManager()
	mode := config.DetectMode()

	if configureCheck || !mode.AllowsInteractivePrompts() {
		return printConfigCheck(cmd, km, mode)
	}

	fmt.Fprintln(out, "neuroarch configuration")
	fmt.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintln(out)

	reader := bufio.NewReader(cmd.InOrStdin())
	ask := func(label, current string) string {
		fmt.Fprintf(out, "%s [%s]: ", label, current)
		line, _ := reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
		return current
	}

	fmt.Fprintln(out, "Step 1/3: Neo4j connection")
	cfg.Store.Backend = config.BackendNeo4j
	cfg.Store.URI = ask("URI", cfg.Store.URI)
	cfg.Store.User = ask("User", cfg.Store.User)
	cfg.Store.Database = ask("Database", cfg.Store.Database)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Step 2/3: Password")
	if !km.IsAvailable() {
		fmt.Fprintln(out, "⚠️  OS keychain not available; set NEO4J_PASSWORD in the environment instead.")
	} else {
		source := km.PasswordSource(cfg)
		change := true
		if source != "none" {
			fmt.Fprintf(out, "Current: %s (from %s)\n", config.MaskSecret(cfg.Store.Password), source)
			change = strings.EqualFold(ask("Replace it? (y/N)", "n"), "y")
		}
		if change {
			password, err := readPassword(cmd, reader, "Password: ")
			if err != nil {
				return err
			}
			if password != "" {
				if err := km.SaveStorePassword(password); err != nil {
					fmt.Fprintf(out, "⚠️  Failed to save to keychain: %v\n", err)
				} else {
					fmt.Fprintln(out, "✅ Password saved to OS keychain")
					cfg.Store.Password = password
				}
			}
		}
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Step 3/3: Save configuration")
	path := configPath()
	if !strings.EqualFold(ask("Save to "+path+"? (Y/n)", "y"), "y") {
		fmt.Fprintln(out, "Not saved.")
		return nil
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ Configuration saved to %s\n", path)

	result := cfg.ValidateWithMode(mode)
	for _, w := range result.Warnings {
		fmt.Fprintf(out, "⚠️  %s\n", w)
	}
	return result.Err()
}

// readPassword reads without echo from a terminal, or a plain line otherwise.
func readPassword(cmd *cobra.Command, reader *bufio.Reader, prompt string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", nil
	}
	return strings.TrimSpace(line), nil
}

func printConfigCheck(cmd *cobra.Command, km *config.KeyringManager, mode config.DeploymentMode) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Mode:      %s (%s)\n", mode, mode.Description())
	fmt.Fprintf(out, "Store:     %s %s (user %s, database %s)\n", cfg.Store.Backend, cfg.Store.URI, cfg.Store.User, cfg.Store.Database)
	fmt.Fprintf(out, "Password:  %s (from %s)\n", config.MaskSecret(cfg.Store.Password), km.PasswordSource(cfg))
	fmt.Fprintf(out, "Snapshots: %s %s\n", cfg.Snapshot.Backend, cfg.Snapshot.Path)
	fmt.Fprintf(out, "Cache:     enabled=%t redis=%q ttl=%s\n", cfg.Cache.Enabled, cfg.Cache.RedisAddr, cfg.Cache.TTL)
	fmt.Fprintf(out, "Notify:    enabled=%t %s %s\n", cfg.Notify.Enabled, cfg.Notify.NATSURL, cfg.Notify.Subject)

	result := cfg.ValidateWithMode(mode)
	for _, w := range result.Warnings {
		fmt.Fprintf(out, "⚠️  %s\n", w)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(out, "❌ %s\n", e)
	}
	if result.Valid && !result.HasErrors() {
		fmt.Fprintln(out, "✅ Configuration is valid")
	}
	return result.Err()
}
