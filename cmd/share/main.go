package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "share",
	Short: "secretshare CLI",
	Long:  "A CLI for sharing expiring secrets and collecting secrets through exchange requests.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		if cfg, err = loadConfig(configPath()); err != nil {
			printError(err.Error())
		}
		if cfg.Format != "" && !cmd.Flags().Changed("format") {
			outputFormat = cfg.Format
		}
		// Env var overrides are applied in newClient()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json, raw")
	rootCmd.PersistentFlags().StringVar(&outputField, "field", "", "Print only this field (use with -format=raw)")

	rootCmd.AddCommand(secretCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(configCmd())
}

// readContent returns the argument if given, otherwise all of stdin.
func readContent(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}

func promptLine(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()
	return strings.TrimSpace(scanner.Text())
}

// --- secret ---

func secretCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "secret", Short: "Share expiring secrets"}

	createCmd := &cobra.Command{
		Use:   "create [content]",
		Short: "Store a secret (reads stdin when content is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, _ := cmd.Flags().GetInt("expires")
			unit, _ := cmd.Flags().GetString("unit")
			password, _ := cmd.Flags().GetString("password")
			content, err := readContent(args)
			if err != nil {
				printError(err.Error())
				return nil
			}
			client := newClient()
			result, err := client.post("/api/secrets", map[string]any{
				"content":  content,
				"amount":   amount,
				"unit":     unit,
				"password": password,
			})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	createCmd.Flags().Int("expires", 1, "Lifetime amount")
	createCmd.Flags().String("unit", "h", "Lifetime unit: m, h or d")
	createCmd.Flags().String("password", "", "Protect the secret with a password")

	getCmd := &cobra.Command{
		Use:   "get <short-id>",
		Short: "Read a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")
			ask, _ := cmd.Flags().GetBool("ask-password")
			if ask && password == "" {
				password = promptLine("Password: ")
			}
			client := newClient()
			var (
				result map[string]any
				err    error
			)
			if password != "" {
				result, err = client.post(idPath("/api/secrets", args[0], "unlock"), map[string]any{"password": password})
			} else {
				result, err = client.get(idPath("/api/secrets", args[0]))
			}
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	getCmd.Flags().String("password", "", "Password for a protected secret")
	getCmd.Flags().Bool("ask-password", false, "Prompt for the password")

	statusCmd := &cobra.Command{
		Use:   "status <short-id>",
		Short: "Show whether a secret exists and is password protected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get(idPath("/api/secrets", args[0], "status"))
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}

	cmd.AddCommand(createCmd, getCmd, statusCmd)
	return cmd
}

// --- request ---

func requestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "request", Short: "Ask someone to send you a secret"}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an exchange request",
		RunE: func(cmd *cobra.Command, args []string) error {
			period, _ := cmd.Flags().GetInt("period")
			client := newClient()
			result, err := client.post("/api/requests", map[string]any{"period": period})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	createCmd.Flags().Int("period", 60, "Minutes the receiver has after opening the request")

	adminCmd := &cobra.Command{
		Use:   "admin <admin-id>",
		Short: "Collect what the receiver deposited",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get(idPath("/api/requests/admin", args[0]))
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}

	openCmd := &cobra.Command{
		Use:   "open <receiver-id>",
		Short: "Open a request as the receiver (starts its clock)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get(idPath("/api/requests/receive", args[0]))
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}

	respondCmd := &cobra.Command{
		Use:   "respond <receiver-id> [content]",
		Short: "Deposit content into an opened request (reads stdin when content is omitted)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(args[1:])
			if err != nil {
				printError(err.Error())
				return nil
			}
			client := newClient()
			result, err := client.post(idPath("/api/requests/receive", args[0]), map[string]any{"content": content})
			if err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Content delivered.")
			if outputFormat == "json" {
				printResult(result)
			}
			return nil
		},
	}

	cmd.AddCommand(createCmd, adminCmd, openCmd, respondCmd)
	return cmd
}

// --- config ---

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage CLI settings"}

	setCmd := &cobra.Command{
		Use:   "set <address|tls_ca_cert|format> <value>",
		Short: "Persist a CLI setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.set(args[0], args[1]); err != nil {
				printError(err.Error())
				return nil
			}
			if err := saveConfig(configPath(), cfg); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Saved to " + configPath())
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective CLI settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			printResult(map[string]any{"address": cfg.Address, "tls_ca_cert": cfg.TLSCACert, "format": cfg.Format, "path": configPath()})
			return nil
		},
	}

	cmd.AddCommand(setCmd, showCmd)
	return cmd
}
