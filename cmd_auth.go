package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/minios-linux/doclate/backend"
	"github.com/minios-linux/doclate/i18n"
	"github.com/minios-linux/doclate/settings"
)

// ---------------------------------------------------------------------------
// auth
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage backend credentials",
		Long: `Manage API keys and endpoints stored for each backend.

Keys are kept in $XDG_DATA_HOME/doclate/auth.json with mode 0600 and are
used when neither --api-key nor DOCLATE_API_KEY is set.

Examples:
  doclate auth login                     Interactive backend selection
  doclate auth login --backend openai    Store an OpenAI API key
  doclate auth login --backend ollama    Store a custom Ollama endpoint
  doclate auth logout --backend groq     Remove the Groq key
  doclate auth logout                    Remove all credentials
  doclate auth list                      Show stored credentials`,
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthListCmd(),
	)

	return cmd
}

// authHelp is shown during login.
var authHelp = map[string]string{
	backend.OpenAI:     "https://platform.openai.com/api-keys",
	backend.Groq:       "https://console.groq.com/keys",
	backend.OpenRouter: "https://openrouter.ai/keys",
	backend.Gemini:     "https://aistudio.google.com/apikey",
}

func newAuthLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store credentials for a backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewScanner(os.Stdin)
			id := cmd.Flag("backend").Value.String()
			if id == "" {
				var err error
				if id, err = chooseBackend(in, os.Stderr); err != nil {
					return err
				}
			}
			return authLogin(in, os.Stderr, strings.ToLower(id))
		},
	}
}

// chooseBackend shows a numbered menu of backends and reads a choice.
func chooseBackend(in *bufio.Scanner, out io.Writer) (string, error) {
	names := backend.Names()
	defaults := backend.Defaults()

	fmt.Fprintf(out, "\n%s%s%s\n", colorBlue, i18n.T("Select a backend"), colorReset)
	fmt.Fprintln(out, strings.Repeat("─", 60))
	for i, id := range names {
		fmt.Fprintf(out, "  %d) %-14s %s\n", i+1, id, defaults[id].Name)
	}
	fmt.Fprintf(out, "\n  %s ", i18n.T("Choice:"))

	line, ok := readLine(in)
	if !ok {
		return "", fmt.Errorf("%s", i18n.T("no input received"))
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(names) {
		return "", fmt.Errorf("invalid choice %q", line)
	}
	return names[n-1], nil
}

// authLogin asks for the credentials of backend id and stores them.
func authLogin(in *bufio.Scanner, out io.Writer, id string) error {
	defaults, ok := backend.Defaults()[id]
	if !ok {
		return fmt.Errorf("unknown backend %q (known: %s)", id, strings.Join(backend.Names(), ", "))
	}

	fmt.Fprintf(out, "\n%s%s%s\n", colorBlue, defaults.Name, colorReset)
	fmt.Fprintln(out, strings.Repeat("─", 60))
	if url := authHelp[id]; url != "" {
		fmt.Fprintf(out, "  %s %s%s%s\n\n", i18n.T("Get your API key from:"), colorGreen, url, colorReset)
	}

	info := settings.Get(id)
	if info == nil {
		info = &settings.Info{Type: "api"}
	}

	if id == backend.CustomOpenAI || id == backend.Ollama {
		current := info.BaseURL
		if current == "" {
			current = defaults.BaseURL
		}
		if v, ok := prompt(in, out, i18n.T("Endpoint"), current); ok {
			info.BaseURL = v
		}
		if info.BaseURL == "" {
			return fmt.Errorf("%s", i18n.T("an endpoint is required"))
		}
		if v, ok := prompt(in, out, i18n.T("Model"), info.Model); ok {
			info.Model = v
		}
	}

	if backend.NeedsAPIKey(id) {
		existing := info.Key
		if existing != "" {
			fmt.Fprintf(out, "  %s %s%s%s\n", i18n.T("Current key:"), colorYellow, settings.MaskKey(existing), colorReset)
			fmt.Fprintf(out, "  %s ", i18n.T("Enter new key to replace, or press Enter to keep:"))
		} else {
			fmt.Fprintf(out, "  %s ", i18n.T("Enter API key:"))
		}
		key, ok := readLine(in)
		if !ok {
			return fmt.Errorf("%s", i18n.T("no input received"))
		}
		switch {
		case key != "":
			info.Key = key
		case existing == "":
			return fmt.Errorf("%s", i18n.T("no API key provided"))
		}
	}

	info.Type = "api"
	if err := settings.Set(id, info); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	logSuccess(i18n.T("%s credentials saved"), defaults.Name)
	fmt.Fprintf(out, "\n  doclate translate <type> <document> --to de --backend %s\n\n", id)
	return nil
}

// prompt reads a value, keeping current when the answer is empty.
func prompt(in *bufio.Scanner, out io.Writer, label, current string) (string, bool) {
	if current != "" {
		fmt.Fprintf(out, "  %s [%s]: ", label, current)
	} else {
		fmt.Fprintf(out, "  %s: ", label)
	}
	v, ok := readLine(in)
	if !ok || v == "" {
		return current, current != ""
	}
	return v, true
}

func readLine(in *bufio.Scanner) (string, bool) {
	if !in.Scan() {
		return "", false
	}
	return strings.TrimSpace(in.Text()), true
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		Long: `Remove stored credentials for one backend (--backend) or for all.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.ToLower(cmd.Flag("backend").Value.String())
			if id == "" {
				if err := settings.RemoveAll(); err != nil {
					return fmt.Errorf("removing credentials: %w", err)
				}
				logSuccess("%s", i18n.T("All stored credentials removed"))
				return nil
			}
			if settings.Get(id) == nil {
				logWarning(i18n.T("No credentials stored for %s"), id)
				return nil
			}
			if err := settings.Remove(id); err != nil {
				return fmt.Errorf("removing %s credentials: %w", id, err)
			}
			logSuccess(i18n.T("%s credentials removed"), id)
			return nil
		},
	}
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored credentials",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printCredentials(os.Stderr, settings.Load(), os.Getenv("DOCLATE_API_KEY"))
		},
	}
}

// printCredentials writes the credential table. Keys are always masked.
func printCredentials(out io.Writer, store settings.Store, envKey string) {
	fmt.Fprintf(out, "\n%s%s%s\n", colorBlue, i18n.T("Stored Credentials"), colorReset)
	fmt.Fprintln(out, strings.Repeat("─", 60))

	for _, id := range backend.Names() {
		info := store[id]
		switch {
		case info != nil && info.Key != "":
			fmt.Fprintf(out, "  %-14s %s%s%s (key: %s)\n", id, colorGreen, i18n.T("configured"), colorReset, settings.MaskKey(info.Key))
		case info != nil && info.BaseURL != "":
			fmt.Fprintf(out, "  %-14s %s%s%s\n", id, colorGreen, i18n.T("configured"), colorReset)
		case !backend.NeedsAPIKey(id):
			fmt.Fprintf(out, "  %-14s %s\n", id, i18n.T("no key needed"))
		default:
			fmt.Fprintf(out, "  %-14s %s%s%s\n", id, colorRed, i18n.T("not configured"), colorReset)
		}
		if info != nil && info.BaseURL != "" {
			fmt.Fprintf(out, "  %14s endpoint: %s\n", "", info.BaseURL)
		}
		if info != nil && info.Model != "" {
			fmt.Fprintf(out, "  %14s model:    %s\n", "", info.Model)
		}
	}

	fmt.Fprintln(out)
	if envKey != "" {
		fmt.Fprintf(out, "  DOCLATE_API_KEY: %s%s%s (%s)\n", colorGreen, settings.MaskKey(envKey), colorReset, i18n.T("overrides stored keys"))
	} else {
		fmt.Fprintf(out, "  DOCLATE_API_KEY: %s%s%s\n", colorRed, i18n.T("not set"), colorReset)
	}
	fmt.Fprintln(out)
}
