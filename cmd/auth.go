package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haneul-labs/mailaction/credentials"
)

// Auth command flags.
var (
	authCompletionKey  string
	authSearchKey      string
	authNonInteractive bool
)

// AuthCmd represents the auth command group.
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage service credentials",
	Long: `Manage the service keys the pipeline uses.

Two keys are stored: the completion/embedding service key and the search
index admin key. Keys are stored encrypted at rest in
~/.mailaction/credentials.yaml.

Environment variables take precedence over stored credentials:
  MAILACTION_OPENAI_KEY   completion/embedding key
  MAILACTION_SEARCH_KEY   search admin key`,
}

// authLoginCmd stores service keys.
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store service keys",
	Long: `Store the completion and search service keys.

Examples:
  # Interactive login (prompts for both keys, hidden input)
  mailaction auth login

  # Login with flags
  mailaction auth login --openai-key sk-abc123... --search-key adm-xyz...

Notes:
  - Either key may be left empty if the corresponding service is unused
  - Keys are encrypted at rest with a key held in the system keyring`,
	RunE: runAuthLogin,
}

// authLogoutCmd clears stored credentials.
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear stored service keys",
	Long: `Clear stored service keys.

Environment variables (MAILACTION_OPENAI_KEY, MAILACTION_SEARCH_KEY) are
not affected.`,
	RunE: runAuthLogout,
}

// authStatusCmd shows the effective credential state.
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show credential status",
	Long: `Display the effective credential state: which keys are available,
their source (stored or environment), and masked values.`,
	RunE: runAuthStatus,
}

func init() {
	authLoginCmd.Flags().StringVar(&authCompletionKey, "openai-key", "", "Completion/embedding service key")
	authLoginCmd.Flags().StringVar(&authSearchKey, "search-key", "", "Search index admin key")
	authLoginCmd.Flags().BoolVar(&authNonInteractive, "non-interactive", false, "Fail instead of prompting for input")

	AuthCmd.AddCommand(authLoginCmd)
	AuthCmd.AddCommand(authLogoutCmd)
	AuthCmd.AddCommand(authStatusCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}

	creds := &credentials.Credentials{
		CompletionKey: authCompletionKey,
		SearchKey:     authSearchKey,
	}

	if creds.CompletionKey == "" && creds.SearchKey == "" {
		if authNonInteractive {
			return fmt.Errorf("no keys provided and --non-interactive flag set")
		}
		prompted, err := promptForKeys()
		if err != nil {
			return fmt.Errorf("reading keys: %w", err)
		}
		creds = prompted
	}

	if creds.CompletionKey == "" && creds.SearchKey == "" {
		return fmt.Errorf("no keys provided")
	}

	if err := store.Save(creds); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	fmt.Println("Credentials stored.")
	if creds.CompletionKey != "" {
		fmt.Printf("  Completion key: %s\n", credentials.MaskCredential(creds.CompletionKey))
	}
	if creds.SearchKey != "" {
		fmt.Printf("  Search key:     %s\n", credentials.MaskCredential(creds.SearchKey))
	}

	dir, _ := credentials.CredentialsDir()
	fmt.Printf("\nStored in: %s\n", dir)
	return nil
}

// promptForKeys reads both keys interactively with hidden input, falling
// back to plain reads when no terminal is attached.
func promptForKeys() (*credentials.Credentials, error) {
	completionKey, err := promptSecret("Completion key (press Enter to skip): ")
	if err != nil {
		return nil, err
	}
	searchKey, err := promptSecret("Search key (press Enter to skip): ")
	if err != nil {
		return nil, err
	}
	return &credentials.Credentials{CompletionKey: completionKey, SearchKey: searchKey}, nil
}

func promptSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	value, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err == nil {
		return strings.TrimSpace(string(value)), nil
	}

	// No terminal attached, read a plain line instead.
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}
	if !store.Exists() {
		fmt.Println("No stored credentials.")
		return nil
	}
	if err := store.Delete(); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	fmt.Println("Stored credentials cleared.")
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	envCompletion := os.Getenv("MAILACTION_OPENAI_KEY")
	envSearch := os.Getenv("MAILACTION_SEARCH_KEY")

	if envCompletion != "" || envSearch != "" {
		fmt.Println("Source: environment variables")
		printKeyStatus("Completion key", envCompletion)
		printKeyStatus("Search key", envSearch)
		return nil
	}

	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("initializing credential store: %w", err)
	}
	creds, err := store.Load()
	if err != nil {
		if errors.Is(err, credentials.ErrNoCredentials) {
			fmt.Println("Not authenticated. Run 'mailaction auth login'.")
			return nil
		}
		return fmt.Errorf("loading credentials: %w", err)
	}

	fmt.Println("Source: stored credentials")
	printKeyStatus("Completion key", creds.CompletionKey)
	printKeyStatus("Search key", creds.SearchKey)
	if !creds.LastUpdated.IsZero() {
		fmt.Printf("  Last updated:   %s\n", creds.LastUpdated.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func printKeyStatus(label, key string) {
	if key == "" {
		fmt.Printf("  %s: (not set)\n", label)
		return
	}
	fmt.Printf("  %s: %s\n", label, credentials.MaskCredential(key))
}
