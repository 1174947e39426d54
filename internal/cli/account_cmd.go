package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/iv9eni/ai-email-chat/internal/services"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// accountCmd represents the account command group
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Email account management",
	Long:  `Manage monitored email accounts: list, add, remove, activate and deactivate.`,
}

// accountListCmd lists all accounts
var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured accounts",
	Run: func(cmd *cobra.Command, args []string) {
		if accountService == nil {
			fmt.Fprintln(os.Stderr, "Error: account service not initialized")
			os.Exit(1)
		}

		accounts, err := accountService.ListAccounts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list accounts: %v\n", err)
			os.Exit(1)
		}

		if len(accounts) == 0 {
			fmt.Println("No accounts configured.")
			return
		}

		fmt.Println("Accounts:")
		fmt.Println("--------------------------------------------------------------")
		fmt.Printf("%-6s %-30s %-8s %-10s %s\n", "ID", "Address", "Auth", "Provider", "Active")
		fmt.Println("--------------------------------------------------------------")
		for _, a := range accounts {
			provider := a.Provider
			if provider == "" {
				provider = "-"
			}
			fmt.Printf("%-6d %-30s %-8s %-10s %v\n", a.ID, a.EmailAddress, a.AuthType, provider, a.Active)
		}
		fmt.Println("--------------------------------------------------------------")
		fmt.Printf("%d account(s)\n", len(accounts))
	},
}

// accountAddCmd interactively adds a password-authenticated account
var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a password-authenticated account",
	Long: `Interactively add an account that logs in with username and password.
OAuth accounts are connected through the web authorization flow instead.`,
	Run: func(cmd *cobra.Command, args []string) {
		if accountService == nil {
			fmt.Fprintln(os.Stderr, "Error: account service not initialized")
			os.Exit(1)
		}

		reader := bufio.NewReader(os.Stdin)

		email := promptLine(reader, "Email address: ")
		if email == "" {
			fmt.Fprintln(os.Stderr, "Error: email address is required")
			os.Exit(1)
		}

		imapHost := promptLine(reader, "IMAP host: ")
		imapPort := promptPort(reader, "IMAP port [993]: ", 993)
		smtpHost := promptLine(reader, "SMTP host: ")
		smtpPort := promptPort(reader, "SMTP port [587]: ", 587)

		username := promptLine(reader, fmt.Sprintf("Username [%s]: ", email))
		if username == "" {
			username = email
		}

		fmt.Print("Password: ")
		passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nError: failed to read password: %v\n", err)
			os.Exit(1)
		}
		fmt.Println()
		password := string(passwordBytes)
		if password == "" {
			fmt.Fprintln(os.Stderr, "Error: password is required")
			os.Exit(1)
		}

		useSSL := true
		if answer := promptLine(reader, "Use SSL for IMAP? [Y/n]: "); strings.EqualFold(answer, "n") || strings.EqualFold(answer, "no") {
			useSSL = false
		}

		account, err := accountService.CreateAccount(services.CreateAccountInput{
			EmailAddress: email,
			IMAPHost:     imapHost,
			IMAPPort:     imapPort,
			SMTPHost:     smtpHost,
			SMTPPort:     smtpPort,
			Username:     username,
			Password:     password,
			UseSSL:       useSSL,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create account: %v\n", err)
			os.Exit(1)
		}

		fmt.Println()
		fmt.Println("Account created.")
		fmt.Printf("  ID: %d\n", account.ID)
		fmt.Printf("  Address: %s\n", account.EmailAddress)
	},
}

// accountRemoveCmd deletes an account
var accountRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete an account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseAccountID(args[0])

		account, err := accountService.GetAccountByID(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Warning: about to delete account '%s' (ID: %d) and keep its conversations.\n", account.EmailAddress, account.ID)
		fmt.Print("Continue? (yes/no): ")

		reader := bufio.NewReader(os.Stdin)
		confirm, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read input: %v\n", err)
			os.Exit(1)
		}
		confirm = strings.TrimSpace(strings.ToLower(confirm))
		if confirm != "yes" && confirm != "y" {
			fmt.Println("Cancelled.")
			return
		}

		if err := accountService.DeleteAccount(id); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to delete account: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Account '%s' deleted.\n", account.EmailAddress)
	},
}

// accountActivateCmd activates an account
var accountActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Activate an account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setActive(parseAccountID(args[0]), true)
	},
}

// accountDeactivateCmd deactivates an account
var accountDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Deactivate an account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setActive(parseAccountID(args[0]), false)
	},
}

func setActive(id uint, active bool) {
	account, err := accountService.SetAccountActive(id, active)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	state := "deactivated"
	if active {
		state = "activated"
	}
	fmt.Printf("Account '%s' %s.\n", account.EmailAddress, state)
}

func parseAccountID(arg string) uint {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: invalid account ID")
		os.Exit(1)
	}
	return uint(id)
}

func promptLine(reader *bufio.Reader, prompt string) string {
	fmt.Print(prompt)
	line, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read input: %v\n", err)
		os.Exit(1)
	}
	return strings.TrimSpace(line)
}

func promptPort(reader *bufio.Reader, prompt string, def int) int {
	line := promptLine(reader, prompt)
	if line == "" {
		return def
	}
	port, err := strconv.Atoi(line)
	if err != nil || port <= 0 || port > 65535 {
		fmt.Fprintln(os.Stderr, "Error: invalid port")
		os.Exit(1)
	}
	return port
}

func init() {
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountRemoveCmd)
	accountCmd.AddCommand(accountActivateCmd)
	accountCmd.AddCommand(accountDeactivateCmd)
}
