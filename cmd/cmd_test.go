package cmd

import (
	"testing"

	"github.com/spf13/cobra"
)

func hasSubcommand(parent *cobra.Command, name string) bool {
	for _, sub := range parent.Commands() {
		if sub.Name() == name {
			return true
		}
	}
	return false
}

func TestProcessCmdFlags(t *testing.T) {
	for _, name := range []string{"file", "dry-run", "concurrency", "output", "recipient-name", "recipient-email", "recipient-team"} {
		if ProcessCmd.Flags().Lookup(name) == nil {
			t.Errorf("process command missing --%s flag", name)
		}
	}

	fileFlag := ProcessCmd.Flags().Lookup("file")
	if fileFlag == nil {
		t.Fatal("process command missing --file flag")
	}
	if fileFlag.Shorthand != "f" {
		t.Errorf("file flag shorthand = %q, want %q", fileFlag.Shorthand, "f")
	}
	if fileFlag.Annotations[cobra.BashCompOneRequiredFlag] == nil {
		t.Error("--file should be a required flag")
	}
}

func TestProcessCmdOutputDefault(t *testing.T) {
	flag := ProcessCmd.Flags().Lookup("output")
	if flag == nil {
		t.Fatal("process command missing --output flag")
	}
	if flag.DefValue != "text" {
		t.Errorf("output default = %q, want %q", flag.DefValue, "text")
	}
}

func TestAuthCmdSubcommands(t *testing.T) {
	for _, name := range []string{"login", "logout", "status"} {
		if !hasSubcommand(AuthCmd, name) {
			t.Errorf("auth command missing %q subcommand", name)
		}
	}
}

func TestAuthLoginFlags(t *testing.T) {
	var login *cobra.Command
	for _, sub := range AuthCmd.Commands() {
		if sub.Name() == "login" {
			login = sub
		}
	}
	if login == nil {
		t.Fatal("auth login subcommand not found")
	}
	for _, name := range []string{"openai-key", "search-key", "non-interactive"} {
		if login.Flags().Lookup(name) == nil {
			t.Errorf("auth login missing --%s flag", name)
		}
	}
}

func TestConfigCmdSubcommands(t *testing.T) {
	for _, name := range []string{"show", "init"} {
		if !hasSubcommand(ConfigCmd, name) {
			t.Errorf("config command missing %q subcommand", name)
		}
	}
}

func TestCommandsHaveDocs(t *testing.T) {
	cmds := []*cobra.Command{ProcessCmd, AuthCmd, ConfigCmd}
	for _, c := range cmds {
		if c.Short == "" {
			t.Errorf("%s command has no short description", c.Name())
		}
		if c.RunE == nil && len(c.Commands()) == 0 {
			t.Errorf("%s command has neither RunE nor subcommands", c.Name())
		}
	}
}
