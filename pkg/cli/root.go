package cli

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/platinummonkey/andobill/pkg/storage/postgres"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// Runtime is what the admin commands operate on
type Runtime struct {
	DB      *sql.DB
	Dialect postgres.Dialect
	Out     io.Writer
	// BcryptCost is the password hashing cost (0 for the default)
	BcryptCost int
}

func (rt *Runtime) printf(format string, args ...interface{}) {
	out := rt.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, format, args...)
}

// NewRootCommand creates the root command
func NewRootCommand(rt *Runtime) *Command {
	root := &Command{
		Name:        "andobill-admin",
		Description: "AndoBill - administration commands",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("andobill-admin", flag.ExitOnError),
	}

	for _, cmd := range []*Command{
		newMigrateCommand(rt),
		newSeedRolesCommand(rt),
		newPruneAttemptsCommand(rt),
		newCreateUserCommand(rt),
		newSetUserStatusCommand(rt),
		newAssignRoleCommand(rt),
		newCreateCompanyCommand(rt),
		newSetCompanyStatusCommand(rt),
		newSetDefaultCompanyCommand(rt),
	} {
		root.Subcommands[cmd.Name] = cmd
	}

	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	// Check for help flag
	if args[0] == "-h" || args[0] == "--help" {
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("Usage: %s <command> [args]\n\n", c.Name)
	fmt.Printf("Commands:\n")
	for _, name := range names {
		fmt.Printf("  %-22s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// newFlagSet returns a flag set that reports errors instead of exiting
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}
