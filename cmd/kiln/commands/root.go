// Package commands implements the CLI commands for kiln.
package commands

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/build"
	"go.trai.ch/kiln/internal/core/domain"
)

// Application is the behavior the commands drive.
type Application interface {
	Run(ctx context.Context, configPath string, opts app.RunOptions) error
	Provision(ctx context.Context, configPath string) error
	Audit(ctx context.Context, configPath, dir string, opts app.AuditOptions) error
	Package(ctx context.Context, configPath string, strict bool) error
	Status(ctx context.Context, configPath string) error
	Clean(ctx context.Context, configPath string, sources bool) error
	SetLogLevel(level domain.LogLevel)
}

// CLI represents the command line interface for kiln.
type CLI struct {
	app        Application
	rootCmd    *cobra.Command
	configPath string
}

// New creates a new CLI instance with the given app.
func New(a Application) *CLI {
	c := &CLI{app: a}

	rootCmd := &cobra.Command{
		Use:   "kiln",
		Short: "Build native libraries from source into a relocatable release",
		Long: `kiln builds every library of the pipeline in order into a shared staging
prefix, then assembles, audits and archives the release.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		Version:           build.Version,
		PersistentPreRunE: c.setLogLevel,
		RunE:              c.run,
	}

	// Persistent flags come first so -v belongs to verbose, not version.
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log at debug level and echo commands and environment")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Only log warnings and errors")
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", domain.ConfigFileName, "Path to the pipeline file")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.Flags().StringSlice("only", nil, "Only build the named targets")
	rootCmd.Flags().Bool("provision", false, "Install host packages before building")
	rootCmd.Flags().Bool("skip-release", false, "Skip assembling the release archive")
	rootCmd.Flags().Bool("strict", false, "Fail when the dependency audit produces warnings")

	c.rootCmd = rootCmd

	rootCmd.AddCommand(c.newProvisionCmd())
	rootCmd.AddCommand(c.newAuditCmd())
	rootCmd.AddCommand(c.newPackageCmd())
	rootCmd.AddCommand(c.newStatusCmd())
	rootCmd.AddCommand(c.newCleanCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput redirects command output. Used for testing.
func (c *CLI) SetOutput(w io.Writer) {
	c.rootCmd.SetOut(w)
	c.rootCmd.SetErr(w)
}

func (c *CLI) setLogLevel(cmd *cobra.Command, _ []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")
	switch {
	case verbose:
		c.app.SetLogLevel(domain.LogLevelDebug)
	case quiet:
		c.app.SetLogLevel(domain.LogLevelWarn)
	default:
		c.app.SetLogLevel(domain.LogLevelInfo)
	}
	return nil
}

func (c *CLI) run(cmd *cobra.Command, _ []string) error {
	only, _ := cmd.Flags().GetStringSlice("only")
	provision, _ := cmd.Flags().GetBool("provision")
	skipRelease, _ := cmd.Flags().GetBool("skip-release")
	strict, _ := cmd.Flags().GetBool("strict")
	return c.app.Run(cmd.Context(), c.configPath, app.RunOptions{
		Only:        only,
		Provision:   provision,
		SkipRelease: skipRelease,
		Strict:      strict,
	})
}
