package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
)

func (c *CLI) newProvisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Install the host packages and check the required tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.Provision(cmd.Context(), c.configPath)
		},
	}
}

func (c *CLI) newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit [dir]",
		Short: "Report the external dynamic dependencies of a directory",
		Long:  "Report the external dynamic dependencies of every shared object in dir, the release directory by default.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dir string
			if len(args) > 0 {
				dir = args[0]
			}
			strict, _ := cmd.Flags().GetBool("strict")
			asJSON, _ := cmd.Flags().GetBool("json")
			return c.app.Audit(cmd.Context(), c.configPath, dir, app.AuditOptions{Strict: strict, JSON: asJSON})
		},
	}
	cmd.Flags().Bool("strict", false, "Fail when the audit produces warnings")
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	return cmd
}

func (c *CLI) newPackageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "package",
		Short: "Assemble and archive a release from the staging prefix without building",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			strict, _ := cmd.Flags().GetBool("strict")
			return c.app.Package(cmd.Context(), c.configPath, strict)
		},
	}
	cmd.Flags().Bool("strict", false, "Fail when the dependency audit produces warnings")
	return cmd
}

func (c *CLI) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show every target's state relative to its last build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.Status(cmd.Context(), c.configPath)
		},
	}
}

func (c *CLI) newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove the staging prefix and the release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sources, _ := cmd.Flags().GetBool("sources")
			return c.app.Clean(cmd.Context(), c.configPath, sources)
		},
	}
	cmd.Flags().Bool("sources", false, "Also remove untracked files from every source checkout")
	return cmd
}
