package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgx-risk-engine/internal/setup"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Manage the MCP server registration for desktop clients",
	}

	cmd.PersistentFlags().String("config", "", "Client config file (default: resolved per OS)")

	cmd.AddCommand(mcpInstallCmd())
	cmd.AddCommand(mcpStatusCmd())
	cmd.AddCommand(mcpUninstallCmd())

	return cmd
}

func mcpInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Register the mcp-server binary with the MCP client",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			binary, _ := cmd.Flags().GetString("binary")
			kbDir, _ := cmd.Flags().GetString("kb-dir")
			kbSQLite, _ := cmd.Flags().GetString("kb-sqlite")
			logLevel, _ := cmd.Flags().GetString("log-level")

			written, err := setup.Install(setup.InstallOptions{
				ConfigPath: configPath,
				Binary:     binary,
				KBDir:      kbDir,
				KBSQLite:   kbSQLite,
				LogLevel:   logLevel,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Registered %s in %s\n", setup.ServerKey, written)
			fmt.Println("Restart the client to pick up the new server.")
			return nil
		},
	}

	cmd.Flags().String("binary", "", "mcp-server binary path (default: this executable)")
	cmd.Flags().String("kb-dir", "", "Serve knowledge base documents from this directory")
	cmd.Flags().String("kb-sqlite", "", "Serve the knowledge base from this SQLite snapshot")
	cmd.Flags().String("log-level", "", "Log level for the registered server")

	return cmd
}

func mcpStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current MCP client registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			status, err := setup.InstallStatus(configPath)
			if err != nil {
				return err
			}

			fmt.Printf("Client config: %s\n", status.ConfigPath)
			if !status.Registered {
				fmt.Printf("%s is not registered.\n", setup.ServerKey)
				return nil
			}

			fmt.Printf("Registered binary: %s\n", status.Binary)
			if !status.BinaryExists {
				fmt.Println("Warning: the registered binary does not exist.")
			}
			for key, value := range status.Env {
				fmt.Printf("  env %s=%s\n", key, value)
			}
			return nil
		},
	}
}

func mcpUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the MCP client registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			removed, err := setup.Uninstall(configPath)
			if err != nil {
				return err
			}
			if removed {
				fmt.Printf("Removed %s registration.\n", setup.ServerKey)
			} else {
				fmt.Printf("%s was not registered.\n", setup.ServerKey)
			}
			return nil
		},
	}
}
