package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/noy2024/fast-agent/pkg/connmgr"
	"github.com/noy2024/fast-agent/pkg/registry"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "fast-agent",
		Short:         "Manage long-lived MCP server connections",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "fastagent.config.yaml", "path to the server settings file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newServersCmd(opts))
	cmd.AddCommand(newPingCmd(opts))
	cmd.AddCommand(newToolsCmd(opts))
	return cmd
}

// withManager wires the registry and connection manager for one command
// invocation and guarantees every connection is shut down before returning.
func withManager(ctx context.Context, opts *rootOptions, fn func(context.Context, *registry.ServerRegistry, *connmgr.ConnectionManager) error) error {
	reg, err := registry.Load(opts.configPath, slog.Default())
	if err != nil {
		return err
	}
	mgr := connmgr.NewConnectionManager(reg, connmgr.NewAppContext(), &connmgr.ManagerOptions{
		Logger: slog.Default(),
	})
	if err := mgr.Start(); err != nil {
		return err
	}
	defer mgr.Close()
	return fn(ctx, reg, mgr)
}

func newServersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List configured servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Load(opts.configPath, slog.Default())
			if err != nil {
				return err
			}
			for _, name := range reg.Names() {
				cfg, _ := reg.Lookup(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, connmgr.TransportOf(cfg))
			}
			return nil
		},
	}
}

func newPingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping <server>",
		Short: "Connect to a server and ping it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), opts, func(ctx context.Context, _ *registry.ServerRegistry, mgr *connmgr.ConnectionManager) error {
				conn, err := mgr.GetServer(ctx, args[0], nil, nil)
				if err != nil {
					return err
				}
				sess, ok := conn.ClientSession()
				if !ok {
					return fmt.Errorf("server %q is not backed by an SDK session", args[0])
				}
				if err := sess.Ping(ctx, nil); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
				return nil
			})
		},
	}
}

func newToolsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools <server>",
		Short: "Connect to a server and list its tools",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), opts, func(ctx context.Context, _ *registry.ServerRegistry, mgr *connmgr.ConnectionManager) error {
				conn, err := mgr.GetServer(ctx, args[0], nil, nil)
				if err != nil {
					return err
				}
				sess, ok := conn.ClientSession()
				if !ok {
					return fmt.Errorf("server %q is not backed by an SDK session", args[0])
				}
				res, err := sess.ListTools(ctx, nil)
				if err != nil {
					return err
				}
				for _, tool := range res.Tools {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", tool.Name, tool.Description)
				}
				return nil
			})
		},
	}
}
