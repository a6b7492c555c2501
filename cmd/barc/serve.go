package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/barc/catalog/internal/daemon"
	"github.com/barc/catalog/internal/importer"
	"github.com/barc/catalog/internal/rpc"
)

func newServeCmd() *cobra.Command {
	var socket, version string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the maintenance worker and serve forwarded commands over a Unix socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			h, err := openHandle(ctx, cmd)
			if err != nil {
				return err
			}
			defer h.Close()

			dbPath, _, err := dbFlags(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadEngineConfig(cmd)
			if err != nil {
				return err
			}

			worker := daemon.New(h, h.Store(), cfg, importer.New(logger), logger)
			worker.SetCatalogPath(dbPath)
			if err := worker.AcquireLock(filepath.Dir(dbPath), version); err != nil {
				return fmt.Errorf("acquire maintenance lock: %w", err)
			}
			defer worker.ReleaseLock()

			server, err := rpc.NewServer(socket, h, worker.Engine())
			if err != nil {
				return fmt.Errorf("start rpc server: %w", err)
			}

			errCh := make(chan error, 2)
			go func() { errCh <- worker.Run(ctx) }()
			go func() { errCh <- server.Serve(ctx) }()

			fmt.Fprintf(cmd.OutOrStdout(), "serving %s on %s\n", dbPath, socket)
			<-ctx.Done()
			server.Close()
			return firstNonNil(<-errCh, <-errCh)
		},
	}
	cmd.Flags().StringVar(&socket, "socket", "barc.sock", "Unix socket path to serve on")
	cmd.Flags().StringVar(&version, "lock-version", "dev", "version string recorded in the maintenance lock file")
	return cmd
}

func firstNonNil(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
