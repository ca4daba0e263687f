// Package serve provides the "xlengine serve" command.
package serve

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/klytics/xlengine/internal/app"
	"github.com/klytics/xlengine/internal/server"
)

// NewCommand creates the "serve" command.
func NewCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Starts the HTTP API: /health, /upload, /analyze and /operations/*.

Uploads are stored under storage.upload_dir and operation results under
storage.output_dir. Stop with Ctrl+C; in-flight requests are allowed to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.FromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.Config.Server.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			h := server.NewHandler(a.Service, a.Logger, int(a.Config.Server.MaxUploadMB))
			return server.Serve(ctx, addr, h.Routes(), a.Logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default server.addr, :8000)")
	return cmd
}
