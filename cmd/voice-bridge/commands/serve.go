package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hotbutter/voice/pkg/relay"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a standalone hosted relay",
	Long: `Run the relay without a local agent. Agents connect over the network
with their own credentials. With --landing set, the landing page is served at /
and the client app at /app/.`,
	RunE: runServe,
}

var serveFlags struct {
	port       int
	pwaDir     string
	landingDir string
}

func init() {
	f := serveCmd.Flags()
	f.IntVar(&serveFlags.port, "port", 3000, "relay port")
	f.StringVar(&serveFlags.pwaDir, "pwa", "", "directory of client app static files")
	f.StringVar(&serveFlags.landingDir, "landing", "", "directory of landing page static files")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	port := intOr(flags.Changed("port"), serveFlags.port, cfg.Port)
	pwaDir := stringOr(flags.Changed("pwa"), serveFlags.pwaDir, cfg.PWADir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := relay.New(relay.Config{
		PWADir:     pwaDir,
		LandingDir: serveFlags.landingDir,
	})
	defer srv.Close()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("port %d is already in use; try --port %d", port, port+1)
	}
	httpSrv := &http.Server{Handler: srv.Handler()}
	go func() {
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("relay server error", "error", err)
		}
	}()
	slog.Info("relay listening", "port", port,
		"agentEndpoint", fmt.Sprintf("ws://localhost:%d/ws/agent", port),
		"clientEndpoint", fmt.Sprintf("ws://localhost:%d/ws/client", port))

	<-ctx.Done()
	fmt.Println()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)
	return nil
}
