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

	"github.com/hotbutter/voice/pkg/bridge"
	"github.com/hotbutter/voice/pkg/relay"
	"github.com/hotbutter/voice/pkg/relayclient"
	"github.com/hotbutter/voice/pkg/transcript"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the embedded relay and connect the local agent",
	Long: `Run the relay in-process, register the local agent on it, and print
the pairing code. Each user turn received from a paired browser is executed
against the agent CLI and the reply is sent back.`,
	RunE: runStart,
}

var startFlags struct {
	port          int
	agentName     string
	agentCommand  string
	agent         string
	pwaDir        string
	transcriptDir string
	noTranscript  bool
}

func init() {
	f := startCmd.Flags()
	f.IntVar(&startFlags.port, "port", 3000, "relay port")
	f.StringVar(&startFlags.agentName, "agent-name", "Agent", "agent display name")
	f.StringVar(&startFlags.agentCommand, "agent-command", bridge.DefaultCommand, "agent CLI binary")
	f.StringVar(&startFlags.agent, "agent", "", "named agent to use")
	f.StringVar(&startFlags.pwaDir, "pwa", "", "directory of client app static files to serve at /")
	f.StringVar(&startFlags.transcriptDir, "transcript-dir", "", "transcript store directory")
	f.BoolVar(&startFlags.noTranscript, "no-transcript", false, "disable transcript recording")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	port := intOr(flags.Changed("port"), startFlags.port, cfg.Port)
	agentName := stringOr(flags.Changed("agent-name"), startFlags.agentName, cfg.AgentName)
	agentCommand := stringOr(flags.Changed("agent-command"), startFlags.agentCommand, cfg.AgentCommand)
	agent := stringOr(flags.Changed("agent"), startFlags.agent, cfg.Agent)
	pwaDir := stringOr(flags.Changed("pwa"), startFlags.pwaDir, cfg.PWADir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Embedded relay.
	srv := relay.New(relay.Config{PWADir: pwaDir})
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
	slog.Info("embedded relay started", "port", port)

	// Transcript store.
	var store *transcript.Store
	if !startFlags.noTranscript {
		dir := startFlags.transcriptDir
		if dir == "" {
			if dir, err = defaultTranscriptDir(cfg); err != nil {
				return err
			}
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create transcript dir: %w", err)
		}
		store, err = transcript.Open(transcript.Options{Dir: dir})
		if err != nil {
			return err
		}
		defer store.Close()
	}

	executor := bridge.New(bridge.Config{Command: agentCommand, Agent: agent})
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	client := relayclient.New(relayclient.Config{
		URL:       fmt.Sprintf("ws://localhost:%d", port),
		Role:      relayclient.RoleAgent,
		AgentName: agentName,
	})
	defer client.Disconnect()

	client.OnConnected = func() {
		slog.Info("connected to embedded relay, waiting for pairing code")
	}
	client.OnCode = func(code string) {
		fmt.Println()
		fmt.Println(renderCodeBanner(code, baseURL+"?code="+code))
		fmt.Println()
	}
	client.OnPaired = func(sessionID, _ string) {
		slog.Info("client paired", "sessionId", sessionID)
	}
	client.OnMessage = func(sessionID, text, _ string) {
		// One goroutine per turn: the agent CLI can take a while and
		// callbacks must not block the read loop.
		go runTurn(ctx, client, executor, store, sessionID, text)
	}
	client.OnClientDisconnected = func(sessionID string) {
		slog.Info("client disconnected", "sessionId", sessionID)
	}
	client.OnDisconnected = func() {
		slog.Info("disconnected from relay")
	}
	client.OnReconnecting = func(attempt int, delay time.Duration) {
		slog.Info("reconnecting to relay", "attempt", attempt, "delay", delay)
	}
	client.OnError = func(code string) {
		slog.Warn("relay error", "error", code)
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect to embedded relay: %w", err)
	}

	<-ctx.Done()
	fmt.Println()
	slog.Info("shutting down")

	client.Disconnect()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)
	return nil
}

// runTurn executes one conversational turn and replies through the relay.
func runTurn(ctx context.Context, client *relayclient.Client, executor *bridge.Executor, store *transcript.Store, sessionID, text string) {
	slog.Info("user said", "text", text)
	record(ctx, store, sessionID, transcript.RoleUser, text)

	client.SendTyping(true)
	defer client.SendTyping(false)

	response, err := executor.Run(ctx, sessionID, text)
	if err != nil {
		// The raw failure never reaches the end user.
		slog.Error("agent turn failed", "sessionId", sessionID, "error", err)
		response = "Sorry, I encountered an error processing your message."
	} else {
		slog.Info("agent response", "text", response)
	}

	if err := client.SendMessage(response); err != nil {
		slog.Warn("could not deliver agent response", "error", err)
		return
	}
	record(ctx, store, sessionID, transcript.RoleAgent, response)
}

func record(ctx context.Context, store *transcript.Store, sessionID, role, text string) {
	if store == nil {
		return
	}
	err := store.Append(ctx, transcript.Entry{
		SessionID: sessionID,
		Role:      role,
		Text:      text,
		Time:      time.Now(),
	})
	if err != nil {
		slog.Warn("transcript append failed", "error", err)
	}
}
