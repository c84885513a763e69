package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/hotbutter/voice/pkg/relay"
	"github.com/hotbutter/voice/pkg/relayclient"
)

var chatCmd = &cobra.Command{
	Use:   "chat <code>",
	Short: "Chat with a paired agent from the terminal",
	Long: `Connect to a relay as a client, redeem a pairing code, and exchange
messages from stdin. Type /quit to end the session.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

var chatFlags struct {
	url string
}

func init() {
	chatCmd.Flags().StringVar(&chatFlags.url, "url", relayclient.DefaultRelayURL, "relay URL")
	rootCmd.AddCommand(chatCmd)
}

var (
	agentStyle  = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	statusStyle = lipgloss.NewStyle().Foreground(dimColor)
)

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	url := stringOr(flags.Changed("url"), chatFlags.url, cfg.RelayURL)
	code := args[0]

	client := relayclient.New(relayclient.Config{
		URL:  url,
		Role: relayclient.RoleClient,
	})
	defer client.Disconnect()

	paired := make(chan string, 1)
	done := make(chan error, 1)

	client.OnConnected = func() {
		if err := client.Pair(code); err != nil {
			done <- err
		}
	}
	client.OnPaired = func(_, agentName string) {
		paired <- agentName
	}
	client.OnMessage = func(_, text, _ string) {
		fmt.Printf("\r\033[K%s %s\n> ", agentStyle.Render("agent:"), text)
	}
	client.OnTyping = func(active bool) {
		if active {
			fmt.Printf("\r\033[K%s", statusStyle.Render("agent is typing..."))
		} else {
			fmt.Printf("\r\033[K> ")
		}
	}
	client.OnAgentDisconnected = func() {
		fmt.Printf("\r\033[K%s\n", statusStyle.Render("agent disconnected"))
	}
	client.OnError = func(errCode string) {
		if errCode == string(relay.ErrCodeInvalidOrExpired) {
			done <- fmt.Errorf("code %s is invalid or has expired", code)
			return
		}
		fmt.Printf("\r\033[K%s\n> ", statusStyle.Render("relay error: "+errCode))
	}
	client.OnReconnecting = func(attempt int, delay time.Duration) {
		fmt.Printf("\r\033[K%s\n", statusStyle.Render(
			fmt.Sprintf("connection lost, retrying in %s (attempt %d)", delay, attempt)))
	}
	client.OnReconnectFailed = func() {
		done <- fmt.Errorf("could not reconnect to relay at %s", url)
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect to relay: %w", err)
	}

	select {
	case agentName := <-paired:
		fmt.Println(statusStyle.Render("paired with " + agentName))
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timed out waiting to pair")
	}

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			switch {
			case text == "":
			case text == "/quit":
				done <- nil
				return
			default:
				if err := client.SendMessage(text); err != nil {
					done <- err
					return
				}
			}
			fmt.Print("> ")
		}
		done <- scanner.Err()
	}()

	return <-done
}
