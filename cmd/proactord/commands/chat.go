package commands

import (
	"os/signal"
	"syscall"

	"github.com/marmos91/proactor/internal/chat"
	"github.com/spf13/cobra"
)

var chatAddr string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join a chat relay",
	Long: `Connect to a chat relay. Lines typed on stdin are sent to every other
member; messages from others are printed as they arrive. Type SIGNOUT to
leave.

Examples:
  proactord chat
  proactord chat --addr chat.example.com:8000`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatAddr, "addr", "", "chat relay address (default: from config)")
}

func runChat(cmd *cobra.Command, args []string) error {
	addr := chatAddr
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		addr = dialAddr(cfg.Chat.ListenerConfig)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := chat.Dial(ctx, addr)
	if err != nil {
		return err
	}
	return client.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}
