package prattui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/pratchat/prat/internal/chat"
	"github.com/pratchat/prat/internal/config"
	"github.com/pratchat/prat/internal/logging"
	"github.com/pratchat/prat/internal/prattui/state"
	"github.com/pratchat/prat/internal/transport"
)

func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	var (
		configFile string
		serverURL  string
		token      string
		logLevel   string
	)
	cmd := &cobra.Command{
		Use:           "prat [conversation...]",
		Short:         "prat terminal chat client",
		Long:          "Terminal chat client. Conversations are given as kind:id references, e.g. channel:general or dm:7f3a; a bare name is a channel.",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader()
			if configFile != "" {
				loader.SetConfigFile(configFile)
			}
			if serverURL != "" {
				loader.Set("server.base_url", serverURL)
			}
			if token != "" {
				loader.Set("server.token", token)
			}
			if logLevel != "" {
				loader.Set("logging.level", logLevel)
			}
			cfg, err := loader.Load()
			if err != nil {
				return err
			}

			convs := make([]chat.ConversationRef, 0, len(args))
			for _, arg := range args {
				ref, err := chat.ParseRef(arg)
				if err != nil {
					return err
				}
				convs = append(convs, ref)
			}
			return Run(cfg, convs)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "config file path")
	cmd.Flags().StringVar(&serverURL, "server", "", "server base URL override")
	cmd.Flags().StringVar(&token, "token", "", "auth token override")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level override (debug|info|warn|error)")
	return cmd
}

// Run wires the transport and persisted state around the model and hands the
// terminal to bubbletea.
func Run(cfg *config.Config, convs []chat.ConversationRef) error {
	if err := logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	}); err != nil {
		return err
	}
	log := logging.Component("prattui")

	client := transport.NewRESTClient(cfg.Server.BaseURL, cfg.Server.Token, logging.Component("rest"))
	push, err := transport.DialWS(transport.WSChannelConfig{
		URL:               cfg.WSEndpoint(),
		Token:             cfg.Server.Token,
		ReconnectInterval: cfg.Server.ReconnectInterval,
	}, logging.Component("ws"))
	if err != nil {
		return fmt.Errorf("connect push channel: %w", err)
	}

	states := state.New(cfg.StatePath)
	if err := states.Load(); err != nil {
		log.Warn().Err(err).Msg("state load failed, starting fresh")
	}

	model := NewModel(cfg, client, push, states, convs, log)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}
