package cli

import (
	"bufio"
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agendahealth/consulta/internal/cache"
	"github.com/agendahealth/consulta/internal/config"
	"github.com/agendahealth/consulta/internal/domain"
	"github.com/agendahealth/consulta/internal/executor"
	"github.com/agendahealth/consulta/internal/skill"
)

func newChatCmd() *cobra.Command {
	var (
		channel        string
		conversationID string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the appointments skill from the terminal",
		Long:  "Runs a local conversation loop against in-memory sessions. Useful for trying the task flow without the HTTP server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			nluClient, err := buildNLU(cfg)
			if err != nil {
				return err
			}

			sessions := skill.NewMemorySessionStore(skill.MemoryStoreOptions{
				TTL:              cfg.Store.TTL.Std(),
				InactivityWindow: cfg.Session.InactivityWindow.Std(),
				MaxRetries:       cfg.Session.MaxRetries,
			})

			appointments := skill.NewAppointmentSkill(skill.AppointmentDeps{
				Sessions: sessions,
				Cache: cache.New(cache.Options{
					IdentityTTL: cfg.Cache.IdentityTTL.Std(),
					ResultsTTL:  cfg.Cache.ResultsTTL.Std(),
					MaxEntries:  cfg.Cache.MaxEntries,
				}),
				Source:          buildSource(cfg),
				Executor:        executor.NewSimulatedExecutor(log),
				NLU:             nluClient,
				Log:             log,
				NLUTimeout:      cfg.NLU.Timeout.Std(),
				UpstreamTimeout: cfg.Upstream.Timeout.Std(),
			})

			if conversationID == "" {
				conversationID = uuid.New().String()
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "conversation %s (%s) — empty line or Ctrl+C to quit\n", conversationID, channel)

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				text := strings.TrimSpace(scanner.Text())
				if text == "" {
					return nil
				}

				result, err := appointments.Execute(ctx, skill.Turn{
					ConversationID: conversationID,
					Text:           text,
					Channel:        domain.Channel(channel),
				})
				if err != nil {
					return err
				}

				fmt.Fprintln(out, result.Message)
				if len(result.Suggested) > 0 {
					labels := make([]string, 0, len(result.Suggested))
					for _, a := range result.Suggested {
						labels = append(labels, a.Label)
					}
					fmt.Fprintf(out, "[%s]\n", strings.Join(labels, " | "))
				}
				if result.Complete {
					// Next message starts a fresh task in the same conversation.
					fmt.Fprintln(out, "(task finished)")
				}
			}
		},
	}

	cmd.Flags().StringVar(&channel, "channel", string(domain.ChannelChat), "inbound channel (chat, whatsapp, voice)")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id (defaults to a fresh UUID)")

	return cmd
}
