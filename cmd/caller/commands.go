package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/voicecall/internal/adapters/store"
	"github.com/dkeye/voicecall/internal/app/call"
	"github.com/dkeye/voicecall/internal/domain"
)

const endTimeout = 5 * time.Second

var (
	video       bool
	decline     bool
	historySize int
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Start a call to --peer in --conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, err := newParticipant(ctx, cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		ct := domain.CallTypeVoice
		if video {
			ct = domain.CallTypeVideo
		}
		if err := p.mgr.StartCall(ctx, ct); err != nil {
			return fmt.Errorf("start call: %w", err)
		}
		log.Info().Str("module", "caller").Str("session_id", string(p.mgr.SessionID())).Str("call_type", string(ct)).Msg("calling")
		return p.run(ctx, nil)
	},
}

var answerCmd = &cobra.Command{
	Use:   "answer",
	Short: "Wait in --conversation and answer (or decline) the next incoming call",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p, err := newParticipant(ctx, cfg)
		if err != nil {
			return err
		}
		defer p.Close()

		log.Info().Str("module", "caller").Str("conversation", conversation).Msg("waiting for a call")
		return p.run(ctx, func(in call.IncomingCall) {
			if decline {
				if err := p.mgr.DeclineCall(ctx); err != nil {
					log.Error().Err(err).Str("module", "caller").Msg("decline")
				}
				return
			}
			if err := p.mgr.AnswerCall(ctx, in.Offer, in.CallType); err != nil {
				log.Error().Err(err).Str("module", "caller").Msg("answer")
			}
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the most recent call logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := store.OpenSQLite(cfg.Store.SQLitePath, 1)
		if err != nil {
			return err
		}
		defer db.Close()

		logs, err := db.Recent(context.Background(), historySize)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tSTARTED\tDURATION")
		for _, l := range logs {
			started := "-"
			if !l.StartedAt.IsZero() {
				started = l.StartedAt.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%ds\n", l.ID, l.CallType, l.Status, started, l.DurationSeconds)
		}
		return w.Flush()
	},
}

func init() {
	callCmd.Flags().BoolVar(&video, "video", false, "place a video call")
	answerCmd.Flags().BoolVar(&decline, "decline", false, "decline instead of answering")
	historyCmd.Flags().IntVarP(&historySize, "limit", "n", 20, "number of calls to show")
}
