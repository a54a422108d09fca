package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	signalURL    string
	self         string
	peer         string
	conversation string
	displayName  string
)

var rootCmd = &cobra.Command{
	Use:   "caller",
	Short: "caller places and answers voicecall calls from a terminal",
	Long: `caller is a headless call participant. It joins a conversation on the
signaling relay and drives one call session at a time.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	rootCmd.PersistentFlags().StringVar(&signalURL, "signal-url", "", "relay websocket url (overrides signal.url)")
	rootCmd.PersistentFlags().StringVar(&self, "self", "", "own user id, sent as the client token")
	rootCmd.PersistentFlags().StringVar(&peer, "peer", "", "user id of the other participant")
	rootCmd.PersistentFlags().StringVarP(&conversation, "conversation", "c", "", "conversation id")
	rootCmd.PersistentFlags().StringVar(&displayName, "name", "", "display name announced to the peer")

	rootCmd.AddCommand(callCmd, answerCmd, historyCmd)
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
