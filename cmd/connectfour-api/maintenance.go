package main

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/connectfour/internal/auth"
	"github.com/MarcoPoloResearchLab/connectfour/internal/config"
	"github.com/MarcoPoloResearchLab/connectfour/internal/logging"
	"github.com/MarcoPoloResearchLab/connectfour/internal/savedgames"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newTokenCommand(configViper *viper.Viper) *cobra.Command {
	var rawPlayerID int64
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a session token for a player",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(configViper)
			if err != nil {
				return err
			}
			playerID, err := savedgames.NewPlayerID(rawPlayerID)
			if err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.SigningSecret),
				Issuer:        appConfig.Issuer,
				TokenTTL:      appConfig.TokenTTL,
			})
			if err != nil {
				return err
			}
			token, _, err := issuer.IssuePlayerToken(cmd.Context(), playerID.Int64())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().Int64Var(&rawPlayerID, "player-id", 0, "Player id to embed as the token subject")
	_ = cmd.MarkFlagRequired("player-id")
	return cmd
}

func newPurgeCommand(configViper *viper.Viper) *cobra.Command {
	var rawPlayerID int64
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every saved game of a player",
		RunE: func(cmd *cobra.Command, args []string) error {
			storageConfig, err := config.LoadStorage(configViper)
			if err != nil {
				return err
			}

			playerID, err := savedgames.NewPlayerID(rawPlayerID)
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(storageConfig.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			gameStore, err := openStore(cmd.Context(), storageConfig, logger)
			if err != nil {
				return err
			}
			defer gameStore.close()

			if err := gameStore.games.Delete(cmd.Context(), playerID); err != nil {
				return err
			}
			logger.Info("saved games purged", zap.Int64("player_id", playerID.Int64()))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "purged saved games for player %d\n", playerID.Int64())
			return err
		},
	}
	cmd.Flags().Int64Var(&rawPlayerID, "player-id", 0, "Player whose saved games are deleted")
	_ = cmd.MarkFlagRequired("player-id")
	return cmd
}
