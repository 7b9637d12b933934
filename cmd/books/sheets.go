package main

import (
	"fmt"
	"os"

	"github.com/Veraticus/autobooks/internal/cli"
	"github.com/Veraticus/autobooks/internal/config"
	"github.com/Veraticus/autobooks/internal/sheets"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func sheetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Google Sheets ledger sink",
	}
	cmd.AddCommand(sheetsAuthCmd())
	return cmd
}

func sheetsAuthCmd() *cobra.Command {
	var tokenFile string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Obtain an OAuth2 refresh token for the Sheets sink",
		Long: `Run the browser consent flow for sheets.client_id and print the refresh
token to put in sheets.refresh_token (or GOOGLE_SHEETS_REFRESH_TOKEN).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			clientID := viper.GetString("sheets.client_id")
			if clientID == "" {
				clientID = os.Getenv("GOOGLE_SHEETS_CLIENT_ID")
			}
			clientSecret := viper.GetString("sheets.client_secret")
			if clientSecret == "" {
				clientSecret = os.Getenv("GOOGLE_SHEETS_CLIENT_SECRET")
			}

			out := cmd.OutOrStdout()
			token, err := sheets.Authenticate(cmd.Context(), sheets.OAuth2Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				TokenFile:    config.ExpandPath(tokenFile),
			}, func(url string) {
				fmt.Fprintln(out, cli.FormatInfo("Open this URL to authorize access to Google Sheets:"))
				fmt.Fprintln(out, url)
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(out, cli.FormatSuccess("Authorized"))
			fmt.Fprintf(out, "sheets.refresh_token: %s\n", token.RefreshToken)
			return nil
		},
	}

	cmd.Flags().StringVar(&tokenFile, "token-file", "~/.config/books/sheets-token.json", "where to save the token")
	return cmd
}
