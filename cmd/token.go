package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"ocrbot/internal/auth"
	"ocrbot/internal/logger"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Exchange the Baidu credentials for an access token",
	Long: `Run the OAuth2 client-credentials exchange once and print when the token
expires. Useful to check OCRBOT_BAIDU_API_KEY and OCRBOT_BAIDU_SECRET_KEY
before starting the bot. The token itself is only printed with --show.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().Bool("show", false, "Print the access token")
}

func runToken(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("token")
	show, _ := cmd.Flags().GetBool("show")

	tokens, _ := newRecognizer(newHTTPClient())
	token, err := tokens.Token(cmd.Context())
	if err != nil {
		log.Error().Err(err).Msg("Token exchange failed")
		switch {
		case errors.Is(err, auth.ErrNotConfigured):
			return fmt.Errorf("Baidu credentials not configured. Set OCRBOT_BAIDU_API_KEY and OCRBOT_BAIDU_SECRET_KEY")
		case errors.Is(err, auth.ErrExchangeFailed):
			return fmt.Errorf("token exchange rejected, check the API key and secret key: %w", err)
		default:
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Token valid until %s (%s)\n",
		token.ExpiresAt.Format(time.RFC3339),
		time.Until(token.ExpiresAt).Round(time.Second))
	if show {
		fmt.Fprintln(out, token.Value)
	}
	return nil
}
