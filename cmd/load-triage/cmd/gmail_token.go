// Copyright 2024 Load Triage
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"load-triage/internal/email"
)

var (
	tokenClientID     string
	tokenClientSecret string
	tokenPort         int
)

var gmailTokenCmd = &cobra.Command{
	Use:   "gmail-token",
	Short: "Obtain a Gmail refresh token for mailbox polling",
	Long: `Run the OAuth2 consent flow for the Gmail account that receives inquiries.
Open the printed URL, approve access, and the redirect to the local callback
completes the exchange. The resulting settings are printed for your .env file.

The OAuth2 client must list http://localhost:<port>/callback as a redirect URI.`,
	Args: cobra.NoArgs,
	RunE: runGmailToken,
}

func init() {
	gmailTokenCmd.Flags().StringVar(&tokenClientID, "client-id", "", "OAuth2 client ID (default: gmail.client_id)")
	gmailTokenCmd.Flags().StringVar(&tokenClientSecret, "client-secret", "", "OAuth2 client secret (default: gmail.client_secret)")
	gmailTokenCmd.Flags().IntVar(&tokenPort, "port", 8090, "local port for the OAuth2 callback")
	rootCmd.AddCommand(gmailTokenCmd)
}

func runGmailToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}
	if tokenClientID == "" {
		tokenClientID = cfg.GmailClientID
	}
	if tokenClientSecret == "" {
		tokenClientSecret = cfg.GmailClientSecret
	}
	if tokenClientID == "" || tokenClientSecret == "" {
		return errors.New("client ID and secret are required (flags or gmail.client_id / gmail.client_secret)")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	addr := net.JoinHostPort("localhost", strconv.Itoa(tokenPort))
	oauthConfig := &oauth2.Config{
		ClientID:     tokenClientID,
		ClientSecret: tokenClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  "http://" + addr + "/callback",
		Scopes:       email.GmailScopes,
	}

	state := uuid.NewString()
	code, err := awaitAuthCode(ctx, addr, state, func(listening string) {
		authURL := oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
		fmt.Fprintf(cmd.OutOrStdout(), "Visit this URL to authorize Gmail access:\n\n%s\n\nWaiting for the callback on %s...\n", authURL, listening)
	})
	if err != nil {
		return err
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	token, err := oauthConfig.Exchange(exchangeCtx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if token.RefreshToken == "" {
		return errors.New("no refresh token returned; revoke the app's access in your Google account and retry")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nAdd these to your .env file:")
	fmt.Fprintf(out, "LOAD_TRIAGE_GMAIL_CLIENT_ID=%s\n", tokenClientID)
	fmt.Fprintf(out, "LOAD_TRIAGE_GMAIL_CLIENT_SECRET=%s\n", tokenClientSecret)
	fmt.Fprintf(out, "LOAD_TRIAGE_GMAIL_REFRESH_TOKEN=%s\n", token.RefreshToken)
	return nil
}

// awaitAuthCode serves the OAuth2 callback on addr until a code with the expected
// state arrives or ctx is done. ready runs with the bound address once the listener is up.
func awaitAuthCode(ctx context.Context, addr, state string, ready func(listening string)) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen for the OAuth2 callback: %w", err)
	}

	codes := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "no authorization code received", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Authorization received. You can close this window.")
		select {
		case codes <- code:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(listener)
	defer srv.Close()

	ready(listener.Addr().String())

	select {
	case code := <-codes:
		return code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
