package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/log"
	gsheet "ledger/internal/sheets/google"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

const authorizeTimeout = 5 * time.Minute

// sheetsAuthCmd runs the installed-app OAuth flow once and saves the token
// the export worker uses when it writes as a user instead of a service
// account.
func sheetsAuthCmd() *cobra.Command {
	var (
		port    string
		outFile string
	)
	cmd := &cobra.Command{
		Use:   "sheets-auth",
		Short: "Authorize Google Sheets export with a user account",
		Long: `Opens an OAuth consent URL, waits for the redirect on localhost and writes
the resulting token to a file. Requires GOOGLE_OAUTH_CLIENT_JSON or
GOOGLE_OAUTH_CLIENT_FILE; add http://localhost:<port>/callback to the
client's authorized redirect URIs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := cli.SetupLogger(config.Load().LogLevel).WithComponent(log.ComponentSheets)

			cfg, err := gsheet.OAuthConfigFromEnv()
			if err != nil {
				return fmt.Errorf("%w (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)", err)
			}
			cfg.RedirectURL = "http://localhost:" + port + "/callback"

			ctx, stop := cli.SignalContext(cmd.Context(), logger)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, authorizeTimeout)
			defer cancel()

			tok, err := authorize(ctx, cfg, port, func(url string) {
				fmt.Fprintf(cmd.OutOrStdout(), "Open this URL to authorize:\n%s\n", url)
			})
			if err != nil {
				return err
			}
			if err := gsheet.SaveToken(outFile, tok); err != nil {
				return err
			}
			logger.Info("Saved OAuth token", "path", outFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "port", envOr("OAUTH_REDIRECT_PORT", "8085"), "local port for the OAuth redirect")
	cmd.Flags().StringVar(&outFile, "out", envOr("GOOGLE_OAUTH_TOKEN_FILE", "token.json"), "file the token is written to")
	return cmd
}

// authorize serves the redirect endpoint until the consent code arrives and
// exchanges it for a token.
func authorize(ctx context.Context, cfg *oauth2.Config, port string, show func(url string)) (*oauth2.Token, error) {
	state, err := randomState()
	if err != nil {
		return nil, err
	}

	type result struct {
		code string
		err  error
	}
	resCh := make(chan result, 1)
	deliver := func(ch chan result, r result) {
		select {
		case ch <- r:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("error") != "":
			http.Error(w, "OAuth error: "+q.Get("error"), http.StatusBadRequest)
			deliver(resCh, result{err: fmt.Errorf("authorization denied: %s", q.Get("error"))})
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		default:
			fmt.Fprintln(w, "You may close this window and return to the terminal.")
			deliver(resCh, result{code: q.Get("code")})
		}
	})

	ln, err := net.Listen("tcp", "localhost:"+port)
	if err != nil {
		return nil, fmt.Errorf("listen for redirect: %w", err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	show(cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

	select {
	case res := <-resCh:
		if res.err != nil {
			return nil, res.err
		}
		tok, err := cfg.Exchange(ctx, res.code)
		if err != nil {
			return nil, fmt.Errorf("token exchange: %w", err)
		}
		return tok, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.New("authorization timed out")
		}
		return nil, ctx.Err()
	}
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
