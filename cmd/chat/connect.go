package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"

	"github.com/omochice/livechat/internal/config"
	"github.com/omochice/livechat/internal/credentials"
	"github.com/omochice/livechat/internal/session"
	"github.com/omochice/livechat/internal/transcript"
	"github.com/omochice/livechat/internal/transport/ws"
)

const writeTimeout = 5 * time.Second

type connectOptions struct {
	server   string
	token    string
	username string
	save     string
}

func newConnectCmd() *cobra.Command {
	var opts connectOptions

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Join the chat and stream the conversation",
		Long: "Connects to the chat server, authenticates with the session token and prints the conversation.\n" +
			"Lines typed on stdin are sent as messages. /logout forgets the token, /quit leaves.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.server, "server", "", "WebSocket server address (default $CHAT_SERVER_URL or ws://localhost:8000)")
	cmd.Flags().StringVar(&opts.token, "token", "", "session token (default $CHAT_TOKEN or the stored token)")
	cmd.Flags().StringVar(&opts.username, "username", "", "display name (default $CHAT_USERNAME, the stored name or the token's claims)")
	cmd.Flags().StringVar(&opts.save, "save", "", "write a transcript snapshot to this file on exit")
	return cmd
}

func runConnect(cmd *cobra.Command, opts connectOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return &configError{err: err}
	}
	if opts.server != "" {
		cfg.ServerURL = opts.server
		if err := cfg.Validate(); err != nil {
			return &configError{err: err}
		}
	}

	log := logs.GetLoggerFromString(cfg.LogLevel)
	store := credentials.NewFileStore(cfg.CredentialsPath)

	creds, fresh, err := resolveCredentials(opts, cfg, store)
	if err != nil {
		return &configError{err: err}
	}
	if fresh {
		if err := store.Save(creds); err != nil {
			log.Warn("could not persist credentials", "path", store.Path, "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	entries := transcript.NewStore()
	m := session.NewManager(session.Config{
		URL:           cfg.ServerURL,
		DialTimeout:   cfg.DialTimeout,
		WriteTimeout:  writeTimeout,
		InboundBuffer: cfg.InboundBuffer,
	}, ws.Dialer{Timeout: cfg.DialTimeout},
		session.WithLogger(log),
		session.WithTranscript(entries),
		session.WithOnLogout(func() {
			if err := store.Clear(); err != nil {
				log.Error("could not clear credentials", "error", err)
			}
		}),
	)

	if _, err := m.Connect(ctx, creds.Token, creds.Username); err != nil {
		return fmt.Errorf("could not connect to %s: %w", cfg.ServerURL, err)
	}

	r := newRenderer(cmd.OutOrStdout(), creds.Username)
	r.notice("connected to %s as %s (/quit to leave, /logout to forget the token)", cfg.ServerURL, creds.Username)

	err = chatLoop(ctx, cmd.InOrStdin(), m, entries, r)
	if closeErr := m.Close(); closeErr != nil {
		log.Debug("error closing session", "error", closeErr)
	}
	r.render(entries)

	if opts.save != "" {
		if saveErr := saveSnapshot(opts.save, entries); saveErr != nil {
			return errors.Join(err, saveErr)
		}
		log.Info("transcript saved", "path", opts.save, "entries", entries.Len())
	}
	return err
}

// resolveCredentials picks the token and username from flags, then the
// environment, then the store. fresh reports whether they should be saved.
func resolveCredentials(opts connectOptions, cfg *config.Config, store *credentials.FileStore) (credentials.Credentials, bool, error) {
	stored, err := store.Load()
	if err != nil && !errors.Is(err, credentials.ErrNoCredentials) {
		return credentials.Credentials{}, false, err
	}

	c := credentials.Credentials{
		Token:    firstNonEmpty(opts.token, cfg.Token),
		Username: firstNonEmpty(opts.username, cfg.Username),
	}
	if c.Token == "" {
		if stored.Token == "" {
			return credentials.Credentials{}, false, fmt.Errorf("%w: pass --token or set CHAT_TOKEN", credentials.ErrNoCredentials)
		}
		c.Token = stored.Token
	}
	if c.Username == "" && c.Token == stored.Token {
		c.Username = stored.Username
	}
	if c.Username == "" {
		name, err := credentials.UsernameFromToken(c.Token)
		if err != nil {
			return credentials.Credentials{}, false, fmt.Errorf("no username: pass --username or set CHAT_USERNAME: %w", err)
		}
		c.Username = name
	}
	return c, c != stored, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// chatLoop renders transcript changes and forwards stdin lines until the
// user quits, stdin ends, the server goes away or ctx is cancelled.
func chatLoop(ctx context.Context, in io.Reader, m *session.Manager, entries *transcript.Store, r *renderer) error {
	done := make(chan struct{})
	defer close(done)
	lines := scanLines(in, done)

	r.render(entries)
	for {
		select {
		case <-ctx.Done():
			r.notice("interrupted")
			return nil

		case <-m.Updates():
			r.render(entries)
			if m.Snapshot().State == session.StateDisconnected {
				r.notice("disconnected from server")
				return nil
			}

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch strings.TrimSpace(line) {
			case "":
				continue
			case "/quit":
				return nil
			case "/logout":
				if err := m.Logout(); err != nil {
					return err
				}
				r.notice("logged out")
				return nil
			}
			if !m.Send(line) {
				r.notice("message not sent: not connected")
			}
		}
	}
}

func scanLines(in io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}

func saveSnapshot(path string, entries *transcript.Store) error {
	data, err := transcript.MarshalSnapshot(entries.Entries())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write transcript snapshot: %w", err)
	}
	return nil
}
