package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/gadgetchat/internal/auth"
	"github.com/suPer8Hu/gadgetchat/internal/chatclient"
	"github.com/suPer8Hu/gadgetchat/internal/config"
)

func newOpenCmd(cfg config.Config) *cobra.Command {
	var (
		server string
		token  string
	)

	cmd := &cobra.Command{
		Use:   "open <request-id>",
		Short: "Join the chat of a request",
		Long: `Follows the chat of a request. Lines typed are sent as messages.
Commands: /reconnect, /close, /switch <request-id>, /read <message-id>, /quit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return errors.New("no token: set CHAT_TOKEN or pass --token")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// the subject only decides how own messages are rendered
			var self string
			if claims, err := auth.ParseJWT(token, cfg.JWTSecret); err == nil {
				self = claims.Subject
			}

			api := chatclient.NewHTTPClient(server, chatclient.StaticToken(token))
			return runChat(ctx, api, self, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&server, "server", cfg.ChatServerURL, "chat server base URL")
	cmd.Flags().StringVar(&token, "token", cfg.ChatToken, "bearer token")
	return cmd
}

// printer renders transcript and status updates; handlers run on client goroutines.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	self    string
	printed map[string]bool
}

func newPrinter(out io.Writer, self string) *printer {
	return &printer{out: out, self: self, printed: make(map[string]bool)}
}

func (p *printer) status(s chatclient.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "-- %s\n", s)
}

func (p *printer) transcript(msgs []chatclient.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(msgs) == 0 {
		// conversation switched or reset
		p.printed = make(map[string]bool)
		return
	}
	for _, m := range msgs {
		if p.printed[m.ID] {
			continue
		}
		p.printed[m.ID] = true
		fmt.Fprintln(p.out, formatMessage(m, p.self))
	}
}

func (p *printer) line(format string, a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", a...)
}

func formatMessage(m chatclient.Message, self string) string {
	who := m.SenderID
	switch {
	case self != "" && m.Mine(self):
		who = "you"
	case m.SenderRole.Privileged():
		who = "support"
	}
	ts := m.CreatedAt
	if len(ts) >= 19 {
		ts = ts[11:19]
	}
	return fmt.Sprintf("[%s] %s: %s", ts, who, m.Body)
}

func runChat(ctx context.Context, api chatclient.API, self, requestID string, in io.Reader, out io.Writer) error {
	p := newPrinter(out, self)
	s := chatclient.NewSession(api,
		chatclient.WithLogger(log.Logger.With().Str("component", "chatclient").Logger()),
		chatclient.WithStatusHandler(p.status),
		chatclient.WithTranscriptHandler(p.transcript),
	)
	defer s.Shutdown()

	s.Activate(ctx, requestID)
	if err := s.WaitHistory(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.line("!! history: %v", err)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, s, p, line); quit {
				return nil
			}
		}
	}
}

// handleLine runs one input line and reports whether the client should exit.
func handleLine(ctx context.Context, s *chatclient.Session, p *printer, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		if _, err := s.Send(ctx, line); err != nil {
			p.line("!! send: %v", err)
		}
		return false
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "quit", "q":
		return true
	case "close":
		s.Close()
	case "reconnect", "r":
		if err := s.Reconnect(ctx); err != nil {
			p.line("!! reconnect: %v", err)
		}
	case "switch":
		if arg == "" {
			p.line("!! usage: /switch <request-id>")
			return false
		}
		s.Activate(ctx, arg)
		if err := s.WaitHistory(ctx); err != nil {
			p.line("!! history: %v", err)
		}
	case "read":
		if !s.UpdateLocal(arg, chatclient.Patch{Read: chatclient.Bool(true)}) {
			p.line("!! no message %q", arg)
		}
	default:
		p.line("!! unknown command /%s", cmd)
	}
	return false
}
