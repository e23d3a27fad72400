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

	"github.com/spf13/cobra"

	"project_handoff/internal/config"
	"project_handoff/internal/entities"
	"project_handoff/internal/gateway"
	"project_handoff/internal/livesession"
	"project_handoff/internal/repository"
	"project_handoff/internal/usecases"
)

var (
	watchAs      string
	watchGateway string
	watchTail    int
)

type inputKind int

const (
	inputMessage inputKind = iota
	inputTakeOver
	inputRelease
	inputBot
	inputQuit
	inputUnknown
)

// parseInput reads one line typed in the watch view. Lines starting with a
// slash are commands; everything else is a message.
func parseInput(line string) (inputKind, string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return inputMessage, line
	}
	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(cmd) {
	case "takeover", "take":
		return inputTakeOver, ""
	case "release":
		return inputRelease, ""
	case "bot":
		if arg == "on" || arg == "off" {
			return inputBot, arg
		}
	case "quit", "exit":
		return inputQuit, ""
	}
	return inputUnknown, line
}

var watchCmd = &cobra.Command{
	Use:   "watch <user-id>",
	Short: "Follow and answer a conversation live",
	Long: `Joins the conversation's room on the socket gateway and renders every
message as it is committed. Typed lines are sent as admin messages.

Commands:
  /takeover      take the conversation over from the bot
  /release       hand it back to the bot
  /bot on|off    enable or disable bot replies
  /quit          leave`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := args[0]
		cfg, err := config.Load()
		if err == nil {
			err = cfg.ValidateBackend()
		}
		if err != nil {
			return err
		}
		adminID := watchAs
		if adminID == "" {
			adminID = cfg.Auth.AdminUsername
		}
		url := watchGateway
		if url == "" {
			url = cfg.Worker.GatewayURL
		}
		log := cliLogger()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		pg, err := openDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer pg.Close()

		token, err := usecases.NewAuthUsecase(nil, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).IssueToken(adminID, "admin")
		if err != nil {
			return err
		}
		sock, err := gateway.DialAdmin(ctx, url, token)
		if err != nil {
			return fmt.Errorf("connect to gateway: %w", err)
		}
		defer sock.Close()

		sess := livesession.New(userID, adminID, sock, log)
		defer sess.Wait()
		defer sess.Close()

		// Join first so nothing committed during hydration is missed; the
		// timeline drops the overlap.
		if err := sock.Join(ctx, userID); err != nil {
			return fmt.Errorf("join room: %w", err)
		}
		turns, err := repository.NewTurnRepository(pg.Pool).ListByUser(ctx, userID, 200)
		if err != nil {
			return fmt.Errorf("load turns: %w", err)
		}
		state, err := repository.NewOwnershipRepository(pg.Pool).Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("load ownership: %w", err)
		}
		sess.Hydrate(turns, state)

		go func() {
			for ev := range sock.Events() {
				sess.Apply(ev)
			}
		}()

		w := &watcher{sock: sock, sess: sess, out: cmd.OutOrStdout(), tail: watchTail}
		return w.loop(ctx, readLines(cmd.InOrStdin()))
	},
}

// adminSocket is what the watch view needs from the gateway connection.
type adminSocket interface {
	Done() <-chan struct{}
	Err() error
	TakeOver(ctx context.Context, userID string) (entities.OwnershipState, error)
	Release(ctx context.Context, userID string) (entities.OwnershipState, error)
	SetBotEnabled(ctx context.Context, userID string, enabled bool) (entities.OwnershipState, error)
}

type watcher struct {
	sock    adminSocket
	sess    *livesession.Session
	out     io.Writer
	tail    int
	pending []string
}

func (w *watcher) loop(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.sock.Done():
			if err := w.sock.Err(); err != nil {
				return fmt.Errorf("gateway connection closed: %w", err)
			}
			return nil
		case <-w.sess.Changes():
			w.render()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := w.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

func (w *watcher) render() {
	fmt.Fprintln(w.out, renderView(w.sess.UserID, w.sess.Ownership(), w.sess.Entries(), w.tail))

	kept := w.pending[:0]
	for _, id := range w.pending {
		out, ok := w.sess.Outcome(id)
		switch {
		case !ok:
		case out.Status == livesession.Failed:
			fmt.Fprintln(w.out, errorStyle.Render(fmt.Sprintf("not sent: %q: %v", out.Text, out.Err)))
		case out.Status == livesession.Pending:
			kept = append(kept, id)
		}
	}
	w.pending = kept
}

// handle runs one typed line and reports whether the view should close.
func (w *watcher) handle(ctx context.Context, line string) bool {
	kind, arg := parseInput(line)
	var err error
	switch kind {
	case inputQuit:
		return true
	case inputUnknown:
		err = fmt.Errorf("unknown command %q", arg)
	case inputTakeOver:
		_, err = w.sock.TakeOver(ctx, w.sess.UserID)
	case inputRelease:
		_, err = w.sock.Release(ctx, w.sess.UserID)
	case inputBot:
		_, err = w.sock.SetBotEnabled(ctx, w.sess.UserID, arg == "on")
	case inputMessage:
		if arg == "" {
			return false
		}
		w.sess.Compose(arg)
		var tempID string
		if tempID, err = w.sess.Send(); err == nil {
			w.pending = append(w.pending, tempID)
		}
	}
	if err != nil {
		var remote *gateway.RemoteError
		if errors.As(err, &remote) {
			err = errors.New(remote.Message)
		}
		fmt.Fprintln(w.out, errorStyle.Render(err.Error()))
	}
	return false
}

func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func init() {
	watchCmd.Flags().StringVar(&watchAs, "as", "", "Admin id to act as (defaults to ADMIN_USERNAME)")
	watchCmd.Flags().StringVar(&watchGateway, "gateway", "", "Socket gateway URL (defaults to GATEWAY_URL)")
	watchCmd.Flags().IntVar(&watchTail, "tail", 30, "Number of messages to show")
}
