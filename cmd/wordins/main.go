package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"wordins/domain"
	"wordins/internal"
	"wordins/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the shell lifecycle, and
// centralizes error reporting. Deferred cleanup (store close, engine
// stop) executes before the process exits, which os.Exit in main would
// skip.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := internal.LoggerFromLevel(config.LogLevel)

	// 2. Engine (opens BadgerDB, wires the controllers)
	engine, err := services.NewEngine(config, log)
	if err != nil {
		return fmt.Errorf("engine init failed: %w", err)
	}
	defer func() {
		log.Info("Stopping engine...")
		engine.Stop()
	}()

	// 3. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	engine.Start(ctx)

	// 4. Interactive shell
	sh := &shell{engine: engine, out: os.Stdout}
	color.Green.Println("wordins shell. Type 'help' for commands, 'user <id> <name>' to sign in.")
	return sh.loop(ctx, bufio.NewScanner(os.Stdin))
}

// shell is a line-oriented front end over the engine. It holds the
// signed-in identity and at most one open room whose messages and typing
// indicators stream to the terminal.
type shell struct {
	engine *services.Engine
	out    *os.File

	user     domain.Identity
	openRoom string
	messages *services.MessageSubscription
	presence *services.PresenceSubscription
}

func (s *shell) loop(ctx context.Context, in *bufio.Scanner) error {
	for {
		fmt.Fprint(s.out, "> ")
		if !in.Scan() {
			s.detach()
			return in.Err()
		}
		select {
		case <-ctx.Done():
			s.detach()
			return nil
		default:
		}

		fields := strings.Fields(in.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]
		if cmd == "quit" || cmd == "exit" {
			s.detach()
			return nil
		}
		if err := s.dispatch(ctx, cmd, args); err != nil {
			color.Red.Printf("error: %v\n", err)
		}
	}
}

func (s *shell) dispatch(ctx context.Context, cmd string, args []string) error {
	if cmd != "help" && cmd != "user" && s.user.ID == "" {
		return fmt.Errorf("sign in first: user <id> <name>")
	}

	switch cmd {
	case "help":
		s.printHelp()
		return nil
	case "user":
		if len(args) < 2 {
			return fmt.Errorf("usage: user <id> <name>")
		}
		s.detach()
		s.user = domain.Identity{ID: args[0], Name: strings.Join(args[1:], " ")}
		color.Green.Printf("signed in as %s (%s)\n", s.user.Name, s.user.ID)
		return nil
	case "create":
		return s.create(ctx, args)
	case "join":
		return s.join(ctx, args)
	case "cancel":
		if len(args) != 1 {
			return fmt.Errorf("usage: cancel <room>")
		}
		return s.engine.Membership.CancelJoinRequest(ctx, args[0], s.user)
	case "requests":
		return s.requests(ctx, args)
	case "approve", "reject":
		return s.decide(ctx, cmd, args)
	case "leave":
		if len(args) != 1 {
			return fmt.Errorf("usage: leave <room>")
		}
		if args[0] == s.openRoom {
			s.detach()
		}
		return s.engine.Membership.LeaveRoom(ctx, args[0], s.user)
	case "open":
		return s.open(args)
	case "close":
		s.detach()
		return nil
	case "send":
		return s.send(ctx, args)
	case "typing":
		if s.openRoom == "" {
			return fmt.Errorf("open a room first")
		}
		return s.engine.Presence.SetTyping(ctx, s.openRoom, s.user, true)
	case "rooms":
		return s.rooms(ctx)
	default:
		return fmt.Errorf("unknown command %q, try 'help'", cmd)
	}
}

func (s *shell) create(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: create <name...> [--invite]")
	}
	inviteOnly := false
	if last := args[len(args)-1]; last == "--invite" {
		inviteOnly = true
		args = args[:len(args)-1]
	}
	room, err := s.engine.Membership.CreateRoom(ctx, strings.Join(args, " "), inviteOnly, s.user)
	if err != nil {
		return err
	}
	color.Green.Printf("created room %s\n", room.ID)
	return nil
}

func (s *shell) join(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: join <room>")
	}
	state, err := s.engine.Membership.RequestJoin(ctx, args[0], s.user)
	if err != nil {
		return err
	}
	color.Cyan.Printf("membership state: %s\n", state)
	return nil
}

func (s *shell) decide(ctx context.Context, verb string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: %s <room> <user-id>", verb)
	}
	decision := services.Approve
	if verb == "reject" {
		decision = services.Reject
	}
	status, err := s.engine.Membership.DecideJoinRequest(ctx, args[0], args[1], decision, s.user)
	if err != nil {
		return err
	}
	color.Cyan.Printf("request is now %s\n", status)
	return nil
}

func (s *shell) requests(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: requests <room>")
	}
	sub, err := s.engine.Membership.WatchJoinRequests(ctx, args[0], s.user)
	if err != nil {
		return err
	}
	defer sub.Cancel()

	pending, ok := <-sub.Updates()
	if !ok {
		return nil
	}
	table := tablewriter.NewWriter(s.out)
	table.SetHeader([]string{"User", "Name", "Requested At"})
	for _, r := range pending {
		table.Append([]string{r.RequesterID, r.Name, r.RequestedAt.Format("15:04:05")})
	}
	table.Render()
	return nil
}

func (s *shell) rooms(ctx context.Context) error {
	visible, err := s.engine.Directory.ListVisible(ctx, s.user)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(s.out)
	table.SetHeader([]string{"Room", "Name", "Access", "Status"})
	for _, r := range visible {
		access, status := "open", "member"
		if r.InviteOnly {
			access = "invite-only"
		}
		if r.Pending {
			status = "pending"
		}
		table.Append([]string{r.ID, r.DisplayName, access, status})
	}
	table.Render()
	return nil
}

// open attaches the shell to a room: every timeline refresh reprints the
// last messages and every presence change prints who is typing.
func (s *shell) open(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: open <room>")
	}
	s.detach()

	messages, err := s.engine.Messages.Subscribe(args[0])
	if err != nil {
		return err
	}
	presence, err := s.engine.Presence.Subscribe(args[0], s.user.ID)
	if err != nil {
		messages.Cancel()
		return err
	}
	s.openRoom, s.messages, s.presence = args[0], messages, presence

	go func() {
		for msgs := range messages.Updates() {
			if len(msgs) == 0 {
				continue
			}
			last := msgs[len(msgs)-1]
			line := fmt.Sprintf("[%s] %s: %s", last.SentAt.Format("15:04:05"), last.SenderName, last.Body)
			if last.Effect != "" {
				line += color.Magenta.Sprintf(" (%s)", last.Effect)
			}
			fmt.Fprintln(s.out, color.Yellow.Render(line))
		}
	}()
	go func() {
		for names := range presence.Updates() {
			if len(names) > 0 {
				color.Gray.Printf("%s typing...\n", strings.Join(names, ", "))
			}
		}
	}()
	color.Green.Printf("opened %s\n", args[0])
	return nil
}

func (s *shell) send(ctx context.Context, args []string) error {
	if s.openRoom == "" {
		return fmt.Errorf("open a room first")
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: send <text...> or send /<effect>")
	}
	cmd := services.SendCommand{RoomID: s.openRoom, Sender: s.user}
	if effect, ok := strings.CutPrefix(args[0], "/"); ok && len(args) == 1 {
		cmd.Effect = domain.Effect(effect)
	} else {
		cmd.Body = strings.Join(args, " ")
	}
	_, err := s.engine.Messages.Send(ctx, cmd)
	return err
}

func (s *shell) detach() {
	if s.messages != nil {
		s.messages.Cancel()
		s.messages = nil
	}
	if s.presence != nil {
		s.presence.Cancel()
		s.presence = nil
	}
	s.openRoom = ""
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.out, `commands:
  user <id> <name>          sign in as an identity
  create <name> [--invite]  create a room (invite-only with --invite)
  join <room>               join an open room or request access
  cancel <room>             withdraw a pending join request
  requests <room>           list pending requests (creator only)
  approve <room> <user-id>  approve a pending request (creator only)
  reject <room> <user-id>   reject a pending request (creator only)
  leave <room>              leave a room
  open <room>               stream a room's messages and typing state
  close                     stop streaming
  send <text...>            post to the open room (send /confetti for effects)
  typing                    signal that you are typing in the open room
  rooms                     list your recent rooms
  quit`)
}
