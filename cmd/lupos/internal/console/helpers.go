package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tinyland-inc/lupos/cmd/lupos/internal"
	"github.com/tinyland-inc/lupos/pkg/chat"
	"github.com/tinyland-inc/lupos/pkg/logger"
)

func chatCmd(message string, debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if debug {
		cfg.Generation.Debug = true
	}

	ctx := context.Background()
	rt, err := internal.NewRuntime(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("error creating runtime: %w", err)
	}

	self := chat.User{ID: "1", Username: strings.ToLower(rt.Persona.Name), GlobalName: rt.Persona.Name, Bot: true}
	me := localUser()
	directory := chat.NewStaticDirectory(self, me)
	s := newSession(rt.NewResponder(self, directory), rt.Meter, me, self, cfg.Generation.RecentMessages)

	if message != "" {
		reply, err := s.handle(ctx, message)
		if err != nil {
			return fmt.Errorf("error processing message: %w", err)
		}
		fmt.Printf("\n%s %s\n", internal.Logo, reply)
		return nil
	}

	fmt.Printf("%s Interactive mode with %s (Ctrl+C to exit, /help for commands)\n\n", internal.Logo, rt.Persona.Name)
	interactiveMode(ctx, s)
	return nil
}

func localUser() chat.User {
	name := "user"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	return chat.User{ID: "2", Username: name}
}

func interactiveMode(ctx context.Context, s *session) {
	prompt := fmt.Sprintf("%s You: ", internal.Logo)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(internal.ConfigDir(), "chat_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleInteractiveMode(ctx, s)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if !respond(ctx, s, line) {
			return
		}
	}
}

func simpleInteractiveMode(ctx context.Context, s *session) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("%s You: ", internal.Logo)
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if !respond(ctx, s, line) {
			return
		}
	}
}

// respond reports false when the user asked to leave.
func respond(ctx context.Context, s *session, line string) bool {
	input := strings.TrimSpace(line)
	if input == "exit" || input == "quit" {
		fmt.Println("Goodbye!")
		return false
	}

	reply, err := s.handle(ctx, input)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return true
	}
	if reply != "" {
		fmt.Printf("\n%s %s\n\n", internal.Logo, reply)
	}
	return true
}
