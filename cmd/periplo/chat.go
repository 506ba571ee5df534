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

	"github.com/google/uuid"

	"github.com/periplo-ai/periplo/pkg/agent"
	"github.com/periplo-ai/periplo/pkg/runtime"
)

// ChatCmd talks to the agent from the terminal, streaming the answer as
// it is composed. With TEXT it answers once and exits; without it starts
// a small REPL.
type ChatCmd struct {
	Text string `arg:"" optional:"" help:"One utterance to answer. Omit for an interactive session."`

	Provider string `help:"Reasoner provider (openai, anthropic, gemini, ollama)."`
	Model    string `help:"Reasoner model name."`
	APIKey   string `name:"api-key" help:"Reasoner API key (defaults to the provider's environment variable)."`
	Host     string `help:"Custom reasoner base URL."`

	User     string `help:"Session user id. A fresh id is minted when empty."`
	Thoughts bool   `help:"Print the reasoning chain after each answer."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, loader, err := loadConfig(cli, false)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Stop()
	}
	applyModelFlags(cfg, c.Provider, c.Model, c.APIKey, c.Host)

	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to assemble runtime: %w", err)
	}
	defer rt.Close()

	userID := c.User
	if userID == "" {
		userID = "cli-" + uuid.NewString()
	}

	if c.Text != "" {
		return c.ask(ctx, rt, userID, c.Text)
	}
	return c.repl(ctx, rt, userID)
}

func (c *ChatCmd) repl(ctx context.Context, rt *runtime.Runtime, userID string) error {
	fmt.Printf("\nChatting about %s. Commands: /new starts a fresh session, /quit exits.\n\n", rt.Config().Region)

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("You: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			switch input {
			case "/quit", "/exit":
				return nil
			case "/new":
				userID = "cli-" + uuid.NewString()
				fmt.Println("Started a fresh session")
				continue
			default:
				fmt.Printf("Unknown command: %s\n", input)
				continue
			}
		}

		if err := c.ask(ctx, rt, userID, input); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Printf("Error: %v\n\n", err)
		}
	}
}

func (c *ChatCmd) ask(ctx context.Context, rt *runtime.Runtime, userID, text string) error {
	fmt.Print("\nPeriplo: ")
	reply, err := rt.Agent().HandleStream(ctx, agent.Request{
		UserID:          userID,
		Text:            text,
		IncludeThoughts: c.Thoughts,
	}, func(delta string) {
		fmt.Print(delta)
	})
	if err != nil {
		fmt.Println()
		return err
	}
	fmt.Println()

	if reply.Degraded {
		fmt.Println("(degraded answer: reasoner unavailable)")
	}
	if c.Thoughts {
		for _, th := range reply.Thoughts {
			fmt.Printf("  [%d] %s\n", th.Step, th.Text)
			if len(th.Services) > 0 {
				fmt.Printf("      needs: %v\n", th.Services)
			}
		}
	}
	fmt.Println()
	return nil
}
