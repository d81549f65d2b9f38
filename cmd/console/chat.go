package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"adherence-agent/internal/app"
	"adherence-agent/internal/repository"
	"adherence-agent/internal/usecase"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run a check-in conversation from stdin",
	Long: `Reads one turn per line as an intent name followed by slot=value pairs,
for example:

  ProvideIdentifier identifier=ABC123
  TookMedication
  Yes
  DescribeChange detail=took half a tablet

An empty line is a silent turn. The conversation stops when the session
ends or stdin is closed.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	care, err := careClient(ctx, cfg)
	if err != nil {
		return err
	}
	machine, err := app.NewMachine(cfg, care, logger)
	if err != nil {
		return err
	}
	persister, err := app.NewPersister(cfg, care, logger)
	if err != nil {
		return err
	}
	turns, err := usecase.NewTurnService(repository.NewMemoryStore(), machine, logger, usecase.WithPersister(persister))
	if err != nil {
		return err
	}
	return chat(ctx, turns, cmd.InOrStdin(), cmd.OutOrStdout())
}

type turnHandler interface {
	Handle(ctx context.Context, in usecase.TurnInput) (usecase.TurnOutput, error)
}

func chat(ctx context.Context, turns turnHandler, in io.Reader, out io.Writer) error {
	res, err := turns.Handle(ctx, usecase.TurnInput{RequestType: usecase.RequestLaunch})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "< %s\n", res.Prompt)
	sessionID := res.SessionID

	scanner := bufio.NewScanner(in)
	for !res.ShouldEndSession {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		intent, slots := parseLine(scanner.Text())
		res, err = turns.Handle(ctx, usecase.TurnInput{
			SessionID:   sessionID,
			RequestType: usecase.RequestIntent,
			Intent:      intent,
			Slots:       slots,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "< %s\n", res.Prompt)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	if !res.ShouldEndSession {
		_, err = turns.Handle(ctx, usecase.TurnInput{SessionID: sessionID, RequestType: usecase.RequestSessionEnded})
		return err
	}
	fmt.Fprintf(out, "[session %s ended in %s]\n", sessionID, res.State)
	return nil
}

// parseLine splits "Intent a=1 b=two words" into the intent and its slots.
// Words without '=' continue the previous slot's value.
func parseLine(line string) (string, map[string]string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	intent := fields[0]
	slots := map[string]string{}
	last := ""
	for _, f := range fields[1:] {
		if name, value, ok := strings.Cut(f, "="); ok && name != "" {
			last = name
			slots[name] = value
			continue
		}
		if last != "" {
			slots[last] = strings.TrimSpace(slots[last] + " " + f)
		}
	}
	return intent, slots
}
