package application

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"crm-ai-agent/domain"
)

// ChatbotService runs an interactive session against a QueryProcessor.
// Every message is answered for the same request context.
type ChatbotService struct {
	processor domain.QueryProcessor
	input     domain.UserMessageProvider
	out       io.Writer
	rc        domain.RequestContext
	logger    *zap.Logger
}

// NewChatbotService creates a new ChatbotService.
//
// Args:
//
//	processor: answers each message.
//	input: the source of user messages.
//	out: where answers are written.
//	rc: the tenant the session acts for.
func NewChatbotService(processor domain.QueryProcessor, input domain.UserMessageProvider, out io.Writer, rc domain.RequestContext, logger *zap.Logger) *ChatbotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatbotService{
		processor: processor,
		input:     input,
		out:       out,
		rc:        rc,
		logger:    logger,
	}
}

// CreateConsoleUserMessageProvider creates a new UserMessageProvider that reads messages from the console.
func CreateConsoleUserMessageProvider() domain.UserMessageProvider {
	return &ConsoleUserMessageProvider{
		scanner: bufio.NewScanner(os.Stdin),
	}
}

// ConsoleUserMessageProvider provides user messages from the console.
// It uses a bufio.Scanner to read input from the standard input.
type ConsoleUserMessageProvider struct {
	scanner *bufio.Scanner
}

// GetUserMessage prints a prompt and waits for one line. It returns false
// once input is exhausted.
func (p *ConsoleUserMessageProvider) GetUserMessage() (string, bool) {
	fmt.Print("\x1b[95mTú\x1b[0m: ")
	if !p.scanner.Scan() {
		return "", false
	}
	return p.scanner.Text(), true
}

var exitCommands = map[string]bool{"salir": true, "exit": true, "quit": true}

// StartChatbot reads messages until input ends, the user types an exit
// command or ctx is cancelled.
func (s *ChatbotService) StartChatbot(ctx context.Context) error {
	fmt.Fprintln(s.out, "Asistente CRM (escribe 'salir' o usa 'ctrl-c' para terminar)")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, ok := s.input.GetUserMessage()
		if !ok {
			return nil
		}
		msg = strings.TrimSpace(msg)
		if msg == "" {
			continue
		}
		if exitCommands[strings.ToLower(msg)] {
			return nil
		}

		result, err := s.processor.ProcessQuery(ctx, msg, s.rc)
		if err != nil {
			return fmt.Errorf("process query: %w", err)
		}
		s.logger.Debug("answered",
			zap.String("type", string(result.Intent.Type)),
			zap.String("entity", string(result.Intent.Entity)))
		fmt.Fprintf(s.out, "\x1b[93mAgente\x1b[0m: %s\n", result.Response)
	}
}
