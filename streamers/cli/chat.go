package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"chorus/streamers"
)

// ChatHandler drives an interactive single-participant conversation in the terminal
type ChatHandler struct {
	reader       *bufio.Reader
	out          io.Writer
	spinner      *spinner
	md           *markdown
	answerBuffer strings.Builder
}

// NewChatHandler creates a new CLI chat handler
func NewChatHandler() *ChatHandler {
	return &ChatHandler{
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		spinner: newSpinner(os.Stdout),
		md:      newMarkdown(true),
	}
}

func (s *ChatHandler) Welcome(participant string, modelName string, memory bool) {
	fmt.Fprintf(s.out, "%s%sStarting chat with '%s'%s (model: %s)\n", ColorBold, ColorOrange, participant, ColorReset, modelName)
	if memory {
		fmt.Fprintf(s.out, "%sConversation memory is on.%s\n", ColorGray, ColorReset)
	}
	fmt.Fprintf(s.out, "%sType 'exit' or 'quit' to end the conversation.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(s.out)
}

func (s *ChatHandler) AwaitClientAnswer() (string, error) {
	fmt.Fprintf(s.out, "%s>  %s", ColorGray, ColorReset)
	input, err := s.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	input = strings.TrimSpace(input)
	if input != "" {
		// Move cursor up, clear line, then reprint the message in light brown
		fmt.Fprint(s.out, "\033[1A\033[K")
		fmt.Fprintf(s.out, "%s>  %s%s\n\n", ColorGray, ColorLightBrown, input+ColorReset)
	}
	return input, nil
}

func (s *ChatHandler) Goodbye() {
	fmt.Fprintf(s.out, "%sGoodbye!%s\n", ColorGray, ColorReset)
}

func (s *ChatHandler) Error(kind string, err error) {
	s.spinner.Stop()
	fmt.Fprintf(os.Stderr, "%sError (%s): %v%s\n\n", ColorRed, kind, err, ColorReset)
}

func (s *ChatHandler) Thinking() {
	s.spinner.Start("Waiting for answer...")
}

// PublishAnswerChunk buffers a streamed fragment; the spinner keeps running
func (s *ChatHandler) PublishAnswerChunk(chunk string) {
	s.answerBuffer.WriteString(chunk)
}

func (s *ChatHandler) FinishAnswer(usage streamers.UsageInfo) {
	s.spinner.Stop()

	content := s.answerBuffer.String()
	s.answerBuffer.Reset()
	if content == "" {
		return
	}
	fmt.Fprintf(s.out, "%s•%s%s\n", ColorGray, ColorReset, s.md.Render(content))
	fmt.Fprintf(s.out, "%s(%d in / %d out tokens, $%.6f, balance $%.4f)%s\n\n",
		ColorGray, usage.InputTokens, usage.OutputTokens, usage.Cost, usage.Balance, ColorReset)
}
