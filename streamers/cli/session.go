package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"chorus/streamers"
)

// SessionOptions controls terminal output of a collaboration session
type SessionOptions struct {
	Out io.Writer
	// Verbose prints every participant's full contribution
	Verbose bool
	// Markdown renders the final answer with glamour
	Markdown bool
	// Spinner animates while participants are working
	Spinner bool
}

// SessionHandler implements streamers.SessionHandler for CLI output
type SessionHandler struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	md      *markdown
	spinner *spinner
	active  int
}

// NewSessionHandler creates a new CLI session handler
func NewSessionHandler(opts SessionOptions) *SessionHandler {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	h := &SessionHandler{out: out, verbose: opts.Verbose, md: newMarkdown(opts.Markdown)}
	if opts.Spinner {
		h.spinner = newSpinner(out)
	}
	return h
}

func (s *SessionHandler) SessionStarted(meta streamers.Meta, query string, participants []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "\n%s%s=== Session %s ===%s\n", ColorBold, ColorCyan, meta.SessionID, ColorReset)
	fmt.Fprintf(s.out, "%sQuery: %s%s\n", ColorGray, truncate(query, 200), ColorReset)
	fmt.Fprintf(s.out, "%sParticipants: %d%s\n\n", ColorGray, len(participants), ColorReset)
}

func (s *SessionHandler) StateChanged(meta streamers.Meta, from, to string) {
	if !s.verbose {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spinner.Stop()
	fmt.Fprintf(s.out, "%s[%d] %s -> %s%s\n", ColorGray, meta.Step, from, to, ColorReset)
}

func (s *SessionHandler) RolesAssigned(meta streamers.Meta, queryType string, roles map[string]streamers.RoleInfo, fallback bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	source := "coordinator " + meta.Participant
	if fallback {
		source = "fallback table"
	}
	fmt.Fprintf(s.out, "%s%s--- Roles (%s, from %s) ---%s\n", ColorBold, ColorCyan, orDash(queryType), source, ColorReset)

	ids := make([]string, 0, len(roles))
	for id := range roles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(s.out, "  %s%s%s: %s\n", ColorLightBrown, id, ColorReset, roles[id].Role)
		if s.verbose {
			fmt.Fprintf(s.out, "    %s%s%s\n", ColorGray, roles[id].Instruction, ColorReset)
		}
	}
	fmt.Fprintln(s.out)
}

func (s *SessionHandler) ParticipantStarted(meta streamers.Meta, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spinner.Stop()
	s.active++
	fmt.Fprintf(s.out, "%s[%s] Working as %s...%s\n", ColorLightBrown, meta.Participant, role, ColorReset)
	s.spinner.Start(fmt.Sprintf("%d participant(s) working...", s.active))
}

func (s *SessionHandler) ParticipantCompleted(meta streamers.Meta, role string, content string, usage streamers.UsageInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spinner.Stop()
	s.active--
	fmt.Fprintf(s.out, "%s%s[%s] %s done%s %s(%d in / %d out tokens, $%.6f, balance $%.4f)%s\n",
		ColorBold, ColorGreen, meta.Participant, role, ColorReset,
		ColorGray, usage.InputTokens, usage.OutputTokens, usage.Cost, usage.Balance, ColorReset)
	if s.verbose {
		fmt.Fprintf(s.out, "%s%s%s\n\n", ColorGray, content, ColorReset)
	}
	s.restartSpinner()
}

func (s *SessionHandler) ParticipantFailed(meta streamers.Meta, role string, kind string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spinner.Stop()
	s.active--
	fmt.Fprintf(s.out, "%s%s[%s] %s FAILED (%s): %v%s\n", ColorBold, ColorRed, meta.Participant, role, kind, err, ColorReset)
	s.restartSpinner()
}

func (s *SessionHandler) ConsolidationStarted(meta streamers.Meta, contributors int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spinner.Stop()
	fmt.Fprintf(s.out, "\n%s%s--- Consolidating %d contributions (%s) ---%s\n", ColorBold, ColorCyan, contributors, meta.Participant, ColorReset)
	s.spinner.Start("Synthesizing...")
}

func (s *SessionHandler) ConsolidationFailed(meta streamers.Meta, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spinner.Stop()
	fmt.Fprintf(s.out, "%s[%s] consolidation failed, showing individual contributions: %v%s\n", ColorYellow, meta.Participant, err, ColorReset)
}

func (s *SessionHandler) SessionCompleted(meta streamers.Meta, result string, consolidated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spinner.Stop()
	fmt.Fprintf(s.out, "\n%s%s=== Session complete ===%s\n\n", ColorBold, ColorGreen, ColorReset)
	fmt.Fprintf(s.out, "%s•%s%s\n\n", ColorGray, ColorReset, s.md.Render(result))
}

func (s *SessionHandler) SessionFailed(meta streamers.Meta, kind string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spinner.Stop()
	fmt.Fprintf(s.out, "\n%s%s=== Session FAILED (%s): %v ===%s\n", ColorBold, ColorRed, kind, err, ColorReset)
}

func (s *SessionHandler) SessionCancelled(meta streamers.Meta, recorded int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spinner.Stop()
	fmt.Fprintf(s.out, "\n%s%s=== Session cancelled (%d outcome(s) recorded) ===%s\n", ColorBold, ColorYellow, recorded, ColorReset)
}

// restartSpinner resumes the animation while other units are still running.
// Callers hold s.mu.
func (s *SessionHandler) restartSpinner() {
	if s.active > 0 {
		s.spinner.Start(fmt.Sprintf("%d participant(s) working...", s.active))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
