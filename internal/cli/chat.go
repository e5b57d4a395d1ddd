// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive REPL over an app.App.
//
// Plain lines are sent as chat messages. Lines starting with "/" are slash
// commands (see commands.go). Ctrl+C cancels the operation in flight, or
// exits when typed at the prompt. Ctrl+D exits.

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/jeranaias/agentdesk/internal/app"
	"github.com/jeranaias/agentdesk/internal/conversation"
	"github.com/jeranaias/agentdesk/internal/util"
)

// =============================================================================
// INPUT
// =============================================================================

// LineReader supplies input lines. Prompt returns io.EOF when input ends.
type LineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// linerInput provides history and line editing for the REPL.
type linerInput struct {
	line        *liner.State
	historyFile string
}

func newLinerInput(historyFile string) *linerInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	in := &linerInput{line: line, historyFile: historyFile}
	if historyFile != "" {
		if f, err := os.Open(historyFile); err == nil {
			_, _ = line.ReadHistory(f)
			f.Close()
		}
	}
	return in
}

func (in *linerInput) Prompt(prompt string) (string, error) {
	s, err := in.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) != "" {
		in.line.AppendHistory(s)
	}
	return s, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (in *linerInput) Close() error {
	var err error
	if in.historyFile != "" {
		var buf bytes.Buffer
		if _, werr := in.line.WriteHistory(&buf); werr == nil {
			err = util.AtomicWriteFile(in.historyFile, buf.Bytes(), 0600)
		}
	}
	if cerr := in.line.Close(); err == nil {
		err = cerr
	}
	return err
}

// =============================================================================
// OUTPUT
// =============================================================================

// printer serializes writes from the REPL loop, bus notices and background
// image requests.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.w.Write(b)
}

func (p *printer) Printf(format string, args ...any) {
	fmt.Fprintf(p, format, args...)
}

func (p *printer) Println(args ...any) {
	fmt.Fprintln(p, args...)
}

// =============================================================================
// REPL
// =============================================================================

// Options configures a REPL.
type Options struct {
	// Out receives all output. Defaults to os.Stdout.
	Out io.Writer
	// Input supplies lines. Defaults to a liner prompt on the terminal.
	Input LineReader
	// HistoryFile is where the default input keeps line history.
	HistoryFile string
	// Plain disables markdown rendering of replies.
	Plain bool
	// Width wraps output; 0 uses the terminal width.
	Width int
	// Theme is the markdown style: dark, light or auto.
	Theme string
}

// REPL reads lines and drives the app's session components.
type REPL struct {
	app    *app.App
	out    *printer
	input  LineReader
	md     *glamour.TermRenderer
	width  int
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc

	// bg is the context for work that outlives one command.
	bg       context.Context
	bgCancel context.CancelFunc
	images   sync.WaitGroup

	unsubscribe []func()
}

// NewREPL creates a REPL and subscribes its notices to the app's bus.
func NewREPL(a *app.App, opts Options) (*REPL, error) {
	if a == nil {
		return nil, errors.New("cli: nil app")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	width := opts.Width
	if width <= 0 {
		width = GetTerminalWidth()
	}

	r := &REPL{
		app:    a,
		out:    &printer{w: out},
		input:  opts.Input,
		width:  width,
		logger: a.Logger.Named("repl"),
	}
	r.bg, r.bgCancel = context.WithCancel(context.Background())

	if !opts.Plain && opts.Out == nil && IsStdoutTTY() {
		md, err := newMarkdownRenderer(opts.Theme, width)
		if err != nil {
			r.logger.Warn("markdown rendering disabled", zap.Error(err))
		}
		r.md = md
	}
	if r.input == nil {
		r.input = newLinerInput(opts.HistoryFile)
	}

	r.subscribeNotices()
	return r, nil
}

func newMarkdownRenderer(theme string, width int) (*glamour.TermRenderer, error) {
	style := glamour.WithAutoStyle()
	if theme == "dark" || theme == "light" {
		style = glamour.WithStandardStyle(theme)
	}
	return glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
}

// Close waits for background image requests, detaches notices and closes
// the input.
func (r *REPL) Close() error {
	r.bgCancel()
	r.images.Wait()
	for _, fn := range r.unsubscribe {
		fn()
	}
	r.unsubscribe = nil
	return r.input.Close()
}

// Wait blocks until background image requests have finished.
func (r *REPL) Wait() {
	r.images.Wait()
}

// Run reads lines until /quit, EOF, Ctrl+C at the prompt, or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigChan)
		close(sigChan)
	}()
	go func() {
		for range sigChan {
			if r.Interrupt() {
				r.out.Println(WarningStyle.Render("[Cancelled]"))
			}
		}
	}()

	r.printWelcome()
	for {
		if ctx.Err() != nil {
			return nil
		}
		input, err := r.input.Prompt(promptStyle.Render("agentdesk> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				r.out.Println()
				return nil
			}
			return err
		}

		quit, err := r.Execute(ctx, input)
		if err != nil {
			DisplayError(r.out, err)
		}
		if quit {
			return nil
		}
	}
}

// Interrupt cancels the command in flight. It reports whether there was one.
func (r *REPL) Interrupt() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	r.cancel = nil
	return true
}

// Execute runs one input line. It reports whether the REPL should exit.
func (r *REPL) Execute(ctx context.Context, input string) (quit bool, err error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return false, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
		cancel()
	}()

	if cmd, ok := ParseCommandLine(input); ok {
		return r.dispatch(ctx, cmd)
	}
	if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
		return true, nil
	}
	return false, r.send(ctx, input)
}

// =============================================================================
// MESSAGES
// =============================================================================

func (r *REPL) send(ctx context.Context, text string) error {
	reply, err := r.app.Conversation.Send(ctx, text)
	if err != nil {
		return err
	}
	r.printMessage(*reply)
	return nil
}

func (r *REPL) printMessage(m conversation.Message) {
	switch m.Role {
	case "user":
		r.out.Printf("%s %s\n", promptStyle.Render("you>"), m.Content)
		return
	case "assistant":
		r.out.Println(assistantStyle.Render(r.assistantLabel()))
	default:
		r.out.Println(DimStyle.Render(m.Role))
	}
	r.out.Println(r.render(m.Content))

	if len(m.SearchResults) > 0 {
		r.out.Println(DimStyle.Render("Sources:"))
		for i, res := range m.SearchResults {
			title := res.Title
			if title == "" {
				title = res.URL
			}
			line := fmt.Sprintf("  %d. %s", i+1, util.TruncateWidth(title, r.width/2))
			r.out.Printf("%s %s\n", line, InfoStyle.Render(res.URL))
		}
	}
	r.out.Println()
}

func (r *REPL) assistantLabel() string {
	sel := r.app.Models.Selection()
	if sel.Model == "" {
		return "assistant"
	}
	label := sel.Model
	if d, ok := r.app.Models.Lookup(sel.Model); ok {
		label = d.Label
	}
	if sel.WebSearch {
		label += " +web"
	}
	return label
}

func (r *REPL) render(content string) string {
	if r.md == nil {
		return WrapText(content, r.width)
	}
	out, err := r.md.Render(content)
	if err != nil {
		return WrapText(content, r.width)
	}
	return strings.TrimRight(out, "\n")
}

func (r *REPL) printWelcome() {
	st := r.app.Status()
	r.out.Println(TitleStyle.Render("agentdesk " + Version))
	if st.Bound {
		r.out.Printf("Connected to %s, %d models, model %s\n", st.Endpoint, st.Models, st.Selection.Model)
	} else {
		r.out.Println(WarningStyle.Render("Not connected to " + string(st.Candidate) + ". Run /reprobe once the backend is up."))
	}
	if !st.RoleChosen {
		r.out.Println(DimStyle.Render("Pick a role with /roles and /role <key> before chatting."))
	}
	r.out.Println(DimStyle.Render("Type /help for commands, /quit to exit."))
	r.out.Println()
}
