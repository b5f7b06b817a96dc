// Package cli provides the interactive terminal front end.
package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/hession/shopsearch/internal/catalog"
	"github.com/hession/shopsearch/internal/history"
	"github.com/hession/shopsearch/internal/search"
)

const Version = "0.1.0"

// Searcher runs searches and exposes the session state.
type Searcher interface {
	Search(ctx context.Context, text string) (search.Snapshot, error)
	Snapshot() search.Snapshot
}

// Catalog provides the loaded filter catalog.
type Catalog interface {
	Filters() (catalog.AvailableFilters, bool)
}

// History lists recent searches.
type History interface {
	List(ctx context.Context, limit int) ([]*history.Record, error)
}

// CommandSuggestion is one autocompletion entry.
type CommandSuggestion struct {
	Text        string
	Description string
}

// Commands lists the built-in REPL commands.
func Commands() []CommandSuggestion {
	return []CommandSuggestion{
		{Text: "/help", Description: "Show help"},
		{Text: "/filters", Description: "Show available filters"},
		{Text: "/session", Description: "Show the current search"},
		{Text: "/history", Description: "Show recent searches"},
		{Text: "/exit", Description: "Exit program"},
	}
}

// REPL reads queries and commands and prints search results.
type REPL struct {
	ctx      context.Context
	searcher Searcher
	catalog  Catalog
	history  History
	out      io.Writer
	exit     bool
}

// NewREPL creates a REPL. hist may be nil when history is disabled.
func NewREPL(ctx context.Context, searcher Searcher, cat Catalog, hist History, out io.Writer) *REPL {
	return &REPL{
		ctx:      ctx,
		searcher: searcher,
		catalog:  cat,
		history:  hist,
		out:      out,
	}
}

// Run starts the prompt loop and returns after /exit.
func (r *REPL) Run() {
	r.printWelcome()
	p := prompt.New(
		r.Execute,
		r.Complete,
		prompt.OptionPrefix("search> "),
		prompt.OptionPrefixTextColor(prompt.Cyan),
		prompt.OptionTitle("shopsearch"),
		prompt.OptionSetExitCheckerOnInput(r.ShouldExit),
	)
	p.Run()
}

// ShouldExit reports whether the loop should stop after the last input.
func (r *REPL) ShouldExit(_ string, breakline bool) bool {
	return breakline && r.exit
}

// Complete suggests built-in commands for input starting with "/".
func (r *REPL) Complete(d prompt.Document) []prompt.Suggest {
	text := d.TextBeforeCursor()
	if !strings.HasPrefix(text, "/") || strings.Contains(text, " ") {
		return nil
	}
	var suggestions []prompt.Suggest
	for _, c := range Commands() {
		suggestions = append(suggestions, prompt.Suggest{Text: c.Text, Description: c.Description})
	}
	return prompt.FilterHasPrefix(suggestions, text, true)
}

// Execute handles one line of input.
func (r *REPL) Execute(line string) {
	input := strings.TrimSpace(line)
	if input == "" {
		return
	}
	if strings.HasPrefix(input, "/") {
		r.handleCommand(input)
		return
	}
	r.search(input)
}

func (r *REPL) search(input string) {
	snap, err := r.searcher.Search(r.ctx, input)
	if err != nil {
		fmt.Fprintf(r.out, "%s❌ %v%s\n", colorRed, err, colorReset)
		return
	}
	PrintSnapshot(r.out, snap)
	fmt.Fprintln(r.out)
}

// handleCommand handles built-in commands
func (r *REPL) handleCommand(cmd string) {
	parts := strings.Fields(cmd)
	command := strings.ToLower(parts[0])

	switch command {
	case "/help":
		r.printHelp()

	case "/filters":
		filters, loaded := r.catalog.Filters()
		if !loaded {
			fmt.Fprintf(r.out, "%s%s%s\n", colorYellow, search.MsgCatalogNotLoaded, colorReset)
			return
		}
		PrintFilters(r.out, filters)

	case "/session":
		PrintSnapshot(r.out, r.searcher.Snapshot())

	case "/history":
		r.printHistory(parts[1:])

	case "/exit", "/quit", "/q":
		fmt.Fprintf(r.out, "%sGoodbye! 👋%s\n", colorCyan, colorReset)
		r.exit = true

	default:
		fmt.Fprintf(r.out, "%s❓ Unknown command: %s%s\n", colorYellow, cmd, colorReset)
		fmt.Fprintln(r.out, "Type /help for available commands")
	}
}

func (r *REPL) printHistory(args []string) {
	if r.history == nil {
		fmt.Fprintf(r.out, "%sHistory is disabled%s\n", colorGray, colorReset)
		return
	}
	limit := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fmt.Fprintf(r.out, "%sUsage: /history [limit]%s\n", colorYellow, colorReset)
			return
		}
		limit = n
	}
	records, err := r.history.List(r.ctx, limit)
	if err != nil {
		fmt.Fprintf(r.out, "%s❌ Failed to load history: %v%s\n", colorRed, err, colorReset)
		return
	}
	PrintHistory(r.out, records)
}

func (r *REPL) printWelcome() {
	fmt.Fprintf(r.out, "\n%s🛍️  shopsearch v%s%s - AI shopping search\n", colorCyan, Version, colorReset)
	fmt.Fprintf(r.out, "%sDescribe what you're looking for. Type /help for help, /exit to quit%s\n\n", colorGray, colorReset)
}

func (r *REPL) printHelp() {
	fmt.Fprintf(r.out, "\n%s📚 shopsearch Help%s\n\n%sBuilt-in Commands:%s\n", colorCyan, colorReset, colorYellow, colorReset)
	for _, c := range Commands() {
		fmt.Fprintf(r.out, "  %-16s- %s\n", c.Text, c.Description)
	}
	fmt.Fprintf(r.out, `
%sExamples:%s
  brown Bata loafers on sale
  red Nike running shoes
  leather sandals for men

`, colorYellow, colorReset)
}
