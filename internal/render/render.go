// Package render prints query results, answers and sessions for the terminal.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"

	"github.com/thesandybridge/kb-index/internal/query"
	"github.com/thesandybridge/kb-index/internal/state"
	"github.com/thesandybridge/kb-index/pkg/utils"
)

// DefaultTheme is the chroma style used when none is configured.
const DefaultTheme = "gruvbox"

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	answerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

var codeBlockRe = regexp.MustCompile("(?s)```(\\w*)\\n(.*?)```")

// Renderer writes query output to w.
type Renderer struct {
	w     io.Writer
	theme string
}

// New returns a Renderer highlighting code with the chroma style theme.
func New(w io.Writer, theme string) *Renderer {
	if theme == "" {
		theme = DefaultTheme
	}
	return &Renderer{w: w, theme: theme}
}

// Response prints resp in its format: results for json, markdown and pretty, the answer for
// smart. An answer reused from a similar question is printed as an answer in every format.
func (r *Renderer) Response(resp *query.Response) error {
	if resp.Cache == query.CacheSimilar {
		return r.Answer(resp)
	}
	switch resp.Format {
	case query.FormatJSON:
		return r.JSON(resp.Results)
	case query.FormatMarkdown:
		return r.Markdown(resp.Results)
	case query.FormatSmart:
		return r.Answer(resp)
	default:
		return r.Pretty(resp.Results)
	}
}

// JSON writes results as an indented JSON array.
func (r *Renderer) JSON(results []query.Result) error {
	if results == nil {
		results = []query.Result{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	_, err = fmt.Fprintln(r.w, string(data))
	return err
}

// Markdown writes each result as a Markdown section with a fenced code block.
func (r *Renderer) Markdown(results []query.Result) error {
	var b strings.Builder
	for _, res := range results {
		fmt.Fprintf(&b, "### Result %d\n\n", res.Index)
		fmt.Fprintf(&b, "**Source:** `%s`  \n", res.Source)
		fmt.Fprintf(&b, "**Distance:** `%.4f`  \n", res.Distance)
		fmt.Fprintf(&b, "```%s\n%s\n```\n\n", utils.FileLanguage(res.Source), res.Content)
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

// Pretty writes each result with a styled header and highlighted content.
func (r *Renderer) Pretty(results []query.Result) error {
	var b strings.Builder
	for _, res := range results {
		b.WriteString(headerStyle.Render(fmt.Sprintf("--- Result %d ---", res.Index)))
		b.WriteByte('\n')
		b.WriteString(labelStyle.Render("Source: ") + res.Source + "\n")
		b.WriteString(labelStyle.Render("Distance: ") + fmt.Sprintf("%.4f", res.Distance) + "\n")
		b.WriteString(Highlight(res.Content, utils.FileLanguage(res.Source), r.theme))
		b.WriteString("\n\n")
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

// Answer writes a synthesized answer with its code blocks highlighted, followed by the
// session summary.
func (r *Renderer) Answer(resp *query.Response) error {
	title := "Answer:"
	if resp.Cache != query.CacheMiss {
		title = "Cached Answer:"
	}
	var b strings.Builder
	if resp.SessionCreated {
		b.WriteString(noticeStyle.Render("Created session: "+resp.SessionID) + "\n")
	}
	b.WriteString(answerStyle.Render(title) + "\n\n")
	b.WriteString(HighlightMarkdown(resp.Answer, r.theme))
	b.WriteString("\n")
	if resp.SessionID != "" {
		b.WriteString(labelStyle.Render(fmt.Sprintf("\nSession: %s (Q&A: %d)", ShortID(resp.SessionID), resp.Turns)))
		b.WriteString("\n")
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

// Sessions lists sessions, marking the active one with "*".
func (r *Renderer) Sessions(sessions []*state.SessionState, active string) error {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Available Sessions:") + "\n")
	if len(sessions) == 0 {
		b.WriteString("  No sessions found. Create one with 'kb query --session new'\n")
	}
	for _, s := range sessions {
		marker := "  "
		if s.ID == active {
			marker = "* "
		}
		updated := time.Unix(int64(s.LastUpdated), 0).UTC().Format("2006-01-02 15:04")
		fmt.Fprintf(&b, "%s%s - %d Q&A pairs, last updated: %s\n", marker, ShortID(s.ID), s.Len(), updated)
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

// Notice writes a highlighted one-line message.
func (r *Renderer) Notice(msg string) {
	fmt.Fprintln(r.w, noticeStyle.Render(msg))
}

// ShortID returns the first eight characters of a session id.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// Highlight returns code colored for a 256-color terminal. lang is a chroma lexer name or
// file extension; on any highlighting failure code is returned unchanged.
func Highlight(code, lang, theme string) string {
	var buf bytes.Buffer
	if err := quick.Highlight(&buf, code, lang, "terminal256", theme); err != nil {
		return code
	}
	return buf.String()
}

// HighlightMarkdown replaces every fenced code block of md with its highlighted body and
// leaves the surrounding text as is.
func HighlightMarkdown(md, theme string) string {
	var out strings.Builder
	last := 0
	for _, loc := range codeBlockRe.FindAllStringSubmatchIndex(md, -1) {
		out.WriteString(md[last:loc[0]])
		lang := md[loc[2]:loc[3]]
		if lang == "" {
			lang = "text"
		}
		out.WriteString(Highlight(md[loc[4]:loc[5]], lang, theme))
		last = loc[1]
	}
	out.WriteString(md[last:])
	return out.String()
}
