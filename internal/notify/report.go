package notify

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hepwiki/wikibot/internal/langtree"
	"github.com/hepwiki/wikibot/internal/vcs"
)

// HaltTailLines is how much worker output a halt report carries.
const HaltTailLines = 50

// Links builds web links into the hosted repository.
type Links struct {
	// Home is the forge base URL, e.g. https://code.example.org.
	Home string
	// Project is the namespace/name path of the repository.
	Project string
}

// NewLinks derives the project path from a git remote. Both URL remotes
// and scp-style ones work: "git@host:group/wiki.git" gives "group/wiki".
func NewLinks(home, remote string) Links {
	project := remote
	if u, err := url.Parse(remote); err == nil && strings.Contains(remote, "://") {
		project = u.Path
	} else if i := strings.LastIndex(project, ":"); i >= 0 {
		project = project[i+1:]
	}
	project = strings.Trim(strings.TrimSuffix(project, ".git"), "/")
	return Links{Home: strings.TrimRight(home, "/"), Project: project}
}

// Commit returns the page of a commit.
func (l Links) Commit(id vcs.CommitID) string {
	return fmt.Sprintf("%s/%s/-/commit/%s", l.Home, l.Project, id)
}

// Raw returns the raw content of file at commit id.
func (l Links) Raw(id vcs.CommitID, file string) string {
	return fmt.Sprintf("%s/%s/-/raw/%s/%s", l.Home, l.Project, id, file)
}

// Reporter formats the bot's messages.
type Reporter struct {
	// Prefix starts every subject, e.g. "[bot] ".
	Prefix string
	Links  Links
}

func (r Reporter) subject(head vcs.CommitID, outcome string) string {
	return fmt.Sprintf("%sCommit %s merged to hepwiki. %s", r.Prefix, head.Short(), outcome)
}

func (r Reporter) greeting(author vcs.Author, head vcs.CommitID) string {
	return fmt.Sprintf("Dear %s,\n\nThe commit %s\nis successfully pushed to origin/master.\n", author.Name, r.Links.Commit(head))
}

func recipients(author vcs.Author) []string {
	if author.IsZero() {
		return nil
	}
	return []string{author.String()}
}

// BuildFailure tells the author the pushed head does not build.
func (r Reporter) BuildFailure(author vcs.Author, head vcs.CommitID, log string) Message {
	var b strings.Builder
	b.WriteString(r.greeting(author, head))
	b.WriteString("However it cannot be built successfully. See the log below:\n\n")
	b.WriteString(log)
	b.WriteString("\n\nCheers,\nBot\n")

	return Message{
		Subject: r.subject(head, "Problem detected"),
		Body:    b.String(),
		To:      recipients(author),
		CCAdmin: true,
	}
}

// Inconsistency tells the author the two tables of contents disagree.
func (r Reporter) Inconsistency(author vcs.Author, head vcs.CommitID, links []string) Message {
	var b strings.Builder
	b.WriteString(r.greeting(author, head))
	b.WriteString("It seems you have modified both SUMMARY.md in zh-hans/ and en/, while they are not consistent after revision. ")
	b.WriteString("Please check the syntax of two SUMMARY.md files below (especially check the spacing) and make another commit:\n\n")
	b.WriteString(strings.Join(links, "\n"))
	b.WriteString("\n\nCheers,\nBot\n")

	return Message{
		Subject: r.subject(head, "Problem detected"),
		Body:    b.String(),
		To:      recipients(author),
		CCAdmin: true,
	}
}

// TOCLinks returns the raw links of both tables of contents at head.
func (r Reporter) TOCLinks(head vcs.CommitID) []string {
	links := make([]string, 0, len(langtree.Langs))
	for _, l := range langtree.Langs {
		links = append(links, r.Links.Raw(head, l.TOCPath()))
	}
	return links
}

// Success summarizes a synchronized range.
type Success struct {
	Author vcs.Author
	Head   vcs.CommitID
	// Diff is the range since the previous watermark.
	Diff                    []vcs.DiffEntry
	AutoTranslated          []string
	ManualTranslationNeeded []string
	// BotCommit is set when the bot pushed its own commit.
	BotCommit vcs.CommitID
	// BotDiff is the bot commit relative to Head.
	BotDiff []vcs.DiffEntry
}

func writeDiff(b *strings.Builder, entries []vcs.DiffEntry) {
	for _, e := range entries {
		b.WriteString(e.String())
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// Success reports a range that built and was synchronized.
func (r Reporter) Success(s Success) Message {
	var b strings.Builder
	b.WriteString(r.greeting(s.Author, s.Head))
	b.WriteString("The repo can be successfully built. Listed below is the file changes w.r.t. latest successful build:\n\n")
	writeDiff(&b, s.Diff)

	if len(s.AutoTranslated) == 0 {
		b.WriteString("No files are auto-translated.\n\n")
	} else {
		b.WriteString("📙 Following files are auto-translated:\n\n")
		b.WriteString(strings.Join(s.AutoTranslated, "\n"))
		b.WriteString("\n\n")
	}

	if len(s.ManualTranslationNeeded) == 0 {
		b.WriteString("No files need manual translation.\n\n")
	} else {
		b.WriteString("⚠️ Following files may need manual translation:\n\n")
		b.WriteString(strings.Join(s.ManualTranslationNeeded, "\n"))
		b.WriteString("\n\n")
	}

	if s.BotCommit != "" {
		b.WriteString("I have made another submit dealing with the translation. The latest commit is at:\n")
		b.WriteString(r.Links.Commit(s.BotCommit))
		b.WriteString("\n\nListed below is the file changes w.r.t. your commit:\n\n")
		writeDiff(&b, s.BotDiff)
	}
	b.WriteString("Cheers,\nBot\n")

	return Message{
		Subject: r.subject(s.Head, "Built successfully"),
		Body:    b.String(),
		To:      recipients(s.Author),
		CCAdmin: true,
	}
}

// Problem reports an error that only the admins can act on.
func (r Reporter) Problem(text string) Message {
	return Message{
		Subject: r.Prefix + "Wikibot detect error: " + firstLine(text),
		Body:    text,
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// Halted reports a worker process that stopped.
func Halted(name string, pid int, tail string) Message {
	return Message{
		Subject: fmt.Sprintf("Wiki error: process '%s' (PID: %d) is halted", name, pid),
		Body:    tail,
	}
}

// AllHalted is the final escalation once no worker is left.
func AllHalted() Message {
	const text = "End of class: all processes are halted"
	return Message{Subject: "Wiki error: " + text, Body: text}
}
