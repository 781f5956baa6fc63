package runway

import (
	"context"
	"fmt"
	"log/slog"
)

// ThreadPoster creates discussion threads and posts messages into them.
type ThreadPoster interface {
	CreateThread(ctx context.Context, name string) (string, error)
	PostMessage(ctx context.Context, threadID, content string) error
}

// ThreadReport describes the outcome of posting one group.
type ThreadReport struct {
	Title    string
	ThreadID string
	Posted   int
	Failed   int
	Err      error
}

// PostReport describes the outcome of a fan-out.
type PostReport struct {
	Threads []ThreadReport
}

// Posted returns the number of items successfully posted.
func (r PostReport) Posted() int {
	n := 0
	for _, t := range r.Threads {
		n += t.Posted
	}
	return n
}

// Failed returns the number of items that were not posted.
func (r PostReport) Failed() int {
	n := 0
	for _, t := range r.Threads {
		n += t.Failed
	}
	return n
}

// Poster fans grouped items out into one thread per category.
type Poster struct {
	chat ThreadPoster
}

// NewPoster creates a Poster backed by chat.
func NewPoster(chat ThreadPoster) *Poster {
	return &Poster{chat: chat}
}

// Post creates a thread for each group and posts its items sequentially.
// A failure stops the remaining posts of that group only.
func (p *Poster) Post(ctx context.Context, season int, groups []Group) PostReport {
	var report PostReport
	for _, g := range groups {
		report.Threads = append(report.Threads, p.postGroup(ctx, season, g))
	}
	return report
}

func (p *Poster) postGroup(ctx context.Context, season int, g Group) ThreadReport {
	tr := ThreadReport{Title: ThreadTitle(g.Category, season)}

	threadID, err := p.chat.CreateThread(ctx, tr.Title)
	if err != nil {
		slog.Warn("failed to create thread", "title", tr.Title, "error", err)
		tr.Failed = len(g.Items)
		tr.Err = fmt.Errorf("create thread %q: %w", tr.Title, err)
		return tr
	}
	tr.ThreadID = threadID

	for i, it := range g.Items {
		if err := p.chat.PostMessage(ctx, threadID, it.URL); err != nil {
			slog.Warn("failed to post image", "thread", tr.Title, "url", it.URL, "error", err)
			tr.Failed = len(g.Items) - i
			tr.Err = fmt.Errorf("post %s: %w", it.URL, err)
			return tr
		}
		tr.Posted++
	}

	slog.Info("posted thread", "title", tr.Title, "thread_id", threadID, "images", tr.Posted)
	return tr
}
