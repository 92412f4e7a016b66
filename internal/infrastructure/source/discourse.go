package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/cleaning"
)

const defaultForumURL = "https://discourse.onlinedegree.iitm.ac.in"

type discoursePost struct {
	TopicID     int64  `json:"topic_id"`
	TopicTitle  string `json:"topic_title"`
	PostNumber  int    `json:"post_number"`
	PostContent string `json:"post_content"`
	CreatedAt   string `json:"created_at"`
	Username    string `json:"username"`
}

// DiscourseReader turns scraped forum posts into one document per topic:
// posts ordered by number, rendered "Post N: text" and joined with " | ".
type DiscourseReader struct{}

func (DiscourseReader) Read(ctx context.Context, src domain.PartitionSource) ([]domain.SourceDocument, int, error) {
	raw, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, 0, fmt.Errorf("read discourse dump: %w", err)
	}

	var posts []json.RawMessage
	if err := json.Unmarshal(raw, &posts); err != nil {
		return nil, 0, domain.WrapError(domain.ErrInvalidInput, "parse discourse dump", err)
	}

	type topic struct {
		title string
		first time.Time
		posts []discoursePost
	}
	topics := make(map[int64]*topic)
	order := make([]int64, 0)
	skipped := 0

	for _, item := range posts {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		var post discoursePost
		if err := json.Unmarshal(item, &post); err != nil || post.TopicID == 0 {
			skipped++
			continue
		}
		if strings.TrimSpace(post.PostContent) == "" {
			continue
		}
		if post.PostNumber <= 0 {
			post.PostNumber = 1
		}

		t, ok := topics[post.TopicID]
		if !ok {
			t = &topic{title: post.TopicTitle}
			topics[post.TopicID] = t
			order = append(order, post.TopicID)
		}
		if created, err := time.Parse(time.RFC3339Nano, post.CreatedAt); err == nil {
			if t.first.IsZero() || created.Before(t.first) {
				t.first = created
			}
		}
		t.posts = append(t.posts, post)
	}

	base := src.BaseURL
	if base == "" {
		base = defaultForumURL
	}

	docs := make([]domain.SourceDocument, 0, len(order))
	for _, id := range order {
		t := topics[id]
		sort.SliceStable(t.posts, func(i, j int) bool { return t.posts[i].PostNumber < t.posts[j].PostNumber })

		parts := make([]string, 0, len(t.posts))
		for _, p := range t.posts {
			text := flatten(cleaning.HTMLToText(p.PostContent))
			if text == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf("Post %d: %s", p.PostNumber, text))
		}

		topicID := strconv.FormatInt(id, 10)
		docs = append(docs, domain.SourceDocument{
			ID:         topicID,
			Title:      t.title,
			Timestamp:  t.first,
			URL:        joinURL(base, "t/"+topicID),
			RawContent: strings.Join(parts, " | "),
		})
	}

	if skipped > 0 {
		slog.Warn("discourse_posts_skipped", "partition", src.Name, "skipped", skipped)
	}
	return docs, skipped, nil
}

// flatten keeps the post on one logical line so the " | " delimiter stays
// the only unit boundary.
func flatten(text string) string {
	text = strings.ReplaceAll(text, " | ", " / ")
	return strings.Join(strings.Fields(text), " ")
}
