package loader

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/kbembed/core"
)

// topic is the subset of a Discourse topic document that is kept.
type topic struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Slug       string `json:"slug"`
	PostStream struct {
		Posts []post `json:"posts"`
	} `json:"post_stream"`
}

type post struct {
	PostNumber int    `json:"post_number"`
	Username   string `json:"username"`
	Cooked     string `json:"cooked"`
}

// ParseDiscourseTopic decodes a topic JSON document into one Document
// holding every post of the thread, each prefixed by its author.
// baseURL is the forum root used to build the topic URL; when empty the
// document is keyed by its title alone.
func ParseDiscourseTopic(r io.Reader, baseURL string) (*core.Document, error) {
	var t topic
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTopic, err)
	}
	if len(t.PostStream.Posts) == 0 {
		return nil, fmt.Errorf("%w: topic %d has no posts", ErrInvalidTopic, t.ID)
	}

	var body strings.Builder
	for _, p := range t.PostStream.Posts {
		text, err := HTMLToText(p.Cooked)
		if err != nil {
			return nil, fmt.Errorf("%w: post %d: %w", ErrInvalidTopic, p.PostNumber, err)
		}
		if text == "" {
			continue
		}
		if body.Len() > 0 {
			body.WriteString("\n\n")
		}
		if p.Username != "" {
			body.WriteString(p.Username)
			body.WriteString(": ")
		}
		body.WriteString(text)
	}

	doc := &core.Document{
		Title:   t.Title,
		RawText: body.String(),
	}
	if baseURL != "" && t.ID != 0 {
		doc.SourceURL = topicURL(baseURL, t)
	}
	return doc, nil
}

func topicURL(baseURL string, t topic) string {
	base := strings.TrimSuffix(baseURL, "/")
	if t.Slug == "" {
		return fmt.Sprintf("%s/t/%d", base, t.ID)
	}
	return fmt.Sprintf("%s/t/%s/%d", base, t.Slug, t.ID)
}

// LoadDiscourseDir parses every *.json topic file directly inside dir, in name order.
func LoadDiscourseDir(dir, baseURL string) ([]*core.Document, error) {
	return loadDir(dir, ".json", func(path string, r io.Reader) (*core.Document, error) {
		return ParseDiscourseTopic(r, baseURL)
	})
}
