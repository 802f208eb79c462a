package posts

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/adrg/frontmatter"
	"github.com/araddon/dateparse"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const maxSummaryLen = 200

// ErrDuplicateID is returned when two files resolve to the same post id.
var ErrDuplicateID = errors.New("duplicate post id")

type frontMatter struct {
	ID          string   `yaml:"id" toml:"id" json:"id"`
	Title       string   `yaml:"title" toml:"title" json:"title"`
	Summary     string   `yaml:"summary" toml:"summary" json:"summary"`
	Tags        []string `yaml:"tags" toml:"tags" json:"tags"`
	Project     string   `yaml:"project" toml:"project" json:"project"`
	VoiceID     string   `yaml:"voice_id" toml:"voice_id" json:"voice_id"`
	PublishedAt string   `yaml:"published_at" toml:"published_at" json:"published_at"`
	Date        string   `yaml:"date" toml:"date" json:"date"`
	Draft       bool     `yaml:"draft" toml:"draft" json:"draft"`
}

// Builder turns a directory of markdown files into a Payload.
type Builder struct {
	dir      string
	md       goldmark.Markdown
	policy   *bluemonday.Policy
	validate *validator.Validate
	titler   cases.Caser
	logger   *zap.Logger
	now      func() time.Time
}

func NewBuilder(dir string, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		dir:      dir,
		md:       goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:   bluemonday.StrictPolicy(),
		validate: validator.New(),
		titler:   cases.Title(language.English),
		logger:   logger.Named("build"),
		now:      time.Now,
	}
}

// Build walks the content directory and returns every non-draft post,
// most recent first.
func (b *Builder) Build() (*Payload, error) {
	if _, err := os.Stat(b.dir); err != nil {
		return nil, fmt.Errorf("content directory %q: %w", b.dir, err)
	}

	var list []Post
	seen := make(map[string]string)
	err := filepath.WalkDir(b.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walking %q: %w", path, err)
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %q: %w", path, err)
		}
		rel, err := filepath.Rel(b.dir, path)
		if err != nil {
			rel = path
		}

		post, draft, err := b.Parse(filepath.ToSlash(rel), data)
		if err != nil {
			return err
		}
		if draft {
			b.logger.Debug("skipping draft", zap.String("path", rel))
			return nil
		}
		if prev, dup := seen[post.ID]; dup {
			return fmt.Errorf("%w %q in %s and %s", ErrDuplicateID, post.ID, prev, rel)
		}
		seen[post.ID] = rel
		list = append(list, post)
		return nil
	})
	if err != nil {
		return nil, err
	}

	SortPosts(list)
	b.logger.Info("collected posts", zap.Int("count", len(list)), zap.String("dir", b.dir))

	return &Payload{
		GeneratedAt: b.now().UTC().Format(time.RFC3339),
		Posts:       list,
	}, nil
}

// Parse reads one markdown document. sourcePath is recorded on the post and
// supplies the id and title when the front matter omits them.
func (b *Builder) Parse(sourcePath string, data []byte) (Post, bool, error) {
	var fm frontMatter
	body, err := frontmatter.Parse(bytes.NewReader(data), &fm)
	if err != nil {
		return Post{}, false, fmt.Errorf("parsing front matter in %s: %w", sourcePath, err)
	}

	var rendered bytes.Buffer
	if err := b.md.Convert(body, &rendered); err != nil {
		return Post{}, false, fmt.Errorf("rendering markdown in %s: %w", sourcePath, err)
	}
	doc, err := goquery.NewDocumentFromReader(&rendered)
	if err != nil {
		return Post{}, false, fmt.Errorf("reading rendered markdown in %s: %w", sourcePath, err)
	}

	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))

	post := Post{
		ID:          strings.TrimSpace(fm.ID),
		Title:       b.clean(fm.Title),
		Summary:     b.clean(fm.Summary),
		Tags:        cleanTags(fm.Tags),
		Project:     strings.TrimSpace(fm.Project),
		VoiceID:     strings.TrimSpace(fm.VoiceID),
		PublishedAt: normalizeDate(firstNonEmpty(fm.PublishedAt, fm.Date)),
		SourcePath:  sourcePath,
	}
	if post.ID == "" {
		post.ID = slug(stem)
	}
	if post.Title == "" {
		post.Title = collapse(doc.Find("h1").First().Text())
	}
	if post.Title == "" {
		post.Title = b.titler.String(strings.NewReplacer("-", " ", "_", " ").Replace(stem))
	}
	if post.Summary == "" {
		post.Summary = truncate(collapse(doc.Find("p").First().Text()), maxSummaryLen)
	}

	if err := b.validate.Struct(post); err != nil {
		return Post{}, false, fmt.Errorf("invalid post %s: %w", sourcePath, err)
	}
	return post, fm.Draft, nil
}

// clean strips markup from a front matter string.
func (b *Builder) clean(s string) string {
	return collapse(html.UnescapeString(b.policy.Sanitize(s)))
}

// SortPosts orders posts most recent first; undated posts go last, ties by id.
func SortPosts(list []Post) {
	sort.SliceStable(list, func(i, j int) bool {
		ti, iok := parseDate(list[i].PublishedAt)
		tj, jok := parseDate(list[j].PublishedAt)
		switch {
		case iok && jok && !ti.Equal(tj):
			return ti.After(tj)
		case iok != jok:
			return iok
		default:
			return list[i].ID < list[j].ID
		}
	})
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// normalizeDate rewrites parseable dates as RFC 3339 and keeps anything else verbatim.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if t, ok := parseDate(s); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return s
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)[:n]
	cut := string(r)
	if i := strings.LastIndex(cut, " "); i > n/2 {
		cut = cut[:i]
	}
	return cut + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
