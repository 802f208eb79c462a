// Package posts builds the posts snapshot from markdown and loads it back.
package posts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Post struct {
	ID          string   `json:"id" validate:"required"`
	Title       string   `json:"title" validate:"required"`
	Summary     string   `json:"summary"`
	Tags        []string `json:"tags"`
	Project     string   `json:"project,omitempty"`
	VoiceID     string   `json:"voice_id,omitempty"`
	PublishedAt string   `json:"published_at,omitempty"`
	SourcePath  string   `json:"source_path,omitempty"`
}

// Payload is the posts.json document. Posts are in display order.
type Payload struct {
	GeneratedAt string `json:"generated_at"`
	Posts       []Post `json:"posts"`
}

// Encode renders the payload with two-space indentation and a trailing newline.
func (p *Payload) Encode() ([]byte, error) {
	for i := range p.Posts {
		if p.Posts[i].Tags == nil {
			p.Posts[i].Tags = []string{}
		}
	}
	if p.Posts == nil {
		p.Posts = []Post{}
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteSnapshot writes the payload to path, creating parent directories.
// The file is replaced atomically so a concurrent reader never sees half a snapshot.
func WriteSnapshot(path string, p *Payload) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".posts-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// Decode parses a posts.json document.
func Decode(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	if p.Posts == nil {
		return Payload{}, fmt.Errorf("decoding snapshot: posts is not a list")
	}
	return p, nil
}
