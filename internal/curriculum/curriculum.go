// Package curriculum provides tutoring topic context for prompt construction.
//
// The session orchestrator consults an Accessor read-only while building the
// LLM system prompt; it never mutates curriculum state. The YAML-backed
// Engine additionally supports advancing through a topic sequence.
package curriculum

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Context is the curriculum state relevant to one conversation turn.
type Context struct {
	// TopicID identifies the current topic.
	TopicID string `yaml:"id"`

	// Title is the human-readable topic title.
	Title string `yaml:"title"`

	// Prompt is a fragment injected into the LLM system prompt to steer the
	// conversation toward the topic.
	Prompt string `yaml:"prompt"`
}

// Accessor is the read-only curriculum view handed to the orchestrator.
// CurrentContext returns (nil, nil) when no topic is active; the orchestrator
// then builds its prompt without curriculum steering.
type Accessor interface {
	CurrentContext(ctx context.Context) (*Context, error)
}

// curriculumFile is the on-disk YAML shape.
type curriculumFile struct {
	Topics []Context `yaml:"topics"`
}

// Engine is a YAML-loaded, in-memory curriculum: an ordered topic list with a
// cursor. Safe for concurrent use.
type Engine struct {
	mu     sync.RWMutex
	topics []Context
	cursor int
}

// Compile-time interface assertion.
var _ Accessor = (*Engine)(nil)

// Load reads a curriculum YAML file from path.
func Load(path string) (*Engine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("curriculum: open %s: %w", path, err)
	}
	defer f.Close()
	eng, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("curriculum: load %s: %w", path, err)
	}
	return eng, nil
}

// LoadFromReader decodes curriculum YAML from r. Unknown fields are rejected.
func LoadFromReader(r io.Reader) (*Engine, error) {
	var file curriculumFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("curriculum: decode yaml: %w", err)
	}
	for i, t := range file.Topics {
		if t.TopicID == "" {
			return nil, fmt.Errorf("curriculum: topic %d has no id", i)
		}
	}
	return &Engine{topics: file.Topics}, nil
}

// CurrentContext implements [Accessor]. Returns (nil, nil) when the topic
// list is empty or exhausted.
func (e *Engine) CurrentContext(context.Context) (*Context, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.cursor >= len(e.topics) {
		return nil, nil
	}
	c := e.topics[e.cursor]
	return &c, nil
}

// Advance moves to the next topic and reports whether a topic is still
// active afterwards.
func (e *Engine) Advance() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cursor < len(e.topics) {
		e.cursor++
	}
	return e.cursor < len(e.topics)
}

// Topics returns a copy of the full topic list.
func (e *Engine) Topics() []Context {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Context, len(e.topics))
	copy(out, e.topics)
	return out
}
