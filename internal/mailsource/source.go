// Package mailsource loads messages from .eml files and JSON exports.
package mailsource

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/DreamCats/mailtriage/internal/config"
	"github.com/DreamCats/mailtriage/internal/dedupe"
)

// Loader finds message files under a root and parses them.
type Loader struct {
	include        []string
	excludeSenders []string
	logger         *log.Logger
}

// NewLoader creates a loader from the source section of the config.
func NewLoader(cfg config.SourceConfig, logger *log.Logger) *Loader {
	include := cfg.Include
	if len(include) == 0 {
		include = []string{"**/*.eml", "**/*.json"}
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Loader{
		include:        include,
		excludeSenders: cfg.ExcludeSenders,
		logger:         logger,
	}
}

// Load returns the messages found at path. A file is parsed directly; a
// directory is searched with the include globs. Messages from excluded
// senders are dropped. Files come back in lexical path order.
func (l *Loader) Load(path string) ([]dedupe.Message, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	var files []string
	var root string
	if info.IsDir() {
		root = path
		files, err = l.match(os.DirFS(path))
		if err != nil {
			return nil, err
		}
	} else {
		root = filepath.Dir(path)
		files = []string{filepath.Base(path)}
	}

	var msgs []dedupe.Message
	for _, rel := range files {
		loaded, err := loadFile(filepath.Join(root, filepath.FromSlash(rel)), rel)
		if err != nil {
			return nil, err
		}
		for _, m := range loaded {
			if l.Excluded(m.Sender) {
				l.logger.Debug("message excluded by sender", "id", m.ID, "sender", m.Sender)
				continue
			}
			msgs = append(msgs, m)
		}
	}

	l.logger.Info("loaded messages", "path", path, "files", len(files), "messages", len(msgs))
	return msgs, nil
}

func (l *Loader) match(fsys fs.FS) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range l.include {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	slices.Sort(files)
	return files, nil
}

// Excluded reports whether sender matches one of the exclusion globs.
// Matching is case-insensitive.
func (l *Loader) Excluded(sender string) bool {
	if sender == "" {
		return false
	}
	sender = strings.ToLower(sender)
	for _, pattern := range l.excludeSenders {
		if ok, _ := doublestar.Match(strings.ToLower(pattern), sender); ok {
			return true
		}
	}
	return false
}

func loadFile(path, rel string) ([]dedupe.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		msgs, err := ParseJSON(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rel, err)
		}
		return msgs, nil
	default:
		msg, err := ParseEML(f, rel)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rel, err)
		}
		return []dedupe.Message{msg}, nil
	}
}

type jsonMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Sender  string `json:"sender"`
	Date    string `json:"date"`
}

// ParseJSON reads a JSON array of {id, subject, body, sender, date} objects.
// Entries without an id get one derived from their content, so loading the
// same export twice yields the same ids. Dates are RFC 3339 or RFC 1123Z;
// anything else is ignored.
func ParseJSON(r io.Reader) ([]dedupe.Message, error) {
	var raw []jsonMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	msgs := make([]dedupe.Message, 0, len(raw))
	for _, m := range raw {
		msg := dedupe.Message{
			ID:      m.ID,
			Subject: m.Subject,
			Body:    m.Body,
			Sender:  senderAddress(m.Sender),
			Date:    parseDate(m.Date),
		}
		if msg.ID == "" {
			msg.ID = contentID(m)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// contentID is a name-based UUID over the entry's fields. Identical entries
// share an id and replace each other in the index.
func contentID(m jsonMessage) string {
	name := strings.Join([]string{m.Subject, m.Body, senderAddress(m.Sender), m.Date}, "\x00")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func parseDate(s string) time.Time {
	for _, layout := range []string{time.RFC3339, time.RFC1123Z, time.RFC1123} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
