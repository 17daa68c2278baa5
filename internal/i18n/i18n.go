// Package i18n resolves localized error and informational messages for the
// pages and JSON responses. Catalogs are loaded once and are read-only
// afterwards, so a *Catalog can be shared across requests.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultLanguage is used when a request names no language or one we
	// have no catalog for.
	DefaultLanguage = "en"
	// GeneralError is the fallback error key.
	GeneralError = "GENERAL_ERROR"
)

//go:embed locales/*.yaml
var embeddedLocales embed.FS

type localeFile struct {
	Language string            `yaml:"language"`
	Errors   map[string]string `yaml:"errors"`
	Messages map[string]string `yaml:"messages"`
}

// MessageSet holds one language's strings.
type MessageSet struct {
	Language string
	Errors   map[string]string
	Messages map[string]string
}

// Catalog maps languages to message sets.
type Catalog struct {
	sets    map[string]*MessageSet
	tags    []language.Tag
	matcher language.Matcher
}

// Load reads the embedded locale catalogs.
func Load() (*Catalog, error) {
	return LoadFromFS(embeddedLocales)
}

// LoadFromFS reads every locales/*.yaml file in fsys. The default language
// must be present and must define GENERAL_ERROR.
func LoadFromFS(fsys fs.FS) (*Catalog, error) {
	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locales: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no locale files found")
	}
	sort.Strings(paths)

	sets := make(map[string]*MessageSet, len(paths))
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", p, err)
		}
		var file localeFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", p, err)
		}
		lang := strings.TrimSuffix(path.Base(p), path.Ext(p))
		if file.Language != "" && file.Language != lang {
			return nil, fmt.Errorf("locale %s: language %q must match file name", p, file.Language)
		}
		sets[lang] = &MessageSet{Language: lang, Errors: file.Errors, Messages: file.Messages}
	}

	def, ok := sets[DefaultLanguage]
	if !ok {
		return nil, fmt.Errorf("default language %q is not defined", DefaultLanguage)
	}
	if def.Errors[GeneralError] == "" {
		return nil, fmt.Errorf("default language must define %s", GeneralError)
	}

	// the default goes first so the matcher falls back to it
	tags := []language.Tag{language.Make(DefaultLanguage)}
	for lang := range sets {
		if lang == DefaultLanguage {
			continue
		}
		tag, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("locale %s: %w", lang, err)
		}
		tags = append(tags, tag)
	}
	sort.Slice(tags[1:], func(i, j int) bool { return tags[i+1].String() < tags[j+1].String() })

	return &Catalog{
		sets:    sets,
		tags:    tags,
		matcher: language.NewMatcher(tags),
	}, nil
}

// Resolve returns the supported language closest to lang.
func (c *Catalog) Resolve(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return DefaultLanguage
	}
	if _, ok := c.sets[lang]; ok {
		return lang
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return DefaultLanguage
	}
	_, idx, confidence := c.matcher.Match(tag)
	if confidence == language.No {
		return DefaultLanguage
	}
	return c.tags[idx].String()
}

// Set returns the message set for lang after resolution.
func (c *Catalog) Set(lang string) *MessageSet {
	return c.sets[c.Resolve(lang)]
}

// Error returns the localized error for key, falling back to the
// language's GENERAL_ERROR and then to the default language.
func (c *Catalog) Error(lang, key string) string {
	set := c.Set(lang)
	if msg, ok := set.Errors[key]; ok && key != "" {
		return msg
	}
	if msg, ok := set.Errors[GeneralError]; ok {
		return msg
	}
	return c.sets[DefaultLanguage].Errors[GeneralError]
}

// Message returns the localized informational message for key, falling
// back to the default language. Unknown keys resolve to "".
func (c *Catalog) Message(lang, key string) string {
	if msg, ok := c.Set(lang).Messages[key]; ok {
		return msg
	}
	return c.sets[DefaultLanguage].Messages[key]
}

// Languages lists the supported languages, default first.
func (c *Catalog) Languages() []string {
	out := make([]string, len(c.tags))
	for i, t := range c.tags {
		out[i] = t.String()
	}
	return out
}
