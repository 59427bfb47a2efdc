// Package response renders analytics payloads into spoken-style text using
// a JSON template registry keyed by intent type. Each template declares a
// schema its data must satisfy before substitution.
package response

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"enms-voice/internal/common/errors"
	"enms-voice/internal/common/logger"
	"enms-voice/internal/intent"
)

// Template is one renderable response definition.
type Template struct {
	ID         string                 `json:"id"`
	IntentType string                 `json:"intentType"`
	Version    string                 `json:"version"`
	Schema     map[string]interface{} `json:"schema"`
	Text       string                 `json:"text"`
}

type registry struct {
	Templates []Template `json:"templates"`
}

// Formatter loads the registry file lazily and keeps it cached for the
// configured TTL, so template edits show up without a restart.
type Formatter struct {
	path   string
	ttl    time.Duration
	logger logger.Logger

	mu       sync.Mutex
	byType   map[string]Template
	loadedAt time.Time
}

func NewFormatter(path string, ttl time.Duration, log logger.Logger) *Formatter {
	return &Formatter{
		path:   path,
		ttl:    ttl,
		logger: log.With(map[string]interface{}{"component": "response"}),
	}
}

var placeholderRe = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Format validates data against the template for the intent type and
// substitutes its placeholders. Placeholders use dot paths into nested
// maps: {{energy.value}}.
func (f *Formatter) Format(intentType intent.Type, data map[string]interface{}) (string, error) {
	tpl, err := f.template(string(intentType))
	if err != nil {
		return "", err
	}

	if tpl.Schema != nil {
		if err := validateData(tpl.Schema, data); err != nil {
			return "", err
		}
	}

	text := placeholderRe.ReplaceAllStringFunc(tpl.Text, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])
		if v, ok := lookupPath(data, path); ok {
			return stringify(v)
		}
		return match
	})
	return text, nil
}

func (f *Formatter) template(intentType string) (Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.byType == nil || time.Since(f.loadedAt) > f.ttl {
		if err := f.loadLocked(); err != nil {
			// A stale registry beats no registry.
			if f.byType == nil {
				return Template{}, err
			}
			f.logger.Warn("template registry reload failed, keeping cached copy", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	tpl, ok := f.byType[intentType]
	if !ok {
		return Template{}, errors.NewTemplateNotFoundError(intentType)
	}
	return tpl, nil
}

func (f *Formatter) loadLocked() error {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read template registry: %w", err)
	}

	var reg registry
	if err := json.Unmarshal(raw, &reg); err != nil {
		return fmt.Errorf("parse template registry: %w", err)
	}

	byType := make(map[string]Template, len(reg.Templates))
	for _, tpl := range reg.Templates {
		byType[tpl.IntentType] = tpl
	}
	f.byType = byType
	f.loadedAt = time.Now()

	f.logger.Debug("template registry loaded", map[string]interface{}{
		"templates": len(byType),
	})
	return nil
}

func validateData(schema, data map[string]interface{}) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(data),
	)
	if err != nil {
		return errors.NewTemplateValidationFailedError(err.Error())
	}
	if !result.Valid() {
		descs := make([]string, len(result.Errors()))
		for i, d := range result.Errors() {
			descs[i] = d.String()
		}
		return errors.NewTemplateValidationFailedError(strings.Join(descs, "; "))
	}
	return nil
}

func lookupPath(data map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = data
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
