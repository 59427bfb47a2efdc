// Package vocabulary holds the entity dictionaries used by both parser
// tiers and the validator. The active data lives in an immutable Snapshot
// behind an atomic pointer: readers always see either the old or the new
// complete snapshot, never a partially-updated one.
package vocabulary

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"enms-voice/internal/common/logger"
	"enms-voice/internal/common/metrics"
)

// Category identifies the kind of a vocabulary entry.
type Category string

const (
	CategoryMachineAlias      Category = "machine_alias"
	CategoryMetricSynonym     Category = "metric_synonym"
	CategoryTimeExpression    Category = "time_expression"
	CategorySpokenNumber      Category = "spoken_number"
	CategoryEnergySourceAlias Category = "energy_source_alias"
)

// Entry is one term-to-canonical mapping.
type Entry struct {
	Term      string
	Canonical string
	Category  Category
}

// staticData is the configuration-file part of the vocabulary. Only the
// machine whitelist changes at runtime; everything here is loaded once.
type staticData struct {
	Metrics         map[string][]string `yaml:"metrics"`
	TimeExpressions map[string][]string `yaml:"time_expressions"`
	SpokenNumbers   map[string]int      `yaml:"spoken_numbers"`
	EnergySources   map[string][]string `yaml:"energy_sources"`
}

// Snapshot is an immutable view of the full vocabulary, including the
// machine whitelist as of the last refresh.
type Snapshot struct {
	machines      []string          // canonical names, sorted
	machineByNorm map[string]string // normalized alias -> canonical
	metricByTerm  map[string]string
	timeByTerm    map[string]string
	timeSet       map[string]bool
	numberByWord  map[string]int
	wordByNumber  map[int]string
	sourceByTerm  map[string]string
	sourceSet     map[string]bool
	maxTermWords  int
	generation    uint64
}

// Store owns the active Snapshot. Single writer (init or explicit refresh),
// many readers.
type Store struct {
	static staticData
	snap   atomic.Pointer[Snapshot]
	gen    atomic.Uint64
	logger logger.Logger
}

// vocabSchema is the JSON schema the static vocabulary file must satisfy.
var vocabSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"metrics", "time_expressions", "spoken_numbers", "energy_sources"},
	"properties": map[string]interface{}{
		"metrics": map[string]interface{}{
			"type":          "object",
			"minProperties": 1,
		},
		"time_expressions": map[string]interface{}{
			"type": "object",
		},
		"spoken_numbers": map[string]interface{}{
			"type":          "object",
			"minProperties": 1,
		},
		"energy_sources": map[string]interface{}{
			"type":          "object",
			"minProperties": 1,
		},
	},
}

// NewFromFile loads the static vocabulary from a YAML file. The machine
// whitelist starts empty; callers must RefreshMachines before the store is
// usable for machine-scoped queries.
func NewFromFile(path string, log logger.Logger) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary file: %w", err)
	}
	return NewFromBytes(raw, log)
}

// NewFromBytes loads the static vocabulary from raw YAML.
func NewFromBytes(raw []byte, log logger.Logger) (*Store, error) {
	var generic map[string]interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("parse vocabulary yaml: %w", err)
	}

	if err := validateVocab(generic); err != nil {
		return nil, err
	}

	var static staticData
	if err := yaml.Unmarshal(raw, &static); err != nil {
		return nil, fmt.Errorf("decode vocabulary yaml: %w", err)
	}

	s := &Store{
		static: static,
		logger: log.With(map[string]interface{}{"component": "vocabulary"}),
	}
	s.snap.Store(s.build(nil))
	return s, nil
}

func validateVocab(doc map[string]interface{}) error {
	schemaLoader := gojsonschema.NewGoLoader(vocabSchema)
	documentLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("vocabulary schema validation: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("vocabulary file invalid: %v", errs)
	}
	return nil
}

// RefreshMachines replaces the machine whitelist atomically. An empty list
// is rejected: with no known machines, no machine-scoped query could ever
// validate.
func (s *Store) RefreshMachines(names []string) error {
	cleaned := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			cleaned = append(cleaned, n)
		}
	}
	if len(cleaned) == 0 {
		return fmt.Errorf("machine whitelist refresh rejected: empty name list")
	}

	snap := s.build(cleaned)
	s.snap.Store(snap)
	metrics.WhitelistSize.Set(float64(len(snap.machines)))

	s.logger.Info("machine whitelist refreshed", map[string]interface{}{
		"machines":   len(snap.machines),
		"generation": snap.generation,
	})
	return nil
}

// Snapshot returns the active immutable vocabulary view.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

func (s *Store) build(machines []string) *Snapshot {
	snap := &Snapshot{
		machineByNorm: make(map[string]string),
		metricByTerm:  make(map[string]string),
		timeByTerm:    make(map[string]string),
		timeSet:       make(map[string]bool),
		numberByWord:  make(map[string]int),
		wordByNumber:  make(map[int]string),
		sourceByTerm:  make(map[string]string),
		sourceSet:     make(map[string]bool),
		maxTermWords:  1,
		generation:    s.gen.Add(1),
	}

	for word, n := range s.static.SpokenNumbers {
		w := strings.ToLower(strings.TrimSpace(word))
		snap.numberByWord[w] = n
		if _, ok := snap.wordByNumber[n]; !ok {
			snap.wordByNumber[n] = w
		}
	}

	addTerms := func(dst map[string]string, canonical string, terms []string) {
		for _, t := range terms {
			t = strings.ToLower(strings.TrimSpace(t))
			if t == "" {
				continue
			}
			dst[t] = canonical
			if n := len(strings.Fields(t)); n > snap.maxTermWords {
				snap.maxTermWords = n
			}
		}
	}

	for canonical, terms := range s.static.Metrics {
		addTerms(snap.metricByTerm, canonical, terms)
	}
	for canonical, terms := range s.static.TimeExpressions {
		addTerms(snap.timeByTerm, canonical, terms)
		snap.timeSet[canonical] = true
	}
	for canonical, terms := range s.static.EnergySources {
		addTerms(snap.sourceByTerm, canonical, terms)
		snap.sourceSet[canonical] = true
	}

	sorted := append([]string(nil), machines...)
	sort.Strings(sorted)
	snap.machines = sorted
	for _, m := range sorted {
		for _, alias := range snap.machineAliases(m) {
			snap.machineByNorm[alias] = m
		}
	}

	return snap
}

// machineAliases returns the normalized spoken forms of a canonical machine
// name: "Compressor-1" yields "compressor 1" and "compressor one".
func (sn *Snapshot) machineAliases(canonical string) []string {
	base := NormalizeMachineName(canonical)
	aliases := []string{base}

	spoken := base
	for n, w := range sn.wordByNumber {
		spoken = replaceWholeWord(spoken, strconv.Itoa(n), w)
	}
	if spoken != base {
		aliases = append(aliases, spoken)
	}
	return aliases
}

// NormalizeMachineName lowercases a machine mention and replaces hyphens and
// underscores with spaces so spoken and written forms compare equal.
func NormalizeMachineName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", " ")
	n = strings.ReplaceAll(n, "_", " ")
	return strings.Join(strings.Fields(n), " ")
}

func replaceWholeWord(s, old, new string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if f == old {
			fields[i] = new
		}
	}
	return strings.Join(fields, " ")
}

// Machines returns the canonical whitelist, sorted.
func (sn *Snapshot) Machines() []string {
	return sn.machines
}

// Generation identifies this snapshot; it increases on every rebuild.
func (sn *Snapshot) Generation() uint64 {
	return sn.generation
}

// CanonicalMachine resolves a mention to a whitelist canonical name via the
// alias table. Exact (normalized) lookup only; fuzzy matching is the
// parser's job.
func (sn *Snapshot) CanonicalMachine(mention string) (string, bool) {
	c, ok := sn.machineByNorm[NormalizeMachineName(mention)]
	return c, ok
}

// KnownMachine reports whether name is exactly a canonical whitelist member.
func (sn *Snapshot) KnownMachine(name string) bool {
	for _, m := range sn.machines {
		if m == name {
			return true
		}
	}
	return false
}

// MachinePattern returns a regex alternation matching every known machine
// alias, longest first so multi-word aliases win. Empty string when the
// whitelist is empty.
func (sn *Snapshot) MachinePattern() string {
	if len(sn.machineByNorm) == 0 {
		return ""
	}
	aliases := make([]string, 0, len(sn.machineByNorm))
	for a := range sn.machineByNorm {
		aliases = append(aliases, a)
	}
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i]) != len(aliases[j]) {
			return len(aliases[i]) > len(aliases[j])
		}
		return aliases[i] < aliases[j]
	})
	quoted := make([]string, len(aliases))
	for i, a := range aliases {
		// Aliases are space-normalized; let any run of space or hyphen
		// match between words so "Compressor-1" hits "compressor 1".
		parts := strings.Fields(a)
		for j, p := range parts {
			parts[j] = regexp.QuoteMeta(p)
		}
		quoted[i] = strings.Join(parts, `[\s-]+`)
	}
	return strings.Join(quoted, "|")
}

// MetricFor resolves a metric synonym to its canonical metric name.
func (sn *Snapshot) MetricFor(term string) (string, bool) {
	m, ok := sn.metricByTerm[strings.ToLower(term)]
	return m, ok
}

// TimeExprFor resolves a time expression synonym to its canonical name.
func (sn *Snapshot) TimeExprFor(term string) (string, bool) {
	t, ok := sn.timeByTerm[strings.ToLower(term)]
	return t, ok
}

// KnownTimeExpr reports whether name is a canonical time expression.
func (sn *Snapshot) KnownTimeExpr(name string) bool {
	return sn.timeSet[name]
}

// NumberFor resolves a spoken number word to its value.
func (sn *Snapshot) NumberFor(word string) (int, bool) {
	n, ok := sn.numberByWord[strings.ToLower(word)]
	return n, ok
}

// EnergySourceFor resolves an energy-source alias to its canonical name.
func (sn *Snapshot) EnergySourceFor(term string) (string, bool) {
	s, ok := sn.sourceByTerm[strings.ToLower(term)]
	return s, ok
}

// KnownEnergySource reports whether name is a canonical energy source.
func (sn *Snapshot) KnownEnergySource(name string) bool {
	return sn.sourceSet[name]
}

// MaxTermWords is the longest multi-word synonym length, used by the
// parser's n-gram scan.
func (sn *Snapshot) MaxTermWords() int {
	return sn.maxTermWords
}
