// Package entity implements parsing and generation of the orchestrator's
// composite, human-readable entity ids (spec §3):
// PREFIX-YYYYMMDD-OFF-RRRR-S, e.g. GR-20250101-KOJH-ABCD-A.
package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grievanceplatform/orchestrator/core"
)

// Source encodes which intake channel produced an entity id. The trailing
// source letter governs the Status Bus's accessible-vs-bot routing
// decision (spec §4.6).
type Source string

const (
	SourceBot        Source = "B"
	SourceAccessible Source = "A"
)

// prefixForKey maps an entity key to its id prefix (spec §3).
var prefixForKey = map[core.EntityKey]string{
	core.EntityKeyGrievance:     "GR",
	core.EntityKeyComplainant:   "CM",
	core.EntityKeyRecording:     "REC",
	core.EntityKeyTranscription: "TR",
	core.EntityKeyTranslation:   "TL",
}

var keyForPrefix = func() map[string]core.EntityKey {
	m := make(map[string]core.EntityKey, len(prefixForKey))
	for k, v := range prefixForKey {
		m[v] = k
	}
	return m
}()

// Parsed is the decomposed form of a composite entity id.
type Parsed struct {
	Prefix string
	Key    core.EntityKey
	Date   time.Time
	Office string
	Random string
	Source Source
}

// Parse decomposes a composite entity id of the form
// PREFIX-YYYYMMDD-OFF-RRRR-S (spec §3), returning core.ErrMalformedEntityID
// wrapped with positional context when id does not match the expected shape.
func Parse(id string) (Parsed, error) {
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		return Parsed{}, fmt.Errorf("entity id %q: expected 5 '-'-separated segments, got %d: %w",
			id, len(parts), core.ErrMalformedEntityID)
	}

	prefix, dateStr, office, random, sourceStr := parts[0], parts[1], parts[2], parts[3], parts[4]

	key, ok := keyForPrefix[prefix]
	if !ok {
		return Parsed{}, fmt.Errorf("entity id %q: unknown prefix %q: %w", id, prefix, core.ErrMalformedEntityID)
	}

	date, err := time.Parse("20060102", dateStr)
	if err != nil {
		return Parsed{}, fmt.Errorf("entity id %q: invalid date segment %q: %w", id, dateStr, core.ErrMalformedEntityID)
	}

	var source Source
	switch sourceStr {
	case string(SourceBot):
		source = SourceBot
	case string(SourceAccessible):
		source = SourceAccessible
	default:
		return Parsed{}, fmt.Errorf("entity id %q: invalid source segment %q: %w", id, sourceStr, core.ErrMalformedEntityID)
	}

	return Parsed{
		Prefix: prefix,
		Key:    key,
		Date:   date,
		Office: office,
		Random: random,
		Source: source,
	}, nil
}

// RoutesToBus reports whether the parsed id's source is accessible, the
// only source whose room receives status frames (spec §4.6).
func (p Parsed) RoutesToBus() bool {
	return p.Source == SourceAccessible
}

// GenerateOptions configures entity id generation.
type GenerateOptions struct {
	// Office, when set, is used verbatim (upper-cased, underscores
	// stripped, truncated/padded to 4 chars) as the office segment, taking
	// precedence over Province/District.
	Office string
	// Province and District are combined (first two letters of each,
	// upper-cased) into the office segment when Office is unset. Callers
	// without a channel-supplied location should pass the service's
	// core.LocaleConfig defaults here.
	Province string
	District string
	Source   Source
	// Now overrides the generation timestamp; defaults to time.Now() when zero.
	Now time.Time
}

// Generate builds a composite entity id for key following spec §3's format.
func Generate(key core.EntityKey, opts GenerateOptions) (string, error) {
	prefix, ok := prefixForKey[key]
	if !ok {
		return "", fmt.Errorf("entity key %q: %w", key, core.ErrUnknownEntityKey)
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	source := opts.Source
	if source == "" {
		source = SourceBot
	}

	office := officeSegment(opts)
	random := strings.ToUpper(uuid.New().String()[:4])

	return fmt.Sprintf("%s-%s-%s-%s-%s", prefix, now.UTC().Format("20060102"), office, random, source), nil
}

// officeSegment derives the 4-character OFF segment: an explicit office
// code takes precedence over province+district, both normalized to a fixed
// 4-character width.
func officeSegment(opts GenerateOptions) string {
	if opts.Office != "" {
		cleaned := strings.ToUpper(strings.ReplaceAll(opts.Office, "_", ""))
		return padOrTruncate(cleaned, 4)
	}

	province := padOrTruncate(strings.ToUpper(opts.Province), 2)
	district := padOrTruncate(strings.ToUpper(opts.District), 2)
	return province + district
}

func padOrTruncate(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat("X", n-len(s))
}
