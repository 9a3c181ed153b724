// Package parser pulls the answer text and recommended product ids out of a
// raw model completion.
//
// Two reply formats are understood. The structured form is
//
//	Answer: <text>
//	Product IDs: [PID123, PID456]
//
// and the legacy form appends a "[RECOMMENDED: id1, id2]" marker to the answer.
// The structured form wins when both are present.
package parser

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/xhad/shopmate/internal/logging"
	"go.uber.org/zap"
)

// FallbackAnswer replaces an answer that is empty once markers are removed.
const FallbackAnswer = "I couldn't find information about that. Could you try asking in a different way?"

const (
	answerLabel   = "Answer:"
	bracketMarker = "[RECOMMENDED:"
)

var (
	productIDsField = regexp.MustCompile(`Product IDs:\s*\[([^\]]*)\]`)
	canonicalID     = regexp.MustCompile(`\bPID\d{3}\b`)
)

type Convention int

const (
	ConventionNone Convention = iota
	ConventionStructured
	ConventionBracket
)

func (c Convention) String() string {
	switch c {
	case ConventionStructured:
		return "structured"
	case ConventionBracket:
		return "bracket"
	default:
		return "none"
	}
}

// Extraction is the syntactic part of parsing, before ids are resolved.
type Extraction struct {
	Answer     string
	Candidates []string // deduplicated, first-seen order
	Convention Convention
	Malformed  bool // a marker was present but could not be read
}

// Extract splits raw into answer text and candidate identifiers. It does not
// substitute FallbackAnswer.
func Extract(raw string) Extraction {
	if m := productIDsField.FindStringSubmatch(raw); m != nil {
		return Extraction{
			Answer:     cleanAnswer(productIDsField.ReplaceAllString(raw, "")),
			Candidates: dedupe(canonicalID.FindAllString(m[1], -1)),
			Convention: ConventionStructured,
		}
	}

	if start := strings.Index(raw, bracketMarker); start >= 0 {
		ex := Extraction{
			Answer:     cleanAnswer(raw[:start]),
			Convention: ConventionBracket,
		}
		body := raw[start+len(bracketMarker):]
		end := strings.Index(body, "]")
		if end < 0 {
			ex.Malformed = true
			return ex
		}
		var candidates []string
		for _, part := range strings.Split(body[:end], ",") {
			if part = strings.TrimSpace(part); part != "" {
				candidates = append(candidates, part)
			}
		}
		ex.Candidates = dedupe(candidates)
		return ex
	}

	return Extraction{Answer: cleanAnswer(raw), Convention: ConventionNone}
}

// cleanAnswer drops a leading "Answer:" label and trailing whitespace.
func cleanAnswer(s string) string {
	trimmed := strings.TrimLeftFunc(s, unicode.IsSpace)
	if rest, ok := strings.CutPrefix(trimmed, answerLabel); ok {
		s = strings.TrimLeftFunc(rest, unicode.IsSpace)
	}
	return strings.TrimRightFunc(s, unicode.IsSpace)
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Resolver maps an identifier spelling to a canonical product id.
type Resolver interface {
	Resolve(spelling string) (string, bool)
}

type Result struct {
	Answer     string
	ProductIDs []string // canonical, deduplicated, never nil
	Unmapped   []string
	Convention Convention
}

type Parser struct {
	resolver Resolver
	logger   *zap.Logger
}

func New(resolver Resolver, logger *zap.Logger) *Parser {
	return &Parser{
		resolver: resolver,
		logger:   logging.OrNop(logger),
	}
}

// Parse never fails. Identifiers that do not resolve are dropped and logged.
func (p *Parser) Parse(raw string) Result {
	ex := Extract(raw)
	if ex.Malformed {
		p.logger.Warn("unterminated recommendation marker, ignoring it")
	}

	res := Result{
		Answer:     ex.Answer,
		ProductIDs: []string{},
		Convention: ex.Convention,
	}
	if res.Answer == "" {
		res.Answer = FallbackAnswer
	}

	seen := make(map[string]struct{}, len(ex.Candidates))
	for _, candidate := range ex.Candidates {
		id, ok := p.resolve(candidate)
		if !ok {
			p.logger.Warn("unmapped product id",
				zap.String("candidate", candidate),
				zap.Stringer("convention", ex.Convention))
			res.Unmapped = append(res.Unmapped, candidate)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		res.ProductIDs = append(res.ProductIDs, id)
	}

	return res
}

func (p *Parser) resolve(candidate string) (string, bool) {
	if p.resolver == nil {
		return "", false
	}
	if id, ok := p.resolver.Resolve(candidate); ok {
		return id, true
	}
	if upper := strings.ToUpper(candidate); upper != candidate {
		return p.resolver.Resolve(upper)
	}
	return "", false
}
