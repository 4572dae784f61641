package identifier

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseLevel grades how much structure a parse recovered.
type ParseLevel string

const (
	LevelFull       ParseLevel = "FULL"       // scheme matched, all fields extracted
	LevelPartial    ParseLevel = "PARTIAL"    // scheme matched, some fields unrecoverable
	LevelClassified ParseLevel = "CLASSIFIED" // bucketed as legacy, no field extraction
	LevelFail       ParseLevel = "FAIL"       // unrecognized
)

// RegnoType distinguishes full registrations from provincial filings.
type RegnoType string

const (
	RegnoRegistration RegnoType = "registration"
	RegnoFiling       RegnoType = "filing"
	RegnoUnknown      RegnoType = "unknown"
)

// OriginType maps the approval character to the product origin it encodes.
type OriginType string

const (
	OriginDomestic OriginType = "domestic"  // 准
	OriginImported OriginType = "imported"  // 进
	OriginLicensed OriginType = "licensed"  // 许 (Hong Kong/Macao/Taiwan)
)

// ApprovalLevel is the issuing authority tier.
type ApprovalLevel string

const (
	ApprovalNational   ApprovalLevel = "national"
	ApprovalProvincial ApprovalLevel = "provincial"
)

// ParseResult is the structured descriptor of one identifier. It feeds
// quality metrics and display; cross-source matching uses Normalize, never
// this.
type ParseResult struct {
	OK              bool
	Level           ParseLevel
	Reason          string
	RegnoType       RegnoType
	OriginType      OriginType
	ApprovalLevel   ApprovalLevel
	ManagementClass int // 1..3, 0 when unknown
	FirstYear       int
	CategoryCode    string
	SerialNo        string
	ActionSuffix    string
	IsLegacyFormat  bool
}

// Parser classifies raw identifiers against the scheme dictionary it was
// constructed with. Parsing never errors; unrecognized input is a normal
// LevelFail result.
type Parser struct {
	table   SchemeTable
	current *regexp.Regexp
	filing  *regexp.Regexp
	legacy  *regexp.Regexp
	coarse  *regexp.Regexp
}

// NewParser compiles the recognizers for the given dictionary.
func NewParser(table SchemeTable) (*Parser, error) {
	auth := alternation(table.LegacyAuthorities)
	suffix := alternation(table.ActionSuffixes)

	current, err := regexp.Compile(`^(国|\p{Han})械注(准|进|许)(\d{4})(\d+)$`)
	if err != nil {
		return nil, fmt.Errorf("compile current scheme: %w", err)
	}
	filing, err := regexp.Compile(`^(国|\p{Han}{1,2}?)械备(\d{4})(\d+)号?$`)
	if err != nil {
		return nil, fmt.Errorf("compile filing scheme: %w", err)
	}
	legacy, err := regexp.Compile(
		`^(国|\p{Han}{1,2}?)(` + auth + `)械(准|进|许)?字(\d{4})第(\d+)号?(` + suffix + `)?$`)
	if err != nil {
		return nil, fmt.Errorf("compile legacy scheme: %w", err)
	}
	coarse, err := regexp.Compile(`械.*字.*\d`)
	if err != nil {
		return nil, fmt.Errorf("compile coarse scheme: %w", err)
	}
	return &Parser{
		table:   table,
		current: current,
		filing:  filing,
		legacy:  legacy,
		coarse:  coarse,
	}, nil
}

func alternation(items []string) string {
	quoted := make([]string, 0, len(items))
	for _, it := range items {
		quoted = append(quoted, regexp.QuoteMeta(it))
	}
	return strings.Join(quoted, "|")
}

// Parse classifies one raw identifier. Recognition runs in priority order:
// current national/provincial registration, provincial filing, legacy
// authority-name variants, coarse legacy bucket, failure.
func (p *Parser) Parse(raw string) ParseResult {
	key, ok := Normalize(raw)
	if !ok {
		return ParseResult{
			Level:     LevelFail,
			Reason:    "empty after normalization",
			RegnoType: RegnoUnknown,
		}
	}

	if m := p.current.FindStringSubmatch(key); m != nil {
		return p.parseCurrent(m)
	}
	if m := p.filing.FindStringSubmatch(key); m != nil {
		return p.parseFiling(m)
	}
	if m := p.legacy.FindStringSubmatch(key); m != nil {
		return p.parseLegacy(m)
	}
	if p.coarse.MatchString(key) {
		return ParseResult{
			OK:             true,
			Level:          LevelClassified,
			Reason:         "coarse legacy pattern, fields not extractable",
			RegnoType:      RegnoRegistration,
			IsLegacyFormat: true,
		}
	}
	return ParseResult{
		Level:     LevelFail,
		Reason:    "no scheme matched",
		RegnoType: RegnoUnknown,
	}
}

func (p *Parser) parseCurrent(m []string) ParseResult {
	res := ParseResult{
		OK:            true,
		RegnoType:     RegnoRegistration,
		OriginType:    originFor(m[2]),
		ApprovalLevel: approvalFor(m[1]),
		FirstYear:     atoi(m[3]),
	}
	// The digit block after the year carries management class (1),
	// category (2), and serial (4) when complete.
	tail := m[4]
	if len(tail) == 7 {
		res.Level = LevelFull
		res.ManagementClass = int(tail[0] - '0')
		res.CategoryCode = tail[1:3]
		res.SerialNo = tail[3:]
	} else {
		res.Level = LevelPartial
		res.Reason = "serial block is not class+category+serial shaped"
		res.SerialNo = tail
	}
	return res
}

func (p *Parser) parseFiling(m []string) ParseResult {
	// Filings cover class 1 devices only.
	return ParseResult{
		OK:              true,
		Level:           LevelFull,
		RegnoType:       RegnoFiling,
		ApprovalLevel:   approvalFor(m[1]),
		ManagementClass: 1,
		FirstYear:       atoi(m[2]),
		SerialNo:        m[3],
	}
}

func (p *Parser) parseLegacy(m []string) ParseResult {
	res := ParseResult{
		OK:             true,
		RegnoType:      RegnoRegistration,
		ApprovalLevel:  approvalFor(m[1]),
		FirstYear:      atoi(m[4]),
		ActionSuffix:   m[6],
		IsLegacyFormat: true,
	}
	if m[3] != "" {
		res.OriginType = originFor(m[3])
	}
	serial := m[5]
	if len(serial) == 7 {
		res.Level = LevelFull
		res.ManagementClass = int(serial[0] - '0')
		res.CategoryCode = serial[1:3]
		res.SerialNo = serial[3:]
	} else {
		res.Level = LevelPartial
		res.Reason = "legacy serial is not class+category+serial shaped"
		res.SerialNo = serial
	}
	if m[3] == "" && res.Level == LevelFull {
		res.Level = LevelPartial
		res.Reason = "approval character missing"
	}
	return res
}

func originFor(ch string) OriginType {
	switch ch {
	case "准":
		return OriginDomestic
	case "进":
		return OriginImported
	case "许":
		return OriginLicensed
	}
	return ""
}

func approvalFor(authority string) ApprovalLevel {
	if authority == "国" {
		return ApprovalNational
	}
	return ApprovalProvincial
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
