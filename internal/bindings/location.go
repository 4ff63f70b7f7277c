package bindings

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// LocationKind tags which branch of the location grammar a parsed Location
// belongs to.
type LocationKind int

const (
	LocationDeployed LocationKind = iota
	LocationPartial
	LocationRecording
	LocationNative
	LocationError
	LocationBerry
)

var (
	txidRe   = regexp.MustCompile(`^[0-9a-f]{64}$`)
	hashRe   = txidRe
	recordRe = regexp.MustCompile(`^([A-Za-z0-9_-]+)_([od])(\d+)$`)
	deployRe = regexp.MustCompile(`^([0-9a-f]{64})_([od])(\d+)$`)
	partRe   = regexp.MustCompile(`^_([od])(\d+)$`)
)

// BerryQuery holds the optional berry query-string fields of a location.
type BerryQuery struct {
	Berry   string // percent-decoded berry path
	Hash    string // 64-hex content hash; empty when partial
	Version int    // positive; 0 when partial
}

// Location is the parsed form of any of the grammar's branches. At most one
// of TxID/ScriptID/Name/Message is populated depending on Kind.
type Location struct {
	Kind     LocationKind
	TxID     string // deployed
	ScriptID string // recording
	Name     string // native
	Message  string // error
	IsDelete bool
	Index    uint64
	Berry    *BerryQuery // non-nil iff this location carries a berry query string
}

// ParseLocation parses any branch of the location grammar. Invalid inputs
// fail with "Bad location".
func ParseLocation(s string) (*Location, error) {
	base, berry, err := splitBerryQuery(s)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasPrefix(base, "native://"):
		name := strings.TrimPrefix(base, "native://")
		if name == "" {
			return nil, fmt.Errorf("Bad location: empty native name")
		}
		return &Location{Kind: LocationNative, Name: name}, nil

	case strings.HasPrefix(base, "error://"):
		msg := strings.TrimPrefix(base, "error://")
		if msg == "" {
			return nil, fmt.Errorf("Bad location: empty error message")
		}
		return &Location{Kind: LocationError, Message: msg}, nil

	case strings.HasPrefix(base, "record://"):
		rest := strings.TrimPrefix(base, "record://")
		m := recordRe.FindStringSubmatch(rest)
		if m == nil {
			return nil, fmt.Errorf("Bad location: malformed record location %q", s)
		}
		idx, _ := strconv.ParseUint(m[3], 10, 64)
		loc := &Location{Kind: LocationRecording, ScriptID: m[1], Index: idx, IsDelete: m[2] == "d"}
		loc.Berry = berry
		return loc, nil

	default:
		if m := deployRe.FindStringSubmatch(base); m != nil {
			idx, _ := strconv.ParseUint(m[3], 10, 64)
			loc := &Location{Kind: LocationDeployed, TxID: m[1], Index: idx, IsDelete: m[2] == "d"}
			loc.Berry = berry
			return loc, nil
		}
		if m := partRe.FindStringSubmatch(base); m != nil {
			idx, _ := strconv.ParseUint(m[2], 10, 64)
			loc := &Location{Kind: LocationPartial, Index: idx, IsDelete: m[1] == "d"}
			loc.Berry = berry
			return loc, nil
		}
		return nil, fmt.Errorf("Bad location: %q does not match any known grammar branch", s)
	}
}

// splitBerryQuery separates an optional `?berry=...&hash=...&version=...`
// query string from the base location and validates the berry fields when
// present. A partial berry omits hash and/or version.
func splitBerryQuery(s string) (string, *BerryQuery, error) {
	idx := strings.IndexByte(s, '?')
	if idx < 0 {
		return s, nil, nil
	}
	base, qs := s[:idx], s[idx+1:]
	values, err := url.ParseQuery(qs)
	if err != nil {
		return "", nil, fmt.Errorf("Bad location: invalid berry query: %w", err)
	}
	berry := values.Get("berry")
	if berry == "" {
		return "", nil, fmt.Errorf("Bad location: berry query missing berry path")
	}
	bq := &BerryQuery{Berry: berry}
	if h := values.Get("hash"); h != "" {
		if !hashRe.MatchString(h) {
			return "", nil, fmt.Errorf("Bad location: berry hash %q is not 64 lowercase hex", h)
		}
		bq.Hash = h
	}
	if v := values.Get("version"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return "", nil, fmt.Errorf("Bad location: berry version must be a positive integer")
		}
		bq.Version = n
	}
	return base, bq, nil
}

// Compile renders a Location back to its canonical string form.
func (l *Location) Compile() (string, error) {
	var base string
	switch l.Kind {
	case LocationNative:
		base = "native://" + l.Name
	case LocationError:
		base = "error://" + l.Message
	case LocationRecording:
		base = fmt.Sprintf("record://%s_%s%d", l.ScriptID, delFlag(l.IsDelete), l.Index)
	case LocationDeployed:
		if !txidRe.MatchString(l.TxID) {
			return "", fmt.Errorf("Bad location: txid %q is not 64 lowercase hex", l.TxID)
		}
		base = fmt.Sprintf("%s_%s%d", l.TxID, delFlag(l.IsDelete), l.Index)
	case LocationPartial:
		base = fmt.Sprintf("_%s%d", delFlag(l.IsDelete), l.Index)
	default:
		return "", fmt.Errorf("Bad location: unknown kind %d", l.Kind)
	}
	if l.Berry == nil {
		return base, nil
	}
	q := url.Values{}
	q.Set("berry", l.Berry.Berry)
	if l.Berry.Hash != "" {
		q.Set("hash", l.Berry.Hash)
	}
	if l.Berry.Version > 0 {
		q.Set("version", strconv.Itoa(l.Berry.Version))
	}
	return base + "?" + q.Encode(), nil
}

func delFlag(isDelete bool) string {
	if isDelete {
		return "d"
	}
	return "o"
}

// ErrUndeployed is the reserved error-location message marking a type
// awaiting deploy.
const ErrUndeployed = "Undeployed"
