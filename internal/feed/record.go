package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Debrato2005/OrbitOps/internal/catalog"
)

// minRelativeSpeed is the relative speed (km/s) below which a record is
// treated as two entries for the same object.
const minRelativeSpeed = 1e-4

// ErrMalformed is returned when the document is not a record list.
var ErrMalformed = errors.New("malformed feed document")

// number accepts JSON numbers, numeric strings, null and "".
type number struct {
	value float64
	set   bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = number{}
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = number{}
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*n = number{value: v, set: true}
	return nil
}

// Record is one externally computed conjunction.
type Record struct {
	Sat1     number `json:"SAT1"`
	Sat2     number `json:"SAT2"`
	Sat1Name string `json:"SAT1_NAME"`
	Sat2Name string `json:"SAT2_NAME"`
	TOCA     string `json:"TOCA"`
	MinRange number `json:"MIN_RNG"`
	RelSpeed number `json:"REL_SPEED"`
	MaxProb  number `json:"MAX_PROB"`
}

// Decode parses a document that is either a bare record array or an object
// whose single value is that array.
func Decode(data []byte) ([]Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformed)
	}

	var records []Record
	if data[0] == '[' {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return records, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(wrapped) != 1 {
		return nil, fmt.Errorf("%w: wrapper object has %d keys, want 1", ErrMalformed, len(wrapped))
	}
	for key, raw := range wrapped {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("%w: %q is not a record list: %v", ErrMalformed, key, err)
		}
	}
	return records, nil
}

var tocaLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseTOCA parses the time of closest approach; zone-less values are UTC.
func parseTOCA(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range tocaLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised TOCA %q", s)
}

// Event converts r into an external-provenance event with SAT1 as primary.
func (r Record) Event() (catalog.Event, error) {
	if !r.Sat1.set || !r.Sat2.set {
		return catalog.Event{}, errors.New("missing SAT1 or SAT2")
	}
	id1, id2 := int(r.Sat1.value), int(r.Sat2.value)
	if float64(id1) != r.Sat1.value || float64(id2) != r.Sat2.value {
		return catalog.Event{}, fmt.Errorf("non-integer catalog id %v/%v", r.Sat1.value, r.Sat2.value)
	}
	tca, err := parseTOCA(r.TOCA)
	if err != nil {
		return catalog.Event{}, err
	}
	if !r.MinRange.set || !r.RelSpeed.set {
		return catalog.Event{}, errors.New("missing MIN_RNG or REL_SPEED")
	}
	if math.IsNaN(r.RelSpeed.value) || r.RelSpeed.value < minRelativeSpeed {
		return catalog.Event{}, fmt.Errorf("degenerate relative speed %v km/s", r.RelSpeed.value)
	}

	e := catalog.Event{
		PrimaryID:        id1,
		SecondaryID:      id2,
		PrimaryName:      strings.TrimSpace(r.Sat1Name),
		SecondaryName:    strings.TrimSpace(r.Sat2Name),
		TCA:              tca,
		MissDistanceKm:   r.MinRange.value,
		RelativeSpeedKmS: r.RelSpeed.value,
		Provenance:       catalog.ProvenanceExternal,
	}
	if r.MaxProb.set {
		p := r.MaxProb.value
		e.Probability = &p
	}
	if err := e.Validate(); err != nil {
		return catalog.Event{}, err
	}
	return e, nil
}

// Events converts records, skipping (and logging) the invalid ones.
func Events(records []Record, logger *slog.Logger) ([]catalog.Event, int) {
	events := make([]catalog.Event, 0, len(records))
	skipped := 0
	for i, r := range records {
		e, err := r.Event()
		if err != nil {
			skipped++
			logger.Warn("skipping feed record", "index", i, "error", err)
			continue
		}
		events = append(events, e)
	}
	return events, skipped
}
