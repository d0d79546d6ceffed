// Package schema validates request bodies against embedded JSON schemas.
package schema

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"

	"github.com/and161185/thermolink/internal/errs"
	"github.com/and161185/thermolink/internal/model"
)

// Schema IDs of the embedded top-level schemas.
const (
	ScheduleID = "https://thermolink.local/schemas/schedule.json"
	ReportID   = "https://thermolink.local/schemas/report.json"
)

//go:embed schemas/*.json schemas/refs/*.json
var embedded embed.FS

// Validator validates JSON documents against compiled schemas keyed by $id.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// New builds a Validator from the embedded schemas.
func New() (*Validator, error) {
	sub, err := fs.Sub(embedded, "schemas")
	if err != nil {
		return nil, err
	}
	return NewValidatorFromFS(sub)
}

// NewValidatorFromFS uses json files at the root of fsys as top-level schemas
// and json files under refs/ as referenced schemas.
func NewValidatorFromFS(fsys fs.FS) (*Validator, error) {
	readDir := func(dir string) ([]string, error) {
		entries, err := fs.ReadDir(fsys, dir)
		if err != nil {
			return nil, fmt.Errorf("cannot read dir %s: %w", dir, err)
		}
		var out []string
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			p := e.Name()
			if dir != "." {
				p = dir + "/" + e.Name()
			}
			b, err := fs.ReadFile(fsys, p)
			if err != nil {
				return nil, fmt.Errorf("cannot read file %s: %w", p, err)
			}
			out = append(out, string(b))
		}
		return out, nil
	}

	top, err := readDir(".")
	if err != nil {
		return nil, err
	}
	refs, err := readDir("refs")
	if err != nil {
		return nil, err
	}
	return NewValidator(top, refs)
}

// NewValidator compiles top-level schemas; each may reference any of refs by $id.
func NewValidator(schemas, refs []string) (*Validator, error) {
	type header struct {
		ID string `json:"$id"`
	}
	v := &Validator{schemas: make(map[string]*gojsonschema.Schema)}
	for _, str := range schemas {
		var h header
		if err := json.Unmarshal([]byte(str), &h); err != nil {
			return nil, fmt.Errorf("parse schema: %w", err)
		}
		if h.ID == "" {
			return nil, errors.New("schema does not contain $id")
		}
		sl := gojsonschema.NewSchemaLoader()
		for _, ref := range refs {
			if err := sl.AddSchemas(gojsonschema.NewStringLoader(ref)); err != nil {
				return nil, fmt.Errorf("cannot add ref: %w", err)
			}
		}
		compiled, err := sl.Compile(gojsonschema.NewStringLoader(str))
		if err != nil {
			return nil, fmt.Errorf("cannot compile schema %s: %w", h.ID, err)
		}
		v.schemas[h.ID] = compiled
	}
	return v, nil
}

// HasSchema reports whether schemaID is known.
func (v *Validator) HasSchema(schemaID string) bool {
	_, ok := v.schemas[schemaID]
	return ok
}

// Validate checks raw against schemaID. Invalid documents wrap errs.ErrValidation.
func (v *Validator) Validate(raw []byte, schemaID string) error {
	s, ok := v.schemas[schemaID]
	if !ok {
		return fmt.Errorf("there is no schema %s", schemaID)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		// Malformed JSON ends up here.
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", errs.ErrValidation, strings.Join(msgs, "; "))
	}
	return nil
}

// DecodeSchedule validates and decodes a thermostat schedule.
func (v *Validator) DecodeSchedule(raw []byte) (*model.Schedule, error) {
	if err := v.Validate(raw, ScheduleID); err != nil {
		return nil, err
	}
	var s model.Schedule
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	if err := CheckSchedule(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CheckSchedule enforces the rules a JSON schema cannot express: slot times
// must be unique within a day.
func CheckSchedule(s *model.Schedule) error {
	for _, d := range s.Days {
		seen := make(map[string]struct{}, len(d.Slots))
		for _, slot := range d.Slots {
			if _, dup := seen[slot.Time]; dup {
				return fmt.Errorf("%w: time slots conflict within %s", errs.ErrValidation, d.Day)
			}
			seen[slot.Time] = struct{}{}
		}
	}
	return nil
}
