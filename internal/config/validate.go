package config

import (
	"os/exec"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	snaperrors "github.com/thoreinstein/snapkeep/internal/errors"
	"github.com/thoreinstein/snapkeep/internal/paths"
	"github.com/thoreinstein/snapkeep/internal/snapshot"
)

// Validation errors for configuration fields.
var (
	// ErrRequired indicates a mandatory field is empty.
	ErrRequired = errors.New("is required")

	// ErrNotDirectory indicates a path is missing or not a directory.
	ErrNotDirectory = errors.New("must be an existing directory")

	// ErrNotFile indicates a path is missing or not a regular file.
	ErrNotFile = errors.New("must be an existing file")

	// ErrInvalidMethod indicates an unrecognized snapshot method.
	ErrInvalidMethod = errors.New("must be one of: archive, mirror")

	// ErrInvalidRetention indicates retention_days is not a non-negative integer.
	ErrInvalidRetention = errors.New("must be a non-negative integer")

	// ErrInvalidEngine indicates an unrecognized mirror engine.
	ErrInvalidEngine = errors.New("must be one of: native, rsync")

	// ErrInvalidPath indicates a path cannot be made absolute.
	ErrInvalidPath = errors.New("invalid path")

	// ErrDestinationIsSource indicates destination and source are the same directory.
	ErrDestinationIsSource = errors.New("must differ from source")
)

// Environment answers questions about the execution environment.
type Environment interface {
	LookPath(file string) (string, error)
}

// OSEnvironment consults the real PATH.
type OSEnvironment struct{}

// LookPath wraps exec.LookPath.
func (OSEnvironment) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// EngineBinary returns the external program a mirror engine needs, or "".
func EngineBinary(engine string) string {
	if engine == EngineRsync {
		return "rsync"
	}
	return ""
}

// CheckEngine reports whether engine can run in env.
func CheckEngine(engine string, env Environment) error {
	bin := EngineBinary(engine)
	if bin == "" {
		return nil
	}
	if _, err := env.LookPath(bin); err != nil {
		return errors.Mark(errors.Wrapf(err, "mirror engine %s needs %s on PATH", engine, bin), snaperrors.ErrEnvironment)
	}
	return nil
}

// Settings is a fully resolved and validated configuration. It is created
// only by Validate and never modified afterwards.
type Settings struct {
	Source        string
	Destination   string
	Method        snapshot.Method
	RetentionDays int
	ExcludeFile   string
	Compress      bool
	DryRun        bool
	MirrorEngine  string
	MetricsFile   string
}

// fields is the subset of Raw checked with struct tags, after paths have
// been made absolute.
type fields struct {
	Source       string `name:"source" validate:"required,dir"`
	Destination  string `name:"destination" validate:"required"`
	Method       string `name:"method" validate:"required,oneof=archive mirror"`
	ExcludeFile  string `name:"exclude_file" validate:"omitempty,file"`
	MirrorEngine string `name:"mirror_engine" validate:"omitempty,oneof=native rsync"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			return f.Tag.Get("name")
		})
	})
	return validate
}

// Validate checks raw and returns the resolved Settings, or every problem
// found. All checks run; none short-circuits another. Validate has no side
// effects beyond stat calls and PATH lookups.
func Validate(raw Raw, env Environment) (*Settings, []error) {
	if env == nil {
		env = OSEnvironment{}
	}

	var errs []error

	f := fields{
		Method:       strings.ToLower(strings.TrimSpace(raw.Method)),
		MirrorEngine: strings.ToLower(strings.TrimSpace(raw.MirrorEngine)),
	}
	f.Source = absOrCollect(&errs, KeySource, raw.Source)
	f.Destination = absOrCollect(&errs, KeyDestination, raw.Destination)
	f.ExcludeFile = absOrCollect(&errs, KeyExcludeFile, raw.ExcludeFile)
	metrics := absOrCollect(&errs, KeyMetricsFile, raw.MetricsFile)
	if f.MirrorEngine == "" {
		f.MirrorEngine = DefaultMirrorEngine
	}

	errs = append(errs, structErrors(f)...)

	if f.Source != "" && f.Source == f.Destination {
		errs = append(errs, &FieldError{Field: KeyDestination, Value: raw.Destination, Err: ErrDestinationIsSource})
	}

	days, err := parseRetention(raw.RetentionDays)
	if err != nil {
		errs = append(errs, err)
	}

	if snapshot.Method(f.Method) == snapshot.MethodMirror {
		if err := CheckEngine(f.MirrorEngine, env); err != nil {
			errs = append(errs, &FieldError{Field: KeyMirrorEngine, Value: f.MirrorEngine, Err: err})
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	return &Settings{
		Source:        f.Source,
		Destination:   f.Destination,
		Method:        snapshot.Method(f.Method),
		RetentionDays: days,
		ExcludeFile:   f.ExcludeFile,
		Compress:      raw.Compress,
		DryRun:        raw.DryRun,
		MirrorEngine:  f.MirrorEngine,
		MetricsFile:   metrics,
	}, nil
}

// Retention is the subset of Settings a sweep-only command needs.
type Retention struct {
	Destination   string
	RetentionDays int
	DryRun        bool
}

// ValidateRetention checks only destination and retention_days, for
// commands that inspect or prune a destination without taking a snapshot.
func ValidateRetention(raw Raw) (*Retention, []error) {
	var errs []error

	dest := absOrCollect(&errs, KeyDestination, raw.Destination)
	if strings.TrimSpace(raw.Destination) == "" {
		errs = append(errs, &FieldError{Field: KeyDestination, Err: ErrRequired})
	}

	days, err := parseRetention(raw.RetentionDays)
	if err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return &Retention{Destination: dest, RetentionDays: days, DryRun: raw.DryRun}, nil
}

func parseRetention(value string) (int, error) {
	days, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || days < 0 {
		return 0, &FieldError{Field: KeyRetentionDays, Value: value, Err: ErrInvalidRetention}
	}
	return days, nil
}

func absOrCollect(errs *[]error, field, value string) string {
	abs, err := paths.Absolute(strings.TrimSpace(value))
	if err != nil {
		*errs = append(*errs, &FieldError{Field: field, Value: value, Err: errors.Mark(err, ErrInvalidPath)})
		return ""
	}
	return abs
}

var tagErrors = map[string]error{
	"required": ErrRequired,
	"dir":      ErrNotDirectory,
	"file":     ErrNotFile,
}

var oneofErrors = map[string]error{
	KeyMethod:       ErrInvalidMethod,
	KeyMirrorEngine: ErrInvalidEngine,
}

func structErrors(f fields) []error {
	err := getValidator().Struct(f)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []error{err}
	}

	out := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		sentinel, ok := tagErrors[fe.Tag()]
		if fe.Tag() == "oneof" {
			sentinel, ok = oneofErrors[fe.Field()]
		}
		if !ok {
			sentinel = errors.Newf("failed %s validation", fe.Tag())
		}
		out = append(out, &FieldError{
			Field: fe.Field(),
			Value: fmtValue(fe.Value()),
			Err:   sentinel,
		})
	}
	return out
}

func fmtValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// FieldError describes a problem with one configuration field.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Value == "" {
		return e.Field + " " + e.Err.Error()
	}
	return e.Field + " " + e.Err.Error() + " (got " + strconv.Quote(e.Value) + ")"
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
