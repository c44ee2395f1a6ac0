// Package diag implements the core-facing half of the linker's
// diagnostic contract: a DiagnosticEngine is assumed by the rest of
// this module (1. PURPOSE & SCOPE lists diagnostic rendering as an
// external collaborator), so this package only builds the typed
// payload (kind plus ordered arguments) and the collection/severity
// bookkeeping every component needs — not the rendering itself.
package diag

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Kind enumerates error taxonomy entries from 7. ERROR HANDLING DESIGN.
type Kind int

const (
	_ Kind = iota

	// Config errors.
	KindBadCLIConfig

	// Input errors.
	KindFileNotFound
	KindBadFormat
	KindTruncatedFile

	// Resolution errors.
	KindMultipleDefinition
	KindUndefinedReference
	KindTLSNonTLSMismatch
	KindVisibilityViolation
	KindProhibitedCrossReference
	KindCommonOverride // warning: common -> define override, --warn-common

	// Relocation errors.
	KindUnsupportedRelocType
	KindRelocOutOfRange
	KindInvalidRelocInPIC
	KindBadDynamicRelocTarget

	// Layout errors.
	KindSectionDoesNotFit
	KindOverlappingRegions
	KindUnresolvableExpr
	KindUnrecognizedSection

	// IO errors.
	KindIOError

	// Tracing (not an error; always Info severity).
	KindTraceSymbol
	KindTraceReloc
)

var kindNames = map[Kind]string{
	KindBadCLIConfig:             "bad_cli_config",
	KindFileNotFound:             "file_not_found",
	KindBadFormat:                "bad_format",
	KindTruncatedFile:            "truncated_file",
	KindMultipleDefinition:       "multiple_definition",
	KindUndefinedReference:       "undefined_reference",
	KindTLSNonTLSMismatch:        "tls_non_tls_symbol_mismatch",
	KindVisibilityViolation:      "visibility_violation",
	KindProhibitedCrossReference: "prohibited_cross_reference",
	KindCommonOverride:           "common_override",
	KindUnsupportedRelocType:     "unsupported_reloc_type",
	KindRelocOutOfRange:          "reloc_out_of_range",
	KindInvalidRelocInPIC:        "invalid_reloc_in_pic",
	KindBadDynamicRelocTarget:    "bad_dynamic_reloc_target",
	KindSectionDoesNotFit:        "section_does_not_fit",
	KindOverlappingRegions:       "overlapping_regions",
	KindUnresolvableExpr:         "unresolvable_expression",
	KindUnrecognizedSection:      "unrecognized_section",
	KindIOError:                  "io_error",
	KindTraceSymbol:              "trace_symbol",
	KindTraceReloc:               "trace_reloc",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Severity is the user-visible weight of a Diagnostic.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// A Diagnostic is the typed payload the rest of the linker constructs
// and hands to an Engine. It also implements error so component code
// can return it through ordinary (T, error) signatures.
type Diagnostic struct {
	Kind     Kind
	Severity Severity
	Args     []any

	// Origin describes where the diagnostic was raised: file, section,
	// and byte offset, when known. The enclosing function name (for
	// undefined-reference diagnostics against code) is appended by the
	// caller via WithFunc before the diagnostic is emitted.
	File    string
	Section string
	Offset  uint64
	Func    string
}

func (d *Diagnostic) Error() string {
	var b strings.Builder
	b.WriteString(d.Severity.String())
	b.WriteString(": ")
	b.WriteString(d.Kind.String())
	if d.File != "" {
		fmt.Fprintf(&b, " in %s", d.File)
		if d.Section != "" {
			fmt.Fprintf(&b, "(%s+%#x)", d.Section, d.Offset)
		}
	}
	if d.Func != "" {
		fmt.Fprintf(&b, " [%s]", d.Func)
	}
	for _, a := range d.Args {
		fmt.Fprintf(&b, " %v", a)
	}
	return b.String()
}

// New builds a Diagnostic. Callers typically chain WithOrigin/WithFunc
// before passing it to an Engine.
func New(sev Severity, kind Kind, args ...any) *Diagnostic {
	return &Diagnostic{Kind: kind, Severity: sev, Args: args}
}

// WithOrigin attaches file/section/offset context and returns d for
// chaining.
func (d *Diagnostic) WithOrigin(file, section string, offset uint64) *Diagnostic {
	d.File, d.Section, d.Offset = file, section, offset
	return d
}

// WithFunc attaches the enclosing function name, derived by the caller
// from a symbol table scan, and returns d for chaining.
func (d *Diagnostic) WithFunc(fn string) *Diagnostic {
	d.Func = fn
	return d
}

// Engine collects diagnostics for one link, tracks the module-level
// failure flag, and forwards everything to a structured logger. All
// methods are safe for concurrent use: relocation scanning runs on a
// worker pool (5. CONCURRENCY & RESOURCE MODEL) and diagnostics may be
// raised from any of those goroutines.
type Engine struct {
	log *slog.Logger

	mu       sync.Mutex
	failed   bool
	warnOnce bool
	seen     map[string]bool // dedup key -> true, used under --warn-once
	all      []*Diagnostic
}

// NewEngine creates an Engine that forwards diagnostics to log. Pass a
// logger built with slogmulti.Fanout to send diagnostics to several
// sinks at once (e.g. a human-readable console handler plus a
// machine-readable trace file for --trace-symbol/--trace-reloc).
func NewEngine(log *slog.Logger, warnOnce bool) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{log: log, warnOnce: warnOnce, seen: make(map[string]bool)}
}

// Emit records d, logs it, and — for Fatal and Error severities — sets
// the module failure flag so the driver aborts before writing output.
// A Fatal diagnostic additionally short-circuits the caller's current
// phase; Emit itself doesn't unwind anything, so callers of a fatal
// emit must return immediately afterward.
func (e *Engine) Emit(d *Diagnostic) {
	if e.warnOnce && d.Severity == Warning {
		key := d.Error()
		e.mu.Lock()
		if e.seen[key] {
			e.mu.Unlock()
			return
		}
		e.seen[key] = true
		e.mu.Unlock()
	}

	e.mu.Lock()
	e.all = append(e.all, d)
	if d.Severity == Error || d.Severity == Fatal {
		e.failed = true
	}
	e.mu.Unlock()

	attrs := []any{slog.String("kind", d.Kind.String())}
	if d.File != "" {
		attrs = append(attrs, slog.String("file", d.File))
	}
	if d.Section != "" {
		attrs = append(attrs, slog.String("section", d.Section), slog.Uint64("offset", d.Offset))
	}
	if d.Func != "" {
		attrs = append(attrs, slog.String("func", d.Func))
	}
	for i, a := range d.Args {
		attrs = append(attrs, slog.Any(fmt.Sprintf("arg%d", i), a))
	}
	switch d.Severity {
	case Info:
		e.log.Info(d.Kind.String(), attrs...)
	case Warning:
		e.log.Warn(d.Kind.String(), attrs...)
	default:
		e.log.Error(d.Kind.String(), attrs...)
	}
}

// Tracef emits an Info-severity trace line, used by --trace-symbol and
// --trace-reloc, which must not affect the failure flag.
func (e *Engine) Tracef(kind Kind, format string, args ...any) {
	e.Emit(New(Info, kind, fmt.Sprintf(format, args...)))
}

// Failed reports whether any Error or Fatal diagnostic has been
// emitted. All phases poll this between units of work and abort early
// once it is set (5. CONCURRENCY & RESOURCE MODEL: cancellation).
func (e *Engine) Failed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failed
}

// All returns every diagnostic emitted so far, in emission order.
func (e *Engine) All() []*Diagnostic {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Diagnostic, len(e.all))
	copy(out, e.all)
	return out
}
