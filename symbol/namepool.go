package symbol

import (
	"github.com/aclements/go-ld/diag"
	"github.com/aclements/go-ld/ir"
)

// NamePool maps global names to ResolveInfo, keeps locals by
// definition order, and owns the arena of LDSymbol occurrences (3.
// DATA MODEL). There is exactly one NamePool per link.
type NamePool struct {
	diag *diag.Engine

	names   map[string]ir.SymID
	globals []*ResolveInfo
	locals  []*ResolveInfo // each local gets its own fresh ResolveInfo

	// candidates records every LDSymbol seen for a given global name,
	// across every input, for resolution reports and --trace-symbol.
	candidates map[string][]ir.LDSymID

	syms []LDSymbol // arena of all LDSymbol occurrences, indexed by LDSymID

	trace map[string]bool // names passed to --trace-symbol
}

// NewNamePool creates an empty NamePool that reports diagnostics (and
// --trace-symbol activity) through e.
func NewNamePool(e *diag.Engine) *NamePool {
	return &NamePool{
		diag:       e,
		names:      make(map[string]ir.SymID),
		candidates: make(map[string][]ir.LDSymID),
		trace:      make(map[string]bool),
	}
}

// Trace marks name for --trace-symbol reporting: every add and every
// override involving it emits a diagnostic.
func (p *NamePool) Trace(name string) { p.trace[name] = true }

// NewLDSymbol appends a fresh LDSymbol to the arena and returns its ID.
func (p *NamePool) NewLDSymbol(sym LDSymbol) ir.LDSymID {
	id := ir.LDSymID(len(p.syms))
	p.syms = append(p.syms, sym)
	return id
}

// LDSymbol returns the LDSymbol for id.
func (p *NamePool) LDSymbol(id ir.LDSymID) *LDSymbol {
	return &p.syms[id]
}

// Info returns the ResolveInfo for id, or nil for ir.NoSym.
func (p *NamePool) Info(id ir.SymID) *ResolveInfo {
	if id == ir.NoSym || int(id) >= len(p.globals) {
		return nil
	}
	return p.globals[id]
}

// FindInfo looks up a global by name, returning (id, true) if present.
func (p *NamePool) FindInfo(name string) (ir.SymID, bool) {
	id, ok := p.names[name]
	return id, ok
}

// Globals returns every global ResolveInfo, indexed by ir.SymID.
func (p *NamePool) Globals() []*ResolveInfo { return p.globals }

// Locals returns every local ResolveInfo, in definition order.
func (p *NamePool) Locals() []*ResolveInfo { return p.locals }

// InsertLocal appends a local symbol. Local symbols bypass the global
// pool entirely and always get a fresh ResolveInfo (4.B: "Local
// symbols bypass the global pool").
func (p *NamePool) InsertLocal(name string, typ Type, size, value uint64, origin ir.InputID) *ResolveInfo {
	ri := &ResolveInfo{
		Name: name, Size: size, Value: value,
		typ: typ, desc: Define, bind: Local,
		ResolvedOrigin: origin,
	}
	p.locals = append(p.locals, ri)
	return ri
}

// InsertGlobalParams bundles the fields InsertGlobal needs; it mirrors
// NamePool::insertSymbol's long parameter list in the original linker.
type InsertGlobalParams struct {
	Name       string
	Type       Type
	Desc       Desc
	Binding    Binding
	Visibility Visibility
	Size       uint64
	Value      uint64
	IsDyn      bool
	IsBitcode  bool
	IsPostLTO  bool
	Origin     ir.InputID
}

// InsertGlobal resolves a non-local symbol against the NamePool,
// creating a new ResolveInfo on first sight or applying the 4.B
// override lattice against the existing one. It returns the winning
// ResolveInfo's ID and the Result of the resolution.
func (p *NamePool) InsertGlobal(params InsertGlobalParams, ldSym ir.LDSymID) (ir.SymID, Result, error) {
	existing, ok := p.names[params.Name]

	traced := p.trace[params.Name]

	if !ok {
		// Rule 2: no prior definition, new always wins.
		ri := &ResolveInfo{
			Name: params.Name, Size: params.Size, Value: params.Value,
			typ: params.Type, desc: params.Desc, bind: params.Binding, vis: params.Visibility,
			ResolvedOrigin: params.Origin,
		}
		ri.SetDyn(params.IsDyn)
		ri.SetInBitcode(params.IsBitcode)
		id := ir.SymID(len(p.globals))
		p.globals = append(p.globals, ri)
		p.names[params.Name] = id
		ri.OutSymbol = ldSym
		p.recordCandidate(params.Name, ldSym)
		if traced {
			p.diag.Tracef(diag.KindTraceSymbol, "%s: first definition from input #%d (%s)", params.Name, params.Origin, ri)
		}
		return id, NoOverride, nil
	}

	ri := p.globals[existing]
	result, err := Resolve(ri, params.Type, params.Desc, params.Binding, params.Visibility,
		params.Size, params.Value, params.IsDyn, params.IsBitcode, params.IsPostLTO)
	p.recordCandidate(params.Name, ldSym)

	if err != nil {
		return existing, result, err
	}
	if result == Override {
		ri.ResolvedOrigin = params.Origin
		ri.OutSymbol = ldSym
	}
	if traced {
		verb := "kept"
		if result == Override {
			verb = "overrode with"
		}
		p.diag.Tracef(diag.KindTraceSymbol, "%s: %s definition from input #%d (%s)", params.Name, verb, params.Origin, ri)
	}
	return existing, result, nil
}

func (p *NamePool) recordCandidate(name string, ldSym ir.LDSymID) {
	p.candidates[name] = append(p.candidates[name], ldSym)
}

// Candidates returns every LDSymbol ever seen for name, in the order
// they were inserted, for resolution-report diagnostics.
func (p *NamePool) Candidates(name string) []ir.LDSymID {
	return p.candidates[name]
}
