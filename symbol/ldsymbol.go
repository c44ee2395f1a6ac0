package symbol

import "github.com/aclements/go-ld/ir"

// LDSymbol is one concrete symbol occurrence (3. DATA MODEL). Many
// LDSymbols may share a ResolveInfo after override; only the one
// pointed to by ResolveInfo.OutSymbol is "winning" and gets emitted.
type LDSymbol struct {
	Info ir.SymID // index into the owning NamePool's globals, or NoSym for locals
	Ref  ir.FragRef

	// SectionIndex and SymbolIndex are the raw positions of this symbol
	// within its input file's section/symbol tables, kept for producing
	// .symtab entries and for local-symbol index stability across
	// phases (5. CONCURRENCY & RESOURCE MODEL: "within one input file,
	// symbol additions preserve source order").
	SectionIndex int
	SymbolIndex  int

	ShouldIgnore  bool // dropped by GC or /DISCARD/, still present for diagnostics
	ScriptDefined bool // defined by a linker-script assignment, not an input symbol
}
