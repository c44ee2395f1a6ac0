package symbol

import "fmt"

// Result reports what happened when a candidate symbol was resolved
// against an existing ResolveInfo.
type Result int

const (
	// NoOverride means old won and new contributes nothing further
	// (other than, possibly, a tightened visibility — see Resolve).
	NoOverride Result = iota
	// Override means new replaces old's attributes (old keeps its
	// identity/address in the NamePool, but its fields are overwritten
	// from new — mirrors ResolveInfo::override in the original linker).
	Override
	// Collision is a fatal multiple-definition: both old and new are
	// regular, non-weak defines.
	Collision
)

// candidate is the minimal view of a symbol the resolver needs; both
// the existing ResolveInfo and the newly-seen symbol are expressed
// this way so the rules in Resolve read the same for either side.
type candidate struct {
	typ     Type
	desc    Desc
	bind    Binding
	vis     Visibility
	size    uint64
	value   uint64
	isDyn   bool
	bitcode bool
	ignored bool // native symbol GC'd/ignored prior to LTO override, rule 3
}

func view(r *ResolveInfo) candidate {
	return candidate{
		typ: r.typ, desc: r.desc, bind: r.bind, vis: r.vis,
		size: r.Size, value: r.Value, isDyn: r.IsDyn(), bitcode: r.InBitcode(),
	}
}

// Resolve applies the override rules of 4.B to decide whether the
// incoming candidate (described by the new* parameters) overrides old,
// and mutates old in place when it does. isPostLTO selects rule 3 (a
// post-LTO native definition always supersedes a pre-LTO bitcode
// symbol, even when the ordinary attribute lattice wouldn't otherwise
// permit the override — an explicit, deliberately-preserved behavior
// from the reference implementation; see DESIGN.md's Open Questions
// decisions).
func Resolve(old *ResolveInfo, newTyp Type, newDesc Desc, newBind Binding,
	newVis Visibility, newSize, newValue uint64, newIsDyn, newBitcode bool,
	isPostLTO bool) (Result, error) {

	n := candidate{newTyp, newDesc, newBind, newVis, newSize, newValue, newIsDyn, newBitcode, false}
	o := view(old)

	// Rule 1: TLS-mismatch check.
	oTLS := o.typ == ThreadLocal
	nTLS := n.typ == ThreadLocal
	if oTLS != nTLS && (o.desc != Undef || n.desc != Undef) {
		return Collision, fmt.Errorf("tls_non_tls_symbol_mismatch: %s", old.Name)
	}

	// Tighten visibility regardless of who wins (rule 8).
	if n.vis > old.vis {
		old.SetVisibility(n.vis)
	}

	// Rule 3: bitcode-vs-native at post-LTO time, or native-but-GC'd
	// vs native.
	if isPostLTO && o.bitcode && !n.bitcode {
		overrideAll(old, n)
		old.SetInBitcode(false)
		return Override, nil
	}

	// Rule 4/6/5: apply the precedence lattice.
	oRank := rank(o)
	nRank := rank(n)

	switch {
	case nRank < oRank:
		if o.desc == Undef && n.desc == Define && n.isDyn {
			// Rule 7: a dyn-define satisfying an undef reference marks
			// the dyn input "needed" and records its origin, but does
			// not take the dyn symbol's (load-time-only) value.
			old.typ, old.bind = n.typ, n.bind
			old.desc = n.desc
			old.Size = n.size
			old.SetDyn(true)
			old.SetNeeded(true)
			return Override, nil
		}
		// New is strictly stronger: override.
		overrideAll(old, n)
		return Override, nil

	case nRank > oRank:
		// Old is stronger: no override.
		return NoOverride, nil

	default:
		return resolveSameRank(old, o, n)
	}
}

// rank orders the precedence classes named in 4.B:
//
//	regular-define(0) > common(1) > weak-define(2) > dyn-define(3) >
//	undef-weak(4) > undef(5)
//
// Lower rank wins.
func rank(c candidate) int {
	switch {
	case c.desc == Define && !c.isDyn && c.bind != Weak:
		return 0
	case c.desc == Common:
		return 1
	case c.desc == Define && c.bind == Weak && !c.isDyn:
		return 2
	case c.desc == Define && c.isDyn:
		return 3
	case c.desc == Undef && c.bind == Weak:
		return 4
	default: // Undef
		return 5
	}
}

func resolveSameRank(old *ResolveInfo, o, n candidate) (Result, error) {
	switch o.desc {
	case Define:
		if o.bind != Weak && n.bind != Weak && !o.isDyn && !n.isDyn {
			// Rule: regular-define vs regular-define is a collision.
			return Collision, fmt.Errorf("multiple_definition: %s", old.Name)
		}
		if o.bind == Weak && n.bind == Weak {
			// Rule 6: two weak defines, first wins.
			return NoOverride, nil
		}
		// A dyn-define losing to another dyn-define: first one wins,
		// matching "two weak-defines: first wins" symmetry for the
		// dyn-define rank class.
		return NoOverride, nil

	case Common:
		// Rule 5: keep the larger size and stricter alignment. We don't
		// model alignment explicitly at this layer (it lives on the
		// fragment that ultimately backs the common symbol), so we
		// only arbitrate size here; the fragment graph reconciles
		// alignment when it allocates the backing .bss fragment.
		if n.size > o.size {
			overrideAll(old, n)
			return Override, nil
		}
		return NoOverride, nil

	case Undef:
		// Undef vs undef (or undef-weak vs undef-weak): nothing to do.
		// A mixed undef/undef-weak pair never gets here: rank() puts
		// undef-weak above plain undef, so that pair is decided there.
		return NoOverride, nil

	default:
		return NoOverride, nil
	}
}

// overrideAll copies every attribute of n onto old, leaving old's
// identity (its place in the NamePool, its Alias, OutSymbol, and
// ResolvedOrigin bookkeeping) for the caller to update, since those
// require the InputID/LDSymID of the new definition which this
// function doesn't receive.
func overrideAll(old *ResolveInfo, n candidate) {
	vis := old.vis
	old.typ = n.typ
	old.desc = n.desc
	old.bind = n.bind
	old.Size = n.size
	old.Value = n.value
	old.SetDyn(n.isDyn)
	if n.vis > vis {
		vis = n.vis
	}
	old.vis = vis
}
