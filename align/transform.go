// Package align implements the Alignment stage (spec C6): contrast and
// white-balance matching, ECC-based affine registration, transform
// composition, and cubic-interpolation inverse warping.
package align

// Transform is a 2x3 affine map: [x'] = [A00 A01] [x]   [Tx]
//                                 [y']   [A10 A11] [y] + [Ty]
type Transform struct {
	A00, A01, A10, A11 float64
	Tx, Ty             float64
}

func Identity() Transform {
	return Transform{A00: 1, A11: 1}
}

// Apply maps (x,y) forward through the transform.
func (t Transform) Apply(x, y float64) (float64, float64) {
	return t.A00*x + t.A01*y + t.Tx, t.A10*x + t.A11*y + t.Ty
}

// Invert returns the inverse affine map, used to inverse-warp a source
// image into the reference's frame.
func (t Transform) Invert() Transform {
	det := t.A00*t.A11 - t.A01*t.A10
	if det == 0 {
		return Identity()
	}
	inv00 := t.A11 / det
	inv01 := -t.A01 / det
	inv10 := -t.A10 / det
	inv11 := t.A00 / det
	itx := -(inv00*t.Tx + inv01*t.Ty)
	ity := -(inv10*t.Tx + inv11*t.Ty)
	return Transform{A00: inv00, A01: inv01, A10: inv10, A11: inv11, Tx: itx, Ty: ity}
}

// Compose returns outer ∘ inner: applying the result is the same as
// applying inner first, then outer. Spec §4.6 step 4 uses this to
// reference a neighbour-chained local alignment back to the global
// origin: `stacked ∘ local`.
func Compose(outer, inner Transform) Transform {
	return Transform{
		A00: outer.A00*inner.A00 + outer.A01*inner.A10,
		A01: outer.A00*inner.A01 + outer.A01*inner.A11,
		A10: outer.A10*inner.A00 + outer.A11*inner.A10,
		A11: outer.A10*inner.A01 + outer.A11*inner.A11,
		Tx:  outer.A00*inner.Tx + outer.A01*inner.Ty + outer.Tx,
		Ty:  outer.A10*inner.Tx + outer.A11*inner.Ty + outer.Ty,
	}
}

func (t Transform) IsIdentity() bool {
	return t.A00 == 1 && t.A01 == 0 && t.A10 == 0 && t.A11 == 1 && t.Tx == 0 && t.Ty == 0
}
