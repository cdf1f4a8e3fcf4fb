package wavelet

// complexTap is one coefficient of the complex Daubechies-3 analysis
// filter bank, as specified in J.M. Lina's "Image Processing with Complex
// Daubechies Wavelets" (1997): 6 taps, each itself a complex number.
type complexTap struct {
	Re, Im float64
}

// lowFilter and highFilter are the published complex Daubechies-3
// coefficient pairs (the program's forward/inverse kernels use them
// verbatim for both the CPU and GPU backends). Being genuinely
// complex-valued — not a real filter applied twice to independent real and
// imaginary channels — is what gives the transform a shift-invariant
// coefficient magnitude, which the merge stage's max-magnitude fusion
// depends on.
var lowFilter = [6]complexTap{
	{Re: -0.0662912607, Im: -0.0855816496},
	{Re: 0.1104854346, Im: -0.0855816496},
	{Re: 0.6629126074, Im: 0.1711632992},
	{Re: 0.6629126074, Im: 0.1711632992},
	{Re: 0.1104854346, Im: -0.0855816496},
	{Re: -0.0662912607, Im: -0.0855816496},
}

var highFilter = [6]complexTap{
	{Re: -0.0662912607, Im: 0.0855816496},
	{Re: -0.1104854346, Im: -0.0855816496},
	{Re: 0.6629126074, Im: -0.1711632992},
	{Re: -0.6629126074, Im: 0.1711632992},
	{Re: 0.1104854346, Im: 0.0855816496},
	{Re: 0.0662912607, Im: -0.0855816496},
}
