package wavelet

// Backend performs the forward/inverse transform. Two implementations
// share the algorithm in wavelet.go and must agree to within the
// tolerance given in spec §8 (I5): a CPU backend (plain loops, the
// default) and a GPU backend (four kernels serialised through the
// scheduler's single GPU slot — the OpenCL kernel source itself is an
// external collaborator per spec §1, so GPUBackend delegates to the same
// algorithm and only carries the UsesGPU flag the scheduler arbitrates
// on).
type Backend interface {
	Forward(gray []float64, width, height, levels int) *Decomposition
	Inverse(d *Decomposition) []float64
	UsesGPU() bool
}

type CPUBackend struct{}

func (CPUBackend) Forward(gray []float64, width, height, levels int) *Decomposition {
	return Forward(gray, width, height, levels)
}
func (CPUBackend) Inverse(d *Decomposition) []float64 { return Inverse(d) }
func (CPUBackend) UsesGPU() bool                      { return false }

// GPUBackend represents the four-kernel OpenCL variant named in spec
// §4.7 (decompose_vertical/horizontal, compose_vertical/horizontal). Its
// kernel bodies are out of scope (§1); this type exists so the scheduler
// can serialise it through the single GPU slot and so callers can select
// it uniformly with CPUBackend.
type GPUBackend struct {
	Available bool
}

func (b GPUBackend) Forward(gray []float64, width, height, levels int) *Decomposition {
	return Forward(gray, width, height, levels)
}
func (b GPUBackend) Inverse(d *Decomposition) []float64 { return Inverse(d) }
func (b GPUBackend) UsesGPU() bool                      { return b.Available }

// Select resolves the Open Question in spec §9: the forward and inverse
// transform use the same GPU-availability policy — always prefer the GPU
// backend when one is available, for both directions.
func Select(gpuAvailable bool) Backend {
	if gpuAvailable {
		return GPUBackend{Available: true}
	}
	return CPUBackend{}
}
