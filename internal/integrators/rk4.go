package integrators

// Derivative writes dy/dt at (t, y) into dy. dy has the length of y and is
// overwritten, never read.
type Derivative func(t float64, y, dy []complex128) error

// RK4 is the classical fourth-order Runge-Kutta stepper over flat complex
// state. A stepper reuses its stage buffers between calls and must not be
// shared across goroutines.
type RK4 struct {
	k1, k2, k3, k4 []complex128
	scratch        []complex128
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make([]complex128, n)
		r.k2 = make([]complex128, n)
		r.k3 = make([]complex128, n)
		r.k4 = make([]complex128, n)
		r.scratch = make([]complex128, n)
	}
}

// Step returns y advanced by dt. y is left untouched.
func (r *RK4) Step(f Derivative, y []complex128, t, dt float64) ([]complex128, error) {
	n := len(y)
	r.ensureScratch(n)
	h := complex(dt, 0)
	half := complex(dt*0.5, 0)

	if err := f(t, y, r.k1); err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		r.scratch[i] = y[i] + half*r.k1[i]
	}
	if err := f(t+dt*0.5, r.scratch, r.k2); err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		r.scratch[i] = y[i] + half*r.k2[i]
	}
	if err := f(t+dt*0.5, r.scratch, r.k3); err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		r.scratch[i] = y[i] + h*r.k3[i]
	}
	if err := f(t+dt, r.scratch, r.k4); err != nil {
		return nil, err
	}

	result := make([]complex128, n)
	dt6 := h / 6
	for i := 0; i < n; i++ {
		result[i] = y[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}

	return result, nil
}
