// Package ingredients implements Hamiltonian terms shared between models.
//
// Classical coordinates are carried as complex z = x + iy with
//
//	x = sqrt(h m / 2) q
//	y = p / sqrt(2 h m)
//
// where h is the per-coordinate weight and m the mass. Functions read their
// constants from the model and return batch-shaped arrays.
//
// Constants consumed:
//
//	classical_coordinate_weight     []float64, length num_classical_coordinates
//	classical_coordinate_mass       []float64
//	harmonic_oscillator_frequency   []float64
//	diagonal_linear_coupling        []float64, num_quantum_states x num_classical_coordinates
//	kBT                             float64
package ingredients
