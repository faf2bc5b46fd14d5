// Package tasks is the library of recipe steps algorithms are assembled
// from. Every exported function in this package is a dynamo.StepFunc or
// returns one.
//
// State fields written here:
//
//	z                 classical coordinates, batch x nc
//	wf_db             diabatic wavefunction, batch x n
//	h_quantum         total quantum Hamiltonian at z, batch x n x n
//	dm_db             diabatic density matrix, batch x n x n
//	quantum_energy    <wf|h_quantum|wf>, batch
//	classical_energy  H_c(z), batch
//
// Parameter fields: seed (batch) and the norm_factor scalar.
package tasks
