package tasks

const (
	FieldZ               = "z"
	FieldWfDb            = "wf_db"
	FieldHQuantum        = "h_quantum"
	FieldDmDb            = "dm_db"
	FieldQuantumEnergy   = "quantum_energy"
	FieldClassicalEnergy = "classical_energy"
	FieldSeed            = "seed"

	ScalarNormFactor = "norm_factor"
)
