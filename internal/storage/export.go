package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/qclab/internal/dynamo"
)

type ExportData struct {
	Run     RunMetadata                  `json:"run"`
	Seeds   []int                        `json:"seeds"`
	Times   []float64                    `json:"times"`
	Shapes  map[string][]int             `json:"shapes"`
	Means   map[string][]float64         `json:"means"`
	Imag    map[string][]float64         `json:"imag,omitempty"`
	Samples map[string]map[int][]float64 `json:"samples,omitempty"`
}

// NewExport collects ensemble means, and the real parts of the first
// samples trajectories, of every output variable.
func NewExport(meta RunMetadata, data *dynamo.Data, samples int) (*ExportData, error) {
	meta.Variables = data.Names()
	out := &ExportData{
		Run:    meta,
		Seeds:  data.Seeds(),
		Times:  data.Times(),
		Shapes: make(map[string][]int),
		Means:  make(map[string][]float64),
	}
	for _, name := range meta.Variables {
		series, _ := data.Series(name)
		mean, err := data.Mean(name)
		if err != nil {
			return nil, err
		}
		out.Shapes[name] = append([]int(nil), series.Shape...)
		re := make([]float64, len(mean))
		im := make([]float64, len(mean))
		for i, v := range mean {
			re[i], im[i] = real(v), imag(v)
		}
		out.Means[name] = re
		if !series.Real {
			if out.Imag == nil {
				out.Imag = make(map[string][]float64)
			}
			out.Imag[name] = im
		}

		for i, seed := range out.Seeds {
			if i >= samples {
				break
			}
			row, _ := data.Trajectory(name, seed)
			vals := make([]float64, len(row))
			for j, v := range row {
				vals[j] = real(v)
			}
			if out.Samples == nil {
				out.Samples = make(map[string]map[int][]float64)
			}
			if out.Samples[name] == nil {
				out.Samples[name] = make(map[int][]float64)
			}
			out.Samples[name][seed] = vals
		}
	}
	return out, nil
}

func ExportJSON(path string, meta RunMetadata, data *dynamo.Data, samples int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, meta, data, samples)
}

func WriteJSON(w io.Writer, meta RunMetadata, data *dynamo.Data, samples int) error {
	export, err := NewExport(meta, data, samples)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
