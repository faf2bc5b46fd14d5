package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/qclab/internal/dynamo"
)

const (
	metadataFile = "metadata.json"
	seedsFile    = "seeds.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID        string             `json:"id"`
	Model     string             `json:"model"`
	Algorithm string             `json:"algorithm"`
	Timestamp time.Time          `json:"timestamp"`
	NumTrajs  int                `json:"num_trajs"`
	BatchSize int                `json:"batch_size"`
	Dt        float64            `json:"dt"`
	Tmax      float64            `json:"tmax"`
	DtOutput  float64            `json:"dt_output"`
	Driver    string             `json:"driver"`
	Workers   int                `json:"workers,omitempty"`
	Elapsed   float64            `json:"elapsed_seconds"`
	Constants map[string]any     `json:"constants,omitempty"`
	Variables []string           `json:"variables"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// MetadataFor fills the run description from a simulation.
func MetadataFor(sim *dynamo.Simulation) RunMetadata {
	meta := RunMetadata{
		NumTrajs:  sim.NumTrajs(),
		BatchSize: sim.BatchSize(),
		Dt:        sim.Dt(),
	}
	meta.Tmax, _ = sim.Settings.Float("tmax")
	meta.DtOutput, _ = sim.Settings.Float("dt_output")
	if sim.Model != nil {
		meta.Model = sim.Model.Name
		meta.Constants = scalarConstants(sim.Model.Constants.Snapshot())
	}
	if sim.Algorithm != nil {
		meta.Algorithm = sim.Algorithm.Name
	}
	return meta
}

// scalarConstants keeps the primary inputs a reader can reproduce a run from;
// derived arrays are dropped.
func scalarConstants(all map[string]any) map[string]any {
	out := make(map[string]any, len(all))
	for k, v := range all {
		switch v.(type) {
		case int, int64, float64, string, bool:
			out[k] = v
		}
	}
	return out
}

// Save writes metadata.json, seeds.csv and one CSV of ensemble means per
// output variable into a new run directory, returning its ID.
func (s *Store) Save(meta RunMetadata, data *dynamo.Data) (string, error) {
	runID := fmt.Sprintf("%s_%s", meta.Model, uuid.NewString()[:8])
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta.ID = runID
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	meta.Variables = data.Names()

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeSeeds(filepath.Join(runDir, seedsFile), data.Seeds()); err != nil {
		return "", err
	}
	for _, name := range meta.Variables {
		if err := writeMean(filepath.Join(runDir, name+".csv"), name, data); err != nil {
			return "", fmt.Errorf("write %s: %w", name, err)
		}
	}
	return runID, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeSeeds(path string, seeds []int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"seed"}); err != nil {
		return err
	}
	for _, sd := range seeds {
		if err := w.Write([]string{strconv.Itoa(sd)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeMean(path, name string, data *dynamo.Data) error {
	series, _ := data.Series(name)
	mean, err := data.Mean(name)
	if err != nil {
		return err
	}
	elem := series.Elem()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"time"}
	for j := 0; j < elem; j++ {
		if series.Real {
			header = append(header, fmt.Sprintf("%s_%d", name, j))
		} else {
			header = append(header, fmt.Sprintf("%s_%d_re", name, j), fmt.Sprintf("%s_%d_im", name, j))
		}
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for t, tm := range data.Times() {
		row := []string{strconv.FormatFloat(tm, 'f', 6, 64)}
		for _, v := range mean[t*elem : (t+1)*elem] {
			row = append(row, strconv.FormatFloat(real(v), 'g', 10, 64))
			if !series.Real {
				row = append(row, strconv.FormatFloat(imag(v), 'g', 10, 64))
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

func (s *Store) LoadSeeds(runID string) ([]int, error) {
	records, err := readCSV(filepath.Join(s.baseDir, runID, seedsFile))
	if err != nil {
		return nil, err
	}
	seeds := make([]int, 0, len(records))
	for i, rec := range records {
		if len(rec) == 0 {
			continue
		}
		sd, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", seedsFile, i+2, err)
		}
		seeds = append(seeds, sd)
	}
	return seeds, nil
}

// Series is one saved mean: a column per element, a row per output time.
type Series struct {
	Columns []string
	Times   []float64
	Values  [][]float64
}

// Column returns the values of one named column over time.
func (s *Series) Column(name string) ([]float64, bool) {
	for j, c := range s.Columns {
		if c == name {
			out := make([]float64, len(s.Values))
			for i, row := range s.Values {
				out[i] = row[j]
			}
			return out, true
		}
	}
	return nil, false
}

func (s *Store) LoadSeries(runID, name string) (*Series, error) {
	if strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid variable name %q", name)
	}
	path := filepath.Join(s.baseDir, runID, name+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	out := &Series{
		Columns: append([]string(nil), header[1:]...),
		Times:   make([]float64, 0, len(records)),
		Values:  make([][]float64, 0, len(records)),
	}
	for i, rec := range records {
		vals := make([]float64, len(rec))
		for j, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
			}
			vals[j] = v
		}
		out.Times = append(out.Times, vals[0])
		out.Values = append(out.Values, vals[1:])
	}
	return out, nil
}

// readCSV returns data records, skipping the header.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 1 {
		return nil, nil
	}
	return records[1:], nil
}
