package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/odesim/internal/ivp"
)

type ExportData struct {
	Problem   string      `json:"problem"`
	Family    string      `json:"family"`
	Corrector string      `json:"corrector"`
	Duration  float64     `json:"duration"`
	Steps     int         `json:"steps"`
	Times     []float64   `json:"times"`
	States    [][]float64 `json:"states"`
	Stats     ivp.Stats   `json:"stats"`
}

func ExportJSONTo(w io.Writer, meta RunMetadata, result *ivp.Result) error {
	data := ExportData{
		Problem:   meta.Problem,
		Family:    meta.Family,
		Corrector: meta.Corrector,
		Duration:  meta.Duration,
		Steps:     len(result.Times),
		Times:     result.Times,
		States:    result.States,
		Stats:     result.Stats,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func ExportJSON(path string, meta RunMetadata, result *ivp.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return ExportJSONTo(file, meta, result)
}

func ExportJSONStdout(meta RunMetadata, result *ivp.Result) error {
	return ExportJSONTo(os.Stdout, meta, result)
}
