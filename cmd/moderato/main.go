// Command moderato runs the predictor-selection and treatment-moderation
// pipeline: it loads a YAML configuration declaring the dataset schema and
// pipeline options, reads the trial CSV, runs every stage, and writes the
// reporting artifacts as JSON.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/moderato-ml/moderato/dataset"
	"github.com/moderato-ml/moderato/pipeline"
	"github.com/moderato-ml/moderato/pkg/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "moderato",
		Short:         "Predictor selection and treatment moderation for trial data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		configPath string
		dataPath   string
		outPath    string
		logLevel   string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline on a trial dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Setup(logLevel, os.Stderr)

			fc, err := loadFileConfig(configPath)
			if err != nil {
				return err
			}
			schema, err := fc.Schema.toSchema()
			if err != nil {
				return err
			}

			f, err := os.Open(dataPath)
			if err != nil {
				return err
			}
			defer f.Close()
			ds, err := dataset.ReadCSV(f, schema)
			if err != nil {
				return err
			}

			p, err := pipeline.New(fc.Pipeline)
			if err != nil {
				return err
			}
			res, err := p.Run(ds)
			if err != nil {
				return err
			}

			out := os.Stdout
			if outPath != "" {
				out, err = os.Create(outPath)
				if err != nil {
					return err
				}
				defer out.Close()
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "moderato.yaml", "YAML configuration file")
	cmd.Flags().StringVar(&dataPath, "data", "", "trial dataset CSV")
	cmd.Flags().StringVar(&outPath, "out", "", "JSON artifact output path (default stdout)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

// fileConfig is the on-disk YAML layout: the pipeline options plus the
// dataset schema declaration.
type fileConfig struct {
	Pipeline pipeline.Config `yaml:",inline"`
	Schema   schemaConfig    `yaml:"schema"`
}

type schemaConfig struct {
	Outcome    string        `yaml:"outcome"`
	Treatments []string      `yaml:"treatments"`
	Baseline   []fieldConfig `yaml:"baseline"`
}

type fieldConfig struct {
	Name   string    `yaml:"name"`
	Type   string    `yaml:"type"` // continuous, binary, ordinal
	Levels []float64 `yaml:"levels,omitempty"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	fc := &fileConfig{Pipeline: pipeline.DefaultConfig()}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, fc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return fc, nil
}

func (sc schemaConfig) toSchema() (dataset.Schema, error) {
	var s dataset.Schema
	if len(sc.Treatments) != 2 {
		return s, fmt.Errorf("schema: exactly two treatment fields required, got %d", len(sc.Treatments))
	}
	s.Outcome = dataset.Field{Name: sc.Outcome, Type: dataset.Binary}
	s.Treatments = [2]dataset.Field{
		{Name: sc.Treatments[0], Type: dataset.Binary},
		{Name: sc.Treatments[1], Type: dataset.Binary},
	}
	for _, f := range sc.Baseline {
		var ft dataset.FieldType
		switch f.Type {
		case "continuous":
			ft = dataset.Continuous
		case "binary":
			ft = dataset.Binary
		case "ordinal":
			ft = dataset.Ordinal
		default:
			return s, fmt.Errorf("schema: field %q has unknown type %q", f.Name, f.Type)
		}
		s.Baseline = append(s.Baseline, dataset.Field{Name: f.Name, Type: ft, Levels: f.Levels})
	}
	return s, s.Validate()
}
