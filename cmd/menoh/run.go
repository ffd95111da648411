package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gomithril/menoh/codec"
	"github.com/gomithril/menoh/inference"
	"github.com/gomithril/menoh/metrics"
	"github.com/gomithril/menoh/native"
	"github.com/gomithril/menoh/onnx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type runOptions struct {
	config        string
	model         string
	backend       string
	backendConfig string
	outputs       []string
	inputs        []string
	texts         []string
	spm           string
	mask          string
	external      bool
	repeat        int
	topK          int
	labels        string
	showMetrics   bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build a model and run it once",
	Long: `Build the model described by --config and the flags, fill its inputs
from JSON files or text, run it and print every output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.OutOrStdout(), &runOpts)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.config, "config", "c", "", "pipeline config file (.yaml, .json, .toml)")
	f.StringVarP(&runOpts.model, "model", "m", "", "ONNX model file")
	f.StringVar(&runOpts.backend, "backend", "", "backend name")
	f.StringVar(&runOpts.backendConfig, "backend-config", "", "backend config JSON")
	f.StringSliceVarP(&runOpts.outputs, "output", "o", nil, "output variable names")
	f.StringArrayVarP(&runOpts.inputs, "input", "i", nil, "name=file.json with a JSON array of values")
	f.StringArrayVar(&runOpts.texts, "text", nil, "name=text to tokenize into an integer input")
	f.StringVar(&runOpts.spm, "spm", "", "SentencePiece model for --text, defaults to MODELPATH")
	f.StringVar(&runOpts.mask, "mask", "", "input receiving the attention mask of --text")
	f.BoolVar(&runOpts.external, "external-inputs", false, "allocate input buffers in Go and attach them")
	f.IntVar(&runOpts.repeat, "repeat", 1, "number of runs")
	f.IntVar(&runOpts.topK, "top-k", 0, "print the k best scores per batch row instead of raw values")
	f.StringVar(&runOpts.labels, "labels", "", "file with one label per line for --top-k")
	f.BoolVar(&runOpts.showMetrics, "metrics", false, "print engine metrics after the runs")
	rootCmd.AddCommand(runCmd)
}

func loadConfig(o *runOptions) (*inference.Config, error) {
	cfg := inference.DefaultConfig()
	if o.config != "" {
		var err error
		if cfg, err = inference.LoadConfig(o.config); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	if o.model != "" {
		cfg.ModelPath = o.model
	}
	if o.backend != "" {
		cfg.Backend = o.backend
	}
	if o.backendConfig != "" {
		cfg.BackendConfig = o.backendConfig
	}
	if len(o.outputs) > 0 {
		cfg.Outputs = o.outputs
	}
	if o.external {
		cfg.ExternalInputs = true
	}
	return cfg, nil
}

func run(w io.Writer, o *runOptions) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	engine, err := onnx.NewEngine(os.Getenv("ONNX_RUNTIME"))
	if err != nil {
		return err
	}
	defer engine.Close()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	svc, err := inference.NewService(native.Instrument(engine, collector), cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	inputs, err := readInputs(svc.Model(), o)
	if err != nil {
		return err
	}

	var results map[string]*inference.Result
	for i := 0; i < max(o.repeat, 1); i++ {
		if results, err = svc.Run(inputs); err != nil {
			return err
		}
		log.Debug().Int("run", i).Msg("run complete")
	}

	if err := printResults(w, svc.Model().Outputs(), results, o); err != nil {
		return err
	}
	if o.showMetrics {
		return writeMetrics(w, reg)
	}
	return nil
}

func splitAssignment(s string) (name, value string, err error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", "", fmt.Errorf("expected name=value, got %q", s)
	}
	return name, value, nil
}

func readInputs(m *inference.Model, o *runOptions) (map[string]any, error) {
	inputs := make(map[string]any)
	for _, s := range o.inputs {
		name, path, err := splitAssignment(s)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var values []float64
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("input %s: %w", name, err)
		}
		inputs[name] = values
	}
	if len(o.texts) == 0 {
		return inputs, nil
	}

	spm := o.spm
	if spm == "" {
		spm = os.Getenv("MODELPATH")
	}
	tok, err := codec.NewTokenizer(spm)
	if err != nil {
		return nil, err
	}
	for _, s := range o.texts {
		name, text, err := splitAssignment(s)
		if err != nil {
			return nil, err
		}
		dims, err := m.Dims(name)
		if err != nil {
			return nil, err
		}
		ids, mask := tok.EncodePadded(text, native.ElementCount(dims))
		inputs[name] = ids
		if o.mask != "" {
			inputs[o.mask] = mask
		}
	}
	return inputs, nil
}

func readLabels(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var labels []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		labels = append(labels, strings.TrimSpace(sc.Text()))
	}
	return labels, sc.Err()
}

func printResults(w io.Writer, names []string, results map[string]*inference.Result, o *runOptions) error {
	if o.topK <= 0 {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		ordered := make([]*inference.Result, 0, len(names))
		for _, name := range names {
			ordered = append(ordered, results[name])
		}
		return enc.Encode(ordered)
	}

	labels, err := readLabels(o.labels)
	if err != nil {
		return err
	}
	for _, name := range names {
		r := results[name]
		batch := 1
		if len(r.Shape) > 1 {
			batch = int(r.Shape[0])
		}
		for b := 0; b < batch; b++ {
			row := r
			if len(r.Shape) > 1 {
				if row, err = r.Batch(b); err != nil {
					return err
				}
			}
			fmt.Fprintf(w, "%s[%d]\n", name, b)
			for _, s := range row.TopK(o.topK) {
				label := ""
				if s.Index < len(labels) {
					label = labels[s.Index]
				}
				fmt.Fprintf(w, "  %5d %12.6f %s\n", s.Index, s.Value, label)
			}
		}
	}
	return nil
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
