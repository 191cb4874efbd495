package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/bids"
	"github.com/childmindresearch/ba-timeseries-gradients/internal/embed"
	"github.com/childmindresearch/ba-timeseries-gradients/internal/errs"
	"github.com/childmindresearch/ba-timeseries-gradients/internal/io"
	"github.com/childmindresearch/ba-timeseries-gradients/internal/logs"
)

type options struct {
	BIDSDir       string
	OutputDir     string
	AnalysisLevel string

	Subject   []string
	Session   []string
	Run       []string
	Task      []string
	Suffix    string
	Space     string
	Extension string
	Datatype  string

	InputFiles []string
	InputList  string
	// queryGiven is set when any BIDS query flag was given
	queryGiven bool

	Parcellation            string
	DimensionalityReduction string
	Kernel                  string
	Sparsity                float64
	NComponents             int

	Force            bool
	Verbose          string
	OutputFormat     string
	DryRun           bool
	ConfigFile       string
	SaveConnectivity bool
	Workers          int
}

func addFlags(fs *pflag.FlagSet, opts *options) {
	defaults := embed.DefaultOptions()

	fs.StringArrayVar(&opts.Subject, "subject", nil, "The subject to include for finding BIDS files. Can be repeated.")
	fs.StringArrayVar(&opts.Session, "session", nil, "The session to include for finding BIDS files. Can be repeated.")
	fs.StringArrayVar(&opts.Run, "run", nil, "The run to include for finding BIDS files. Can be repeated.")
	fs.StringArrayVar(&opts.Task, "task", nil, "The task to include for finding BIDS files. Can be repeated.")
	fs.StringVar(&opts.Suffix, "suffix", "bold", "Suffix to use for finding BIDS files.")
	fs.StringVar(&opts.Space, "space", "", "The space of the input files.")
	fs.StringVar(&opts.Extension, "extension", ".nii.gz", "The file extension of the input files.")
	fs.StringVar(&opts.Datatype, "datatype", "", "The datatype of the input files.")
	fs.StringArrayVarP(&opts.InputFiles, "input_file", "i", nil, "Input file to use instead of querying the BIDS directory. Can be repeated.")
	fs.StringVarP(&opts.InputList, "input_list", "l", "", "Text file listing one input file per line, used instead of querying the BIDS directory.")

	fs.StringVar(&opts.Parcellation, "parcellation", "", "The parcellation to use, must be in the same space as the input files.")
	fs.StringVar(&opts.DimensionalityReduction, "dimensionality_reduction", string(defaults.Approach), "The type of dimensionality reduction to use (pca, le, dm).")
	fs.StringVar(&opts.Kernel, "kernel", string(defaults.Kernel), "The kernel to use (pearson, spearman, cosine, normalized_angle, gaussian).")
	fs.Float64Var(&opts.Sparsity, "sparsity", defaults.Sparsity, "The sparsity level to use for the gradients, in [0, 1).")
	fs.IntVar(&opts.NComponents, "n_components", defaults.NComponents, "The number of components to use for the gradients.")

	fs.BoolVar(&opts.Force, "force", false, "Force overwrite of output file if it already exists.")
	fs.StringVar(&opts.Verbose, "verbose", "info", "Verbosity level ("+strings.Join(logs.Levels, ", ")+").")
	fs.StringVar(&opts.OutputFormat, "output_format", "h5", "Output file format ("+strings.Join(io.Formats, ", ")+").")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Do not run the pipeline, only show what input files would be used. Logged at the info level.")
	fs.StringVar(&opts.ConfigFile, "config", "", "YAML file with default values for any of the flags above.")
	fs.BoolVar(&opts.SaveConnectivity, "save-connectivity", false, "Also save the group connectivity matrix as connectivity.npy.")
	fs.IntVar(&opts.Workers, "workers", 0, "Number of worker goroutines; 0 uses one per CPU.")
}

// queryFlags are the BIDS filters that explicit input files replace
var queryFlags = []string{"subject", "session", "run", "task", "suffix", "space", "extension", "datatype"}

func anyChanged(fs *pflag.FlagSet, names []string) bool {
	for _, name := range names {
		if fs.Changed(name) {
			return true
		}
	}
	return false
}

// applyConfig sets every flag named in the YAML file that was not given on the command line
func applyConfig(fs *pflag.FlagSet, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errs.WrapInput(err, "reading config %s", path)
	}

	var values map[string]any
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return errs.WrapInput(err, "parsing config %s", path)
	}

	for name, value := range values {
		flag := fs.Lookup(name)
		if flag == nil || name == "config" {
			return errs.Input("unknown option %q in config %s", name, path)
		}
		if flag.Changed {
			continue
		}

		items, ok := value.([]any)
		if !ok {
			items = []any{value}
		}
		for _, item := range items {
			if err := fs.Set(name, fmt.Sprint(item)); err != nil {
				return errs.WrapInput(err, "config option %s", name)
			}
		}
	}
	return nil
}

func pathExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		return errs.Input("%s does not exist.", path)
	}
	return nil
}

func oneOf(name string, value string, choices []string) error {
	for _, c := range choices {
		if value == c {
			return nil
		}
	}
	return errs.Input("invalid choice for %s: %q (choose from %s)", name, value, strings.Join(choices, ", "))
}

// validate checks the arguments and returns the embedding options they describe
func (o *options) validate() (embed.Options, error) {
	embedOpts := embed.DefaultOptions()

	if err := pathExists(o.BIDSDir); err != nil {
		return embedOpts, err
	}
	if err := oneOf("analysis_level", o.AnalysisLevel, []string{"group"}); err != nil {
		return embedOpts, err
	}
	if o.Parcellation != "" {
		if err := pathExists(o.Parcellation); err != nil {
			return embedOpts, err
		}
	}
	if o.Sparsity < 0 || o.Sparsity >= 1 {
		return embedOpts, errs.Input("%g is not in range [0, 1).", o.Sparsity)
	}
	if o.NComponents < 1 {
		return embedOpts, errs.Input("Argument is not a positive integer.")
	}
	if err := oneOf("output_format", o.OutputFormat, io.Formats); err != nil {
		return embedOpts, err
	}

	approach, err := embed.ParseApproach(o.DimensionalityReduction)
	if err != nil {
		return embedOpts, err
	}
	kernel, err := embed.ParseKernel(o.Kernel)
	if err != nil {
		return embedOpts, err
	}

	embedOpts.Approach = approach
	embedOpts.Kernel = kernel
	embedOpts.Sparsity = o.Sparsity
	embedOpts.NComponents = o.NComponents
	return embedOpts, nil
}

func (o *options) explicit() bool {
	return len(o.InputFiles) > 0 || o.InputList != ""
}

// explicitFiles returns the files named by --input_file or --input_list
func (o *options) explicitFiles() ([]string, error) {
	if len(o.InputFiles) > 0 && o.InputList != "" {
		return nil, errs.Input("You must provide either an input file or a non-empty input list.")
	}
	if o.queryGiven {
		return nil, errs.Input("Explicit input files cannot be combined with BIDS query options (%s).", strings.Join(queryFlags, ", "))
	}

	if o.InputList != "" {
		return parseInputList(o.InputList)
	}
	for _, f := range o.InputFiles {
		if err := pathExists(f); err != nil {
			return nil, err
		}
	}
	return o.InputFiles, nil
}

// parseInputList reads one path per line, skipping blank lines
func parseInputList(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.WrapInput(err, "reading input list %s", path)
	}

	var files []string
	seen := map[string]bool{}
	duplicate := false
	for _, line := range strings.Split(string(raw), "\n") {
		f := strings.TrimSpace(line)
		if f == "" {
			continue
		}
		duplicate = duplicate || seen[f]
		seen[f] = true
		files = append(files, f)
	}

	if len(files) == 0 {
		return nil, errs.Input("Input list is empty.")
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return nil, errs.Input("Not all files in input list exist. Please check your input list.")
		}
	}
	if duplicate {
		return nil, errs.Input("Input list contains duplicate files. Please check your input list.")
	}
	return files, nil
}

func (o *options) query() bids.Query {
	return bids.Query{
		Subject:   o.Subject,
		Session:   o.Session,
		Run:       o.Run,
		Task:      o.Task,
		Suffix:    o.Suffix,
		Space:     o.Space,
		Extension: o.Extension,
		Datatype:  o.Datatype,
	}
}

func (o *options) outputFile() string {
	return filepath.Join(o.OutputDir, "gradients."+o.OutputFormat)
}
