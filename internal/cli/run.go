package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/daimatz/jweave/pkg/config"
	"github.com/daimatz/jweave/pkg/instrument"
	"github.com/daimatz/jweave/pkg/vm"
)

var (
	runPlanPath  string
	runClasspath string
	runJmod      string
	runMocks     []string
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runPlanPath, "plan", "p", "", "Interception plan (YAML, or TOML by extension)")
	runCmd.Flags().StringVar(&runClasspath, "classpath", "", "Directory of user class files (overrides the plan)")
	runCmd.Flags().StringVar(&runJmod, "jmod", "", "Path to java.base.jmod (overrides the plan)")
	runCmd.Flags().StringSliceVar(&runMocks, "mock", nil, "Mock this class (repeatable, added to the plan)")
}

var runCmd = &cobra.Command{
	Use:   "run [main-class [args...]]",
	Short: "Run a main class under an interception plan",
	Long: "Loads the plan, applies its stubs and mocks, and runs the main method.\n" +
		"The main class comes from the first argument or from the plan.\n" +
		"With -v, the number of mocks constructed per class is printed afterwards.",
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := config.LoadPlan(runPlanPath)
		if err != nil {
			return err
		}
		if runClasspath != "" {
			plan.Classpath = runClasspath
			plan.Dir = ""
		}
		if runJmod != "" {
			plan.Jmod = runJmod
		}
		plan.Mocks = append(plan.Mocks, runMocks...)
		if len(args) > 0 {
			plan.Main, plan.Args = args[0], args[1:]
		}
		if verbosity == 0 && (plan.Log.Verbosity > 0 || plan.Log.Path != "") {
			configureLogging(plan.Log.Verbosity, plan.Resolve(plan.Log.Path))
		}

		counts, err := runPlan(plan, cmd.OutOrStdout())
		if verbosity > 0 || plan.Log.Verbosity > 0 {
			printCounts(cmd.ErrOrStderr(), counts)
		}
		return err
	},
}

// runPlan executes plan.Main with the plan applied and returns how many
// mocks of each class were constructed.
func runPlan(plan *config.Plan, stdout io.Writer) (map[string]int, error) {
	if plan.Main == "" {
		return nil, fmt.Errorf("no main class: pass one or set main in the plan")
	}

	var parent vm.ClassLoader
	if jmod := plan.JmodPath(); jmod != "" {
		parent = vm.NewJmodClassLoader(jmod)
	}
	v := vm.NewVM(vm.NewUserClassLoader(plan.ClasspathDir(), parent))
	v.Stdout = stdout

	ic, err := applyPlan(v, plan)
	if err != nil {
		return nil, err
	}

	mainClass := instrument.InternalName(plan.Main)
	log.Infof("running %s", mainClass)
	runErr := v.Execute(mainClass, plan.Args...)
	counts := ic.constructed()
	if err := ic.Close(); err != nil {
		return counts, errors.Join(runErr, err)
	}
	return counts, runErr
}

func printCounts(w io.Writer, counts map[string]int) {
	classes := make([]string, 0, len(counts))
	for c := range counts {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	for _, c := range classes {
		fmt.Fprintf(w, "mock %s: %d constructed\n", c, counts[c])
	}
}
