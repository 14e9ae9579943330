package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/daimatz/jweave/pkg/classfile"
	"github.com/daimatz/jweave/pkg/config"
	"github.com/daimatz/jweave/pkg/instrument"
	"github.com/daimatz/jweave/pkg/mock"
)

var inspectPlanPath string

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVarP(&inspectPlanPath, "plan", "p", "", "Show which rules of this plan apply")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.class>",
	Short: "Print the structure of a class file",
	Long: "Prints the class, its fields and methods. With --plan, each method is\n" +
		"annotated with the plan rules that would intercept it.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cf, err := classfile.ParseFile(args[0])
		if err != nil {
			return err
		}
		plan, err := config.LoadPlan(inspectPlanPath)
		if err != nil {
			return err
		}
		return inspect(cmd.OutOrStdout(), cf, plan)
	},
}

var accessNames = []struct {
	flag uint16
	name string
}{
	{classfile.AccPublic, "public"},
	{classfile.AccPrivate, "private"},
	{classfile.AccProtected, "protected"},
	{classfile.AccStatic, "static"},
	{classfile.AccFinal, "final"},
	{classfile.AccNative, "native"},
	{classfile.AccAbstract, "abstract"},
}

func access(flags uint16) string {
	var parts []string
	for _, a := range accessNames {
		if flags&a.flag != 0 {
			parts = append(parts, a.name)
		}
	}
	return strings.Join(parts, " ")
}

func inspect(w io.Writer, cf *classfile.ClassFile, plan *config.Plan) error {
	name, err := cf.ClassName()
	if err != nil {
		return err
	}
	kind := "class"
	if cf.AccessFlags&classfile.AccInterface != 0 {
		kind = "interface"
	}
	fmt.Fprintf(w, "%s %s", kind, name)
	if super := cf.SuperClassName(); super != "" {
		fmt.Fprintf(w, " extends %s", super)
	}
	var ifaces []string
	for _, i := range cf.Interfaces {
		if n, err := classfile.GetClassName(cf.ConstantPool, i); err == nil {
			ifaces = append(ifaces, n)
		}
	}
	if len(ifaces) > 0 {
		fmt.Fprintf(w, " implements %s", strings.Join(ifaces, ", "))
	}
	fmt.Fprintf(w, " (version %d.%d)\n", cf.MajorVersion, cf.MinorVersion)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(cf.Fields) > 0 {
		fmt.Fprintln(tw, "fields:")
		for _, f := range cf.Fields {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", access(f.AccessFlags), f.Descriptor, f.Name)
		}
	}

	typ := instrument.TypeDescription{Name: name}
	if super := cf.SuperClassName(); super != "" {
		typ.Supertypes = []string{super}
	}
	fmt.Fprintln(tw, "methods:")
	for _, m := range cf.Methods {
		desc := instrument.MethodDescription{Class: name, Name: m.Name, Descriptor: m.Descriptor, Static: m.IsStatic()}
		var rules []string
		for _, s := range plan.Stubs {
			if classes, methods := stubMatchers(s); classes(typ) && methods(desc) {
				rules = append(rules, "stub")
			}
		}
		for _, c := range plan.Mocks {
			if instrument.InternalName(c) != name {
				continue
			}
			if desc.IsConstructor() {
				rules = append(rules, "mock constructor")
			} else if mock.Methods(desc) {
				rules = append(rules, "mock")
			}
		}
		code := ""
		if m.Code != nil {
			code = fmt.Sprintf("%d bytes", len(m.Code.Code))
		}
		fmt.Fprintf(tw, "  %s\t%s%s\t%s\t%s\n", access(m.AccessFlags), m.Name, m.Descriptor, code, strings.Join(rules, ", "))
	}
	return tw.Flush()
}
