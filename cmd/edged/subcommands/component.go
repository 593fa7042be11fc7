package subcommands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ComponentCmd is the parent command for inspecting recipes without
// starting a daemon.
var ComponentCmd = &cobra.Command{
	Use:   "component",
	Short: "Inspect component recipes",
}

var componentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every component recipe found under --recipes-dir",
	RunE:  runComponentList,
}

var componentDescribeCmd = &cobra.Command{
	Use:   "describe <name>",
	Short: "Show one component's resolved recipe, dependencies, and state",
	Args:  cobra.ExactArgs(1),
	RunE:  runComponentDescribe,
}

func init() {
	ComponentCmd.AddCommand(componentListCmd)
	ComponentCmd.AddCommand(componentDescribeCmd)
}

func runComponentList(cmd *cobra.Command, args []string) error {
	src, err := newRecipeSource()
	if err != nil {
		return err
	}
	names := src.Names()
	if len(names) == 0 {
		fmt.Println("no recipes found under", RecipesDir)
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func runComponentDescribe(cmd *cobra.Command, args []string) error {
	name := args[0]

	src, err := newRecipeSource()
	if err != nil {
		return err
	}
	cfg, err := newConfigStore()
	if err != nil {
		return err
	}
	reg := newRegistry(src, cfg)

	comp := reg.Locate(name)

	fmt.Printf("name:    %s\n", comp.Name)
	fmt.Printf("kind:    %s\n", comp.Kind)
	fmt.Printf("state:   %s\n", comp.State())
	if msg := comp.StatusMessage(); msg != "" {
		fmt.Printf("status:  %s\n", msg)
	}
	fmt.Println("dependencies:")
	for _, dep := range comp.ExplicitDeps() {
		fmt.Printf("  - %s (requires %s)\n", dep.Component.Name, dep.Required)
	}
	if comp.Recipe != nil && len(comp.Recipe.Lifecycle.Steps) > 0 {
		fmt.Println("lifecycle steps:")
		for step := range comp.Recipe.Lifecycle.Steps {
			fmt.Printf("  - %s\n", step)
		}
	}
	return nil
}
