package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/minivm/minijvm/pkg/vm"
)

const version = "0.3.0"

var (
	flagClassPath string
	flagMaxSteps  int
	flagTrace     bool
)

func main() {
	root := &cobra.Command{
		Use:           "minijvm",
		Short:         "A minimal class-file virtual machine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd := &cobra.Command{
		Use:   "run <class>",
		Short: "Execute the entry method of a class",
		Long: `Execute the entry method of a class.

The class name is given without the .class extension; the file is
looked up on the classpath. The program's ireturn value, if any, is
printed to stdout.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runClass,
	}
	runCmd.Flags().StringVarP(&flagClassPath, "classpath", "c", "", "directory searched for .class files (default: the class argument's directory)")
	runCmd.Flags().IntVar(&flagMaxSteps, "max-steps", vm.DefaultMaxSteps, "instruction dispatch limit")
	runCmd.Flags().BoolVar(&flagTrace, "trace", false, "log every dispatched instruction")
	root.AddCommand(runCmd)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the minijvm version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("minijvm " + version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runClass(cmd *cobra.Command, args []string) error {
	classArg := args[0]
	classPath := flagClassPath
	className := classArg
	if classPath == "" {
		classPath = filepath.Dir(classArg)
		className = filepath.Base(classArg)
	}

	level := zerolog.InfoLevel
	if flagTrace {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Logger().Level(level)

	machine := vm.New(&vm.Options{
		ClassPath: classPath,
		MaxSteps:  flagMaxSteps,
		Logger:    &logger,
	})

	result, err := machine.Run(className)
	if err != nil {
		return err
	}
	if result.HasValue {
		fmt.Println(result.Value)
	}
	return nil
}
