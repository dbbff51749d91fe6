package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/modforge/scriptrt/interop"
	"github.com/modforge/scriptrt/manifest"
	"github.com/modforge/scriptrt/registry"
	"github.com/modforge/scriptrt/runtime"
)

func main() {
	var (
		manifestPath = flag.String("manifest", "", "Path to unit manifest (YAML)")
		funcName     = flag.String("call", "", "Function to call")
		argsStr      = flag.String("args", "", "Arguments, space-separated kind:literal (e.g. \"i32:2 i32:3\")")
		retStr       = flag.String("ret", "void", "Expected return kind")
		list         = flag.Bool("list", false, "List exported functions and exit")
		interactive  = flag.Bool("i", false, "Interactive mode with TUI")
		verbose      = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *manifestPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: scriptrt -manifest <unit.yaml> -call <name> [-args \"i32:2 i32:3\"] [-ret i32]")
		fmt.Fprintln(os.Stderr, "       scriptrt -manifest <unit.yaml> -list")
		fmt.Fprintln(os.Stderr, "       scriptrt -manifest <unit.yaml> -i  (interactive mode)")
		os.Exit(1)
	}

	if *verbose {
		log, err := zap.NewDevelopment()
		if err == nil {
			runtime.SetLogger(log)
			defer log.Sync()
		}
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*manifestPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*manifestPath, *funcName, *argsStr, *retStr, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadUnit(ctx context.Context, manifestPath string) (*runtime.Instance, *runtime.VersionTable, *manifest.Manifest, error) {
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, nil, nil, err
	}
	source, err := m.ReadSource()
	if err != nil {
		return nil, nil, nil, err
	}

	res := runtime.NewInstance(registry.NewMap(), runtime.Hooks{
		Info:     func(msg string) { fmt.Println(msg) },
		Warn:     func(msg string) { fmt.Fprintln(os.Stderr, msg) },
		Critical: func(msg string) { fmt.Fprintln(os.Stderr, msg) },
	})
	if res.Err() != nil {
		return nil, nil, nil, res.Err()
	}
	inst := res.Unwrap()

	table, err := inst.LoadScript(ctx, runtime.Source{
		Locator: m.SourcePath(),
		Bytes:   source,
	}, m.Capabilities)
	if err != nil {
		inst.Close(ctx)
		return nil, nil, nil, err
	}
	return inst, table, m, nil
}

func run(manifestPath, funcName, argsStr, retStr string, listOnly bool) error {
	ctx := context.Background()

	inst, table, m, err := loadUnit(ctx, manifestPath)
	if err != nil {
		return err
	}
	defer inst.Close(ctx)

	fmt.Printf("Unit: %s (%s)\n", m.SourcePath(), inst.UnitType())
	for i := 0; i < table.Len(); i++ {
		name, _ := table.Name(i)
		packed, _ := table.VersionAt(i)
		fmt.Printf("Capability: %s %s\n", name, interop.UnpackVersion(packed))
	}

	exports, err := inst.Exports()
	if err != nil {
		return err
	}
	fmt.Printf("\nExported functions:\n")
	for _, name := range exports {
		fmt.Printf("  %s\n", name)
	}

	if listOnly || funcName == "" {
		return nil
	}

	args, err := parseValues(argsStr)
	if err != nil {
		return err
	}
	ret, err := parseKind(retStr)
	if err != nil {
		return err
	}

	h, err := inst.CreateParams(len(args))
	if err != nil {
		return err
	}
	defer inst.DestroyParams(h)
	for _, v := range args {
		if err := inst.PushParam(h, v); err != nil {
			return err
		}
	}

	result, err := inst.Call(ctx, funcName, h, ret)
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}
	fmt.Printf("\nResult: %s\n", result)
	return nil
}
