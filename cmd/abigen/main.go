// Command abigen renders the C header of a native library from its manifest:
// the envelope structs, the exported function prototypes with their calling
// convention, and the C++ deleter helpers.
//
// Usage:
//
//	abigen -manifest textkit.yaml -var version=1.0.0 -o textkit.h
//	abigen -manifest textkit.yaml -var version=1.0.0 -prototypes
//	abigen -manifest textkit.yaml -var version=1.0.0 -check
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/reglet-dev/nativeabi/application/header"
	"github.com/reglet-dev/nativeabi/host"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("abigen", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		manifestPath = fs.String("manifest", "", "Path to the library manifest (YAML or JSON)")
		output       = fs.String("o", "", "Write the header to this file instead of stdout")
		guard        = fs.String("guard", "", "Include guard macro (default: NAME_H_)")
		lenient      = fs.Bool("lenient", false, "Render missing template variables as <no value>")
		prototypes   = fs.Bool("prototypes", false, "Print only the function prototypes")
		check        = fs.Bool("check", false, "Validate the manifest and exit")
	)
	vars := map[string]any{}
	fs.Func("var", "Template variable as key=value (repeatable)", func(s string) error {
		k, v, ok := strings.Cut(s, "=")
		if !ok || k == "" {
			return errors.New("want key=value")
		}
		vars[k] = v
		return nil
	})

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *manifestPath == "" {
		fmt.Fprintln(stderr, "Usage: abigen -manifest <file> [-var key=value]... [-o header.h] [-prototypes | -check]")
		return 2
	}

	if err := generate(*manifestPath, *output, *guard, vars, *lenient, *prototypes, *check, stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func generate(manifestPath, output, guard string, vars map[string]any, lenient, prototypesOnly, checkOnly bool, stdout io.Writer) error {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	loader := host.NewLoader(host.WithStrictTemplates(!lenient))
	m, err := loader.LoadManifest(raw, vars)
	if err != nil {
		return err
	}
	if checkOnly {
		fmt.Fprintf(stdout, "%s: %d exports OK\n", m.Name, len(m.Exports))
		return nil
	}

	var out []byte
	if prototypesOnly {
		protos, err := header.Prototypes(m)
		if err != nil {
			return err
		}
		out = []byte(strings.Join(protos, "\n") + "\n")
	} else {
		var opts []header.Option
		if guard != "" {
			opts = append(opts, header.WithGuard(guard))
		}
		r, err := header.NewRenderer(opts...)
		if err != nil {
			return err
		}
		if out, err = r.Render(m); err != nil {
			return err
		}
	}

	if output == "" {
		_, err = stdout.Write(out)
		return err
	}
	return os.WriteFile(output, out, 0o644) //nolint:gosec // G306: headers are meant to be readable
}
