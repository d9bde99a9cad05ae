// Package main implements the wasmlift CLI: translate one WebAssembly module
// into a jar of JVM class files.
//
// Usage:
//
//	wasmlift -name com.example.Module -o module.jar input.wasm
//
// Exit status is zero on success; any translator error prints a diagnostic
// on stderr and exits non-zero.
package main

import (
	"archive/zip"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/logrusorgru/aurora/v4"
	"go.uber.org/zap"

	"github.com/wasmlift/wasmlift"
)

func main() {
	flag.Usage = printUsage
	className := flag.String("name", "wasm.Module", "fully qualified name of the generated main class")
	output := flag.String("o", "", "output jar path (default: input name with .jar)")
	verbose := flag.Bool("v", false, "log translation progress to stderr")
	flag.Parse()

	if flag.NArg() != 1 {
		printUsage()
		os.Exit(1)
	}
	input := flag.Arg(0)

	out := *output
	if out == "" {
		out = strings.TrimSuffix(input, filepath.Ext(input)) + ".jar"
	}

	if err := run(input, out, *className, *verbose); err != nil {
		au := aurora.New(aurora.WithColors(isTerminal(os.Stderr)))
		fmt.Fprintln(os.Stderr, au.Red("error:"), err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-name class] [-o output.jar] [-v] input.wasm\n", os.Args[0])
	flag.PrintDefaults()
}

func run(input, output, className string, verbose bool) error {
	logger := zap.NewNop()
	if verbose {
		cfg := zap.NewDevelopmentConfig()
		l, err := cfg.Build()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		defer l.Sync() //nolint:errcheck // best-effort flush on exit
		logger = l
	}

	binary, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	classes, err := wasmlift.TranslateModule(binary, wasmlift.TranslationConfig{
		ClassName: className,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	return writeJar(output, classes)
}

// writeJar writes the classes as stored zip entries with fixed metadata, so
// repeated runs over the same input produce byte-identical archives.
func writeJar(path string, classes []wasmlift.Class) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := zip.NewWriter(f)

	manifest := "Manifest-Version: 1.0\nCreated-By: wasmlift\n"
	if err := writeStored(w, "META-INF/MANIFEST.MF", []byte(manifest)); err != nil {
		f.Close()
		return err
	}
	for _, c := range classes {
		if err := writeStored(w, c.Name+".class", c.Bytes); err != nil {
			f.Close()
			return err
		}
	}

	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeStored(w *zip.Writer, name string, content []byte) error {
	entry, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
	if err != nil {
		return err
	}
	_, err = entry.Write(content)
	return err
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
