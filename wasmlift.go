// Package wasmlift translates WebAssembly modules into JVM class files.
//
// The translator consumes a module in the WebAssembly 1.0 Binary Format
// (plus the sign-extension, non-trapping conversion, multi-value and
// reference-types proposals) and produces one main module class together
// with the carrier and trap classes it relies on. The main class exposes a
// constructor taking an import map, per-export instance methods, and a
// getExports accessor; see the package documentation of internal/translate
// for the carrier conventions.
package wasmlift

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wasmlift/wasmlift/internal/translate"
	"github.com/wasmlift/wasmlift/internal/wasm"
)

// TranslationConfig carries the user-selectable translation options.
type TranslationConfig struct {
	// ClassName is the fully qualified name of the generated main class, in
	// either dotted ("com.example.Module") or internal ("com/example/Module")
	// form.
	ClassName string

	// Logger receives debug-level translation progress. Nil disables logging.
	Logger *zap.Logger
}

// Class is one generated class file.
type Class struct {
	// Name is the class name in internal (slash-separated) form.
	Name string
	// Bytes is the serialized class file.
	Bytes []byte
}

// TranslateModule decodes and translates a WebAssembly binary. The returned
// slice starts with the main module class; carrier classes follow in
// deterministic order, so translating the same input twice yields identical
// output.
func TranslateModule(binary []byte, cfg TranslationConfig) ([]Class, error) {
	m, err := wasm.DecodeModule(binary)
	if err != nil {
		return nil, fmt.Errorf("decode module: %w", err)
	}
	return Translate(m, cfg)
}

// Translate translates an already-decoded module.
func Translate(m *wasm.Module, cfg TranslationConfig) ([]Class, error) {
	internalName := strings.ReplaceAll(cfg.ClassName, ".", "/")
	if internalName == "" {
		return nil, fmt.Errorf("class name must not be empty")
	}

	classes, err := translate.Translate(m, translate.Config{
		ClassName: internalName,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	ret := make([]Class, 0, len(classes))
	for _, c := range classes {
		bs, err := c.Encode()
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", c.Name, err)
		}
		ret = append(ret, Class{Name: c.Name, Bytes: bs})
	}
	return ret, nil
}
