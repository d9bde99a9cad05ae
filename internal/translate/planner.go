package translate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wasmlift/wasmlift/internal/jvm"
	"github.com/wasmlift/wasmlift/internal/wasm"
)

// Conventional carrier field names observable at the JVM boundary.
const (
	memoryFieldName = "memory"
	tableFieldName  = "table"
	globalFieldName = "global"
)

// planner assigns deterministic class, field and method names, and
// deduplicates carrier classes by shape. Two carriers share a class iff their
// ordered (field name, JVM descriptor) lists are equal; since every carrier
// here has exactly one conventional field, the shape key is that field's name
// plus descriptor.
type planner struct {
	// base is the main module class name in internal form.
	base string

	// shapeClasses maps a carrier shape key to its class name.
	shapeClasses map[string]string
	// shapeOrder records first-use order so emission is deterministic.
	shapeOrder []string

	// exportNames maps export name to the mangled wrapper method name,
	// deduplicated deterministically.
	exportNames map[string]string
}

func newPlanner(base string) *planner {
	return &planner{
		base:         base,
		shapeClasses: map[string]string{},
		exportNames:  map[string]string{},
	}
}

// moduleClass returns the main module class name.
func (p *planner) moduleClass() string { return p.base }

// moduleType returns the field descriptor of the module class.
func (p *planner) moduleType() jvm.FieldType { return jvm.ObjectType(p.base) }

// trapClass returns the generated trap exception class name.
func (p *planner) trapClass() string { return p.base + "$Trap" }

// carrierClass returns (registering on first use) the class name for the
// carrier with the given conventional field and JVM type. The suffix is a
// deterministic function of the shape, so repeated runs and shape-equal
// entities agree.
func (p *planner) carrierClass(fieldName string, t jvm.FieldType) string {
	key := fieldName + ":" + string(t)
	if name, ok := p.shapeClasses[key]; ok {
		return name
	}
	var suffix string
	switch fieldName {
	case memoryFieldName:
		suffix = "Memory"
	case tableFieldName:
		suffix = "Table" + shapeTag(t)
	case globalFieldName:
		suffix = "Global" + shapeTag(t)
	default:
		suffix = "Carrier" + shapeTag(t)
	}
	name := p.base + "$" + suffix
	p.shapeClasses[key] = name
	p.shapeOrder = append(p.shapeOrder, key)
	return name
}

// shapeTag renders a descriptor as a class-name-safe tag.
func shapeTag(t jvm.FieldType) string {
	switch t {
	case jvm.TypeInt:
		return "I"
	case jvm.TypeLong:
		return "J"
	case jvm.TypeFloat:
		return "F"
	case jvm.TypeDouble:
		return "D"
	case jvm.ObjectType(jvm.MethodHandleClass):
		return "Func"
	case jvm.ArrayOf(jvm.ObjectType(jvm.MethodHandleClass)):
		return "Func"
	case jvm.ObjectType(jvm.ObjectClass):
		return "Ref"
	case jvm.ArrayOf(jvm.ObjectType(jvm.ObjectClass)):
		return "Ref"
	}
	// Fall back to a mangling of the descriptor itself.
	r := strings.NewReplacer("/", "_", ";", "", "[", "A", "L", "")
	return r.Replace(string(t))
}

// funcMethodName returns the static method name of the function at the given
// function index space offset.
func (p *planner) funcMethodName(idx wasm.Index) string {
	return fmt.Sprintf("f%d", idx)
}

// exportMethodName returns (assigning on first use) the wrapper method name
// of an exported function. Export names are mangled into valid Java
// identifiers; collisions after mangling get a deterministic numeric suffix.
func (p *planner) exportMethodName(exportName string) string {
	if name, ok := p.exportNames[exportName]; ok {
		return name
	}
	mangled := mangleIdentifier(exportName)
	name := mangled
	for n := 2; p.hasExportMethod(name) || reservedMethodNames[name]; n++ {
		name = fmt.Sprintf("%s_%d", mangled, n)
	}
	p.exportNames[exportName] = name
	return name
}

// reservedMethodNames are module-class members an export wrapper must not
// shadow.
var reservedMethodNames = map[string]bool{
	"getExports": true,
	"equals":     true,
	"hashCode":   true,
	"toString":   true,
}

func (p *planner) hasExportMethod(name string) bool {
	for _, v := range p.exportNames {
		if v == name {
			return true
		}
	}
	return false
}

// mangleIdentifier rewrites a WASM export name into a valid JVM method name.
// JVM names forbid only a handful of characters, but staying within Java
// identifier characters keeps the output usable from Java source.
func mangleIdentifier(s string) string {
	if s == "" {
		return "_"
	}
	var sb strings.Builder
	for i, r := range s {
		ok := r == '_' || r == '$' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9' && i > 0)
		if ok {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// sortedExportNames returns the module's export names in deterministic order.
func sortedExportNames(m *wasm.Module) []string {
	names := make([]string, 0, len(m.ExportSection))
	for name := range m.ExportSection {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// canonicalImportName collapses the two-level import namespace into the
// single lookup key hosts supply: "module.name".
func canonicalImportName(im *wasm.Import) string {
	return im.Module + "." + im.Name
}
