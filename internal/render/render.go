// Package render turns a bootloader-config template plus a property map
// and an append bag into the final text written into a PXE FIFO. It is a
// pure function over its inputs: no I/O beyond reading the template file.
package render

import (
	"fmt"
	"os"
	"strings"

	"github.com/cochaviz/opsipxeconfd/internal/model"
)

// Render reads templatePath as UTF-8 and produces the substituted,
// append-merged text described by the template renderer rules: every
// "%propertyId%" placeholder is replaced by its PropertyMap value (empty
// string if absent), and the template's own "append" line is merged with
// override taking precedence over the template's own defaults, key order
// following first appearance.
func Render(templatePath string, props model.PropertyMap, override *model.AppendBag, shortHostname string) (string, error) {
	raw, err := os.ReadFile(templatePath)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", templatePath, err)
	}

	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
	var out strings.Builder

	for _, line := range lines {
		substituted := substituteProperties(line, props)

		trimmed := strings.TrimLeft(substituted, " \t")
		if strings.HasPrefix(trimmed, "append") && (len(trimmed) == len("append") || trimmed[len("append")] == ' ' || trimmed[len("append")] == '\t') {
			rendered := renderAppendLine(trimmed, override, shortHostname)
			out.WriteString(rendered)
			out.WriteByte('\n')
			continue
		}

		out.WriteString(strings.TrimRight(substituted, " \t\r"))
		out.WriteByte('\n')
	}

	return out.String(), nil
}

func substituteProperties(line string, props model.PropertyMap) string {
	var out strings.Builder
	rest := line
	for {
		start := strings.IndexByte(rest, '%')
		if start < 0 {
			out.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start+1:], '%')
		if end < 0 {
			out.WriteString(rest)
			break
		}
		end += start + 1

		propertyID := rest[start+1 : end]
		out.WriteString(rest[:start])
		out.WriteString(props.Lookup(propertyID))
		rest = rest[end+1:]
	}
	return out.String()
}

func renderAppendLine(trimmedLine string, override *model.AppendBag, shortHostname string) string {
	remainder := strings.TrimSpace(strings.TrimPrefix(trimmedLine, "append"))

	defaults := model.NewAppendBag()
	for _, tok := range strings.Fields(remainder) {
		key, value, _ := strings.Cut(tok, "=")
		defaults.Set(key, value)
	}
	if !defaults.Has("hn") {
		defaults.Set("hn", shortHostname)
	}

	defaults.MergeOver(override)

	rendered := defaults.RenderUnredacted()
	if rendered == "" {
		return "append"
	}
	return "append " + rendered
}
