// Package exportsvc renders report tables as downloadable files.
package exportsvc

import (
	"sort"
	"strings"

	"github.com/etda/school/core/report"
)

// Registry looks exporters up by format name.
type Registry struct {
	exporters map[string]report.Exporter
}

func NewRegistry(exporters ...report.Exporter) *Registry {
	reg := &Registry{exporters: make(map[string]report.Exporter, len(exporters))}
	for _, exp := range exporters {
		reg.exporters[exp.Format()] = exp
	}
	return reg
}

// NewDefaultRegistry knows the xlsx and pdf formats.
func NewDefaultRegistry() *Registry {
	return NewRegistry(NewXLSXExporter(), NewPDFExporter())
}

// Get returns report.ErrUnknownFormat for formats it does not know. Lookup ignores case.
func (reg *Registry) Get(format string) (report.Exporter, error) {
	exp, ok := reg.exporters[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return nil, report.ErrUnknownFormat
	}
	return exp, nil
}

func (reg *Registry) Formats() []string {
	formats := make([]string, 0, len(reg.exporters))
	for f := range reg.exporters {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}
