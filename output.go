package main

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/fatih/color"

	"papertrail-manager/papertrail"
)

var (
	nameColor  = color.New(color.FgGreen, color.Bold).SprintFunc()
	faintColor = color.New(color.Faint).SprintFunc()
	warnColor  = color.New(color.FgYellow).SprintFunc()
)

// parseArchiveFormat parses a user supplied --format template. Sprig
// functions are available, e.g. '{{ .FileName }} {{ .StartTime | date "2006-01-02" }}'.
func parseArchiveFormat(format string) (*template.Template, error) {
	tmpl, err := template.New("archive").Funcs(sprig.TxtFuncMap()).Parse(format)
	if err != nil {
		return nil, fmt.Errorf("invalid format template: %w", err)
	}
	return tmpl, nil
}

// renderArchives writes one line per archive. An empty format gives the
// colored default listing.
func renderArchives(w io.Writer, archives []*papertrail.Archive, format string) error {
	if format == "" {
		for _, a := range archives {
			fmt.Fprintf(w, "%s  %s  %s\n",
				nameColor(a.FileName),
				a.StartTime.Format(time.RFC3339),
				faintColor(humanBytes(a.FileSize)))
		}
		return nil
	}

	tmpl, err := parseArchiveFormat(format)
	if err != nil {
		return err
	}
	for _, a := range archives {
		var b strings.Builder
		if err := tmpl.Execute(&b, a); err != nil {
			return fmt.Errorf("rendering %s: %w", a.FileName, err)
		}
		line := b.String()
		if !strings.HasSuffix(line, "\n") {
			line += "\n"
		}
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}

// renderSummary prints the one-line-per-area summary of a loaded inventory.
func renderSummary(w io.Writer, pt *papertrail.Papertrail) {
	usage := pt.Usage.Data()
	fmt.Fprintf(w, "%s %d\n", nameColor("archives:"), pt.Archives.Len())
	fmt.Fprintf(w, "%s %d\n", nameColor("destinations:"), pt.Destinations.Len())
	fmt.Fprintf(w, "%s %d\n", nameColor("groups:"), pt.Groups.Len())
	fmt.Fprintf(w, "%s %d\n", nameColor("systems:"), pt.Systems.Len())

	used := fmt.Sprintf("%s of %s (%.1f%%)",
		humanBytes(usage.TransferUsed), humanBytes(usage.PlanLimit), usage.TransferUsedPercent)
	if usage.TransferUsedPercent >= 90 {
		used = warnColor(used)
	}
	fmt.Fprintf(w, "%s %s\n", nameColor("usage:"), used)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
