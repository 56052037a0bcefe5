package output

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// TableFormatter formats domains as a human-readable table.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool

	// Now is the reference time for the UPTIME column. Defaults to time.Now.
	Now func() time.Time
}

// FormatDomain formats a single domain as a table row.
func (f *TableFormatter) FormatDomain(info *DomainInfo) (string, error) {
	return f.FormatDomainList([]*DomainInfo{info})
}

// FormatDomainList formats a list of domains as a table.
func (f *TableFormatter) FormatDomainList(infos []*DomainInfo) (string, error) {
	if len(infos) == 0 {
		return "No domains found\n", nil
	}

	now := time.Now
	if f.Now != nil {
		now = f.Now
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.Style().Options = table.OptionsNoBordersAndSeparators
	if !f.NoHeaders {
		t.AppendHeader(table.Row{"NAME", "STATE", "CLASS", "LABEL", "TEMPLATE", "NETVM", "VCPUS", "MEMORY", "UPTIME", "TAGS"})
	}

	for _, info := range infos {
		uptime := "-"
		if info.StartTime != nil {
			uptime = formatAge(now().Sub(*info.StartTime))
		}
		t.AppendRow(table.Row{
			info.Name,
			info.State,
			info.Class,
			orDash(info.Label),
			orDash(info.Template),
			orDash(info.NetVM),
			strconv.Itoa(info.VCPUs),
			fmt.Sprintf("%d MiB", info.MemoryMiB),
			uptime,
			orDash(strings.Join(info.Tags, ",")),
		})
	}

	return t.Render() + "\n", nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatAge formats a duration as a short human-readable string.
// Examples: "5s", "2m", "3h", "4d", "2w", "1y"
func formatAge(d time.Duration) string {
	if d < 0 {
		return "unknown"
	}

	seconds := int(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}

	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}

	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}

	days := hours / 24
	if days < 7 {
		return fmt.Sprintf("%dd", days)
	}

	weeks := days / 7
	if weeks < 8 {
		return fmt.Sprintf("%dw", weeks)
	}

	if years := days / 365; years > 0 {
		return fmt.Sprintf("%dy", years)
	}
	return fmt.Sprintf("%dd", days)
}
