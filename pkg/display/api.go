// Package display renders download state for terminal output.
package display

import "modelfetch/pkg/download"

// Display shows a batch as it progresses.
type Display interface {
	// Render prints the records in st. It is fed LatestState diffs, so
	// records missing from st are left as they were.
	Render(st download.OverallState)
	// Summary prints a final table of every record.
	Summary(st download.OverallState)
	// Print writes a plain message.
	Print(msg string)
	// SetVerbose includes unchanged progress lines and speed details.
	SetVerbose(v bool)
}
