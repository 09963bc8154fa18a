package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dalevision/edgesup/internal/history"
)

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

// renderHistory prints events as an aligned table, one per line, in the
// order given (the sink returns newest first).
func renderHistory(w io.Writer, events []history.Event) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tEVENT\tPID\tCODE\tCLASS\tDETAIL")
	for _, e := range events {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			e.OccurredAt.Local().Format(time.RFC3339), e.Type, e.PID, e.ExitCode, e.Class, e.Detail)
	}
	return tw.Flush()
}
