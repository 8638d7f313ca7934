package console

import (
	"encoding/json"
	"fmt"
	"io"
	"wa-blaster/internal/entity"
)

// Render prints a command result for a human.
func Render(w io.Writer, result entity.Result) {
	if !result.OK {
		fmt.Fprintf(w, "Failed: %s", result.Error)
		if result.Code != "" {
			fmt.Fprintf(w, " (%s)", result.Code)
		}
		fmt.Fprintln(w)

		return
	}

	switch data := result.Data.(type) {
	case *entity.BatchResult:
		renderOutcomes(w, data.Results)
		fmt.Fprintf(w, "%s (batch %s)\n", data.Summary, data.ID)

	case *entity.Report:
		fmt.Fprintf(w, "Batch %s (%s) started %s\n", data.ID, data.Kind, data.StartedAt.Local().Format("2006-01-02 15:04:05"))
		renderOutcomes(w, data.Results)
		fmt.Fprintln(w, data.Summary())

	case entity.Status:
		switch {
		case data.Error != "":
			fmt.Fprintf(w, "Status unknown: %s\n", data.Error)
		case !data.IsOpen:
			fmt.Fprintln(w, "WhatsApp Web is not open")
		case !data.IsAuthenticated:
			fmt.Fprintln(w, "WhatsApp Web is open, scan the QR code to log in")
		default:
			fmt.Fprintln(w, "WhatsApp Web is open and logged in")
		}

	case []entity.Group:
		fmt.Fprintf(w, "%d groups\n", len(data))
		for _, g := range data {
			fmt.Fprintf(w, "  %s\n", g.Name)
		}

	case entity.LabelsResult:
		if !data.IsBusinessSupported {
			fmt.Fprintln(w, "Labels need a WhatsApp Business account")
			return
		}

		for _, l := range data.Labels {
			fmt.Fprintf(w, "  %s (%d chats)\n", l.Name, len(l.Chats))
		}

	case []entity.Contact:
		fmt.Fprintf(w, "%d contacts\n", len(data))
		for _, c := range data {
			fmt.Fprintf(w, "  %-30s %s\n", c.Name, c.Phone)
		}

	case entity.Settings:
		fmt.Fprintf(w, "Auto-reply: %t\n  template: %s\nWelcome message: %s\n",
			data.AutoReplyEnabled, data.AutoReplyTemplate, data.WelcomeMessage)

	case []entity.ReportSummary:
		if len(data) == 0 {
			fmt.Fprintln(w, "No batches yet")
			return
		}

		for _, r := range data {
			fmt.Fprintf(w, "  %s  %-6s sent %d, failed %d, invalid %d  (%s)\n",
				r.StartedAt.Local().Format("2006-01-02 15:04"), r.Kind,
				r.Counts.Success, r.Counts.Failed, r.Counts.Invalid, r.ID)
		}

	default:
		raw, err := json.MarshalIndent(result.Data, "", "  ")
		if err != nil {
			fmt.Fprintf(w, "%v\n", result.Data)
			return
		}

		fmt.Fprintln(w, string(raw))
	}
}

func renderOutcomes(w io.Writer, outcomes []entity.SendOutcome) {
	for n, o := range outcomes {
		line := fmt.Sprintf("%3d. %-8s %s", n+1, o.Status, o.Recipient)
		if o.Error != "" {
			line += "  " + o.Error
		}
		fmt.Fprintln(w, line)
	}
}
