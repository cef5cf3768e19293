// Package notify delivers incident reports to administrators when a job
// result cannot reach the management server.
package notify

import (
	"bytes"
	"context"
	"html/template"
	"strings"

	"github.com/rs/zerolog/log"

	"batch-agent/pkg/types"
)

// ReportFailureTitle is the subject of incidents raised for undeliverable results.
const ReportFailureTitle = "[AGENT SERVER] network error"

// Incident describes a result that could not be reported.
type Incident struct {
	// Host is the host:port identity of the agent.
	Host string

	// Result is the undeliverable result. It may be nil.
	Result *types.JobResultItem

	// Err is the reporting failure.
	Err error
}

// ProgramID returns the program of the failed result, or "" if unknown.
func (i Incident) ProgramID() string {
	if i.Result == nil {
		return ""
	}
	return i.Result.ProgramID
}

// AdminEmail returns the admin contact carried by the result.
func (i Incident) AdminEmail() string {
	if i.Result == nil {
		return ""
	}
	return i.Result.AdminEmail
}

// Notifier delivers incidents out of band.
type Notifier interface {
	Notify(ctx context.Context, inc Incident) error
}

// LogNotifier records incidents in the agent log. It is used when no mail
// transport is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify logs the incident at error level.
func (n *LogNotifier) Notify(ctx context.Context, inc Incident) error {
	ev := log.Error().
		Err(inc.Err).
		Str("host", inc.Host).
		Str("program_id", inc.ProgramID())
	if inc.Result != nil {
		ev = ev.Str("result", inc.Result.String())
	}
	ev.Msg(ReportFailureTitle)
	return nil
}

var incidentBody = template.Must(template.New("incident").Parse(
	`<h4>The execution result could not be sent because the batch management server was unreachable.</h4><br>` +
		`<p><strong>Host - {{.Host}}</strong></p>` +
		`<p><strong>Program ID - {{.ProgramID}}</strong></p>` +
		`<p><strong>Result - {{.ResultText}}</strong></p>` +
		`{{if .Error}}<p>Error - {{.Error}}</p>{{end}}`))

// RenderBody renders the HTML body of an incident message.
func RenderBody(inc Incident) (string, error) {
	data := struct {
		Host       string
		ProgramID  string
		ResultText string
		Error      string
	}{
		Host:      inc.Host,
		ProgramID: inc.ProgramID(),
	}
	if inc.Result != nil {
		data.ResultText = inc.Result.String()
	} else {
		data.ResultText = "null"
	}
	if inc.Err != nil {
		data.Error = inc.Err.Error()
	}

	var buf bytes.Buffer
	if err := incidentBody.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Recipients returns the admin contact of the incident if it carries one,
// otherwise the fallback list. Comma separated contacts are split.
func Recipients(inc Incident, fallback []string) []string {
	var out []string
	for _, addr := range strings.Split(inc.AdminEmail(), ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
