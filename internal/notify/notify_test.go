package notify

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"batch-agent/internal/config"
	"batch-agent/pkg/types"
)

func TestRecipients(t *testing.T) {
	fallback := []string{"ops@example.com"}

	tests := []struct {
		name   string
		result *types.JobResultItem
		want   []string
	}{
		{"nil result", nil, fallback},
		{"no admin", &types.JobResultItem{}, fallback},
		{"single admin", &types.JobResultItem{AdminEmail: "dev@example.com"}, []string{"dev@example.com"}},
		{"admin list", &types.JobResultItem{AdminEmail: "a@example.com, b@example.com"}, []string{"a@example.com", "b@example.com"}},
		{"blank admin", &types.JobResultItem{AdminEmail: " , "}, fallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Recipients(Incident{Result: tt.result}, fallback)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Recipients() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRenderBody(t *testing.T) {
	inc := Incident{
		Host:   "batch01:9100",
		Result: &types.JobResultItem{ProgramID: "PRM<01>", Status: types.StatusFail, Order: 2},
		Err:    errors.New("connection refused"),
	}

	body, err := RenderBody(inc)
	if err != nil {
		t.Fatalf("RenderBody() error = %v", err)
	}

	for _, want := range []string{"batch01:9100", "PRM&lt;01&gt;", "batPrmStCd=FAIL", "connection refused"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestRenderBody_NilResult(t *testing.T) {
	body, err := RenderBody(Incident{Host: "h:1"})
	if err != nil {
		t.Fatalf("RenderBody() error = %v", err)
	}
	if !strings.Contains(body, "Result - null") {
		t.Errorf("body = %q, want null result", body)
	}
}

func TestMailNotifier_BuildMessage(t *testing.T) {
	n := NewMailNotifier(config.Mail{From: "agent@example.com", SMTPHost: "localhost", SMTPPort: 25}, []string{"ops@example.com"})

	msg, err := n.buildMessage(Incident{Result: &types.JobResultItem{AdminEmail: "dev@example.com"}})
	if err != nil {
		t.Fatalf("buildMessage() error = %v", err)
	}
	rcpts, err := msg.GetRecipients()
	if err != nil {
		t.Fatalf("GetRecipients() error = %v", err)
	}
	if !reflect.DeepEqual(rcpts, []string{"dev@example.com"}) {
		t.Errorf("recipients = %v, want [dev@example.com]", rcpts)
	}
}

func TestMailNotifier_NoRecipients(t *testing.T) {
	n := NewMailNotifier(config.Mail{From: "agent@example.com", SMTPHost: "localhost"}, nil)

	err := n.Notify(context.Background(), Incident{Result: &types.JobResultItem{}})
	if !errors.Is(err, ErrNoRecipients) {
		t.Errorf("Notify() error = %v, want ErrNoRecipients", err)
	}
}

func TestNew(t *testing.T) {
	if _, ok := New(config.Agent{}).(*LogNotifier); !ok {
		t.Error("New() without SMTP should return a LogNotifier")
	}

	cfg := config.Agent{Mail: config.Mail{From: "agent@example.com", SMTPHost: "smtp.example.com"}}
	if _, ok := New(cfg).(*MailNotifier); !ok {
		t.Error("New() with SMTP should return a MailNotifier")
	}
}

func TestLogNotifier(t *testing.T) {
	err := NewLogNotifier().Notify(context.Background(), Incident{Host: "h:1", Err: errors.New("boom")})
	if err != nil {
		t.Errorf("Notify() error = %v, want nil", err)
	}
}
