package notify

import (
	"strings"
	"testing"
)

func TestChooseObjectEmail_EncodesAddress(t *testing.T) {
	subject, body := ChooseObjectEmail("https://cleaning.example", "ivan+test@firm.com")
	if subject != SubjectChooseObject {
		t.Fatalf("subject: %q", subject)
	}
	if !strings.Contains(body, "https://cleaning.example/choose-object?email=ivan%2Btest%40firm.com") {
		t.Fatalf("link not encoded: %s", body)
	}
}

func TestTaskRef(t *testing.T) {
	if got := TaskRef("0123456789abcdef"); got != "01234567" {
		t.Fatalf("TaskRef long: %q", got)
	}
	if got := TaskRef("short"); got != "short" {
		t.Fatalf("TaskRef short: %q", got)
	}
}

func TestTaskCreatedEmail_UsesShortRef(t *testing.T) {
	_, body := TaskCreatedEmail("Офис", "abcdefgh-rest-of-uuid")
	if !strings.Contains(body, "abcdefgh") {
		t.Fatalf("ref missing: %s", body)
	}
	if strings.Contains(body, "rest-of-uuid") {
		t.Fatalf("full id leaked: %s", body)
	}
}

func TestEscapeHTML(t *testing.T) {
	if got := EscapeHTML(`<b>"x" & y</b>`); strings.ContainsAny(got, "<>") {
		t.Fatalf("tags survived: %q", got)
	}
}

func TestStartPromptText_ContainsID(t *testing.T) {
	if got := StartPromptText("12345"); !strings.Contains(got, "12345") {
		t.Fatalf("id missing: %q", got)
	}
}

func TestTelegramTexts_EscapeUserInput(t *testing.T) {
	got := SearchNoResultsText("<script>")
	if strings.Contains(got, "<script>") {
		t.Fatalf("unescaped input: %q", got)
	}
	got = ManagerAlertText("Obj", "<b>title</b>", "task1234")
	if strings.Contains(got, "<b>title</b>") {
		t.Fatalf("unescaped title: %q", got)
	}
}
