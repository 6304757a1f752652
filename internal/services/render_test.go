package services

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medclinic/rag-server/internal/types"
)

func TestRenderTreatmentSummaryText(t *testing.T) {
	created := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	followUp := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	summary := &types.TreatmentSummary{
		ID:               uuid.New(),
		Patient:          &types.User{FullName: "דנה לוי"},
		Diagnosis:        "אסתמה",
		TreatmentNotes:   "משאף ונטולין לפי הצורך.",
		Prescription:     "ונטולין 100 מקג",
		FollowUpRequired: true,
		FollowUpDate:     &followUp,
		CreatedAt:        created,
	}

	got := renderTreatmentSummaryText(summary)
	want := strings.Join([]string{
		"מטופל: דנה לוי",
		"תאריך: 2026-03-14",
		"אבחנה: אסתמה",
		"טיפול: משאף ונטולין לפי הצורך.",
		"מרשם: ונטולין 100 מקג",
		"מעקב נדרש: כן",
		"תאריך מעקב: 2026-04-01",
	}, "\n")
	if got != want {
		t.Fatalf("rendered summary mismatch:\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestRenderTreatmentSummarySkipsBlankFields(t *testing.T) {
	summary := &types.TreatmentSummary{
		Diagnosis:      "  ",
		TreatmentNotes: "מנוחה בלבד",
		CreatedAt:      time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}

	got := renderTreatmentSummaryText(summary)
	if strings.Contains(got, "אבחנה") {
		t.Fatalf("blank diagnosis should be omitted, got:\n%s", got)
	}
	if strings.Contains(got, "מעקב נדרש") {
		t.Fatalf("follow-up line should be omitted when not required, got:\n%s", got)
	}
	if !strings.Contains(got, "מטופל: לא ידוע") {
		t.Fatalf("missing patient should render the unknown label, got:\n%s", got)
	}
}

func TestRenderTranscriptionText(t *testing.T) {
	transcription := &types.Transcription{
		Patient:           &types.User{FullName: "יוסי כהן"},
		TranscriptionText: "המטופל מדווח על שיפור.",
		CreatedAt:         time.Date(2026, 5, 6, 0, 0, 0, 0, time.UTC),
	}

	got := renderTranscriptionText(transcription)
	want := "תמלול ביקור - מטופל: יוסי כהן\nתאריך: 2026-05-06\nהמטופל מדווח על שיפור."
	if got != want {
		t.Fatalf("rendered transcription mismatch:\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestRenderPatientText(t *testing.T) {
	patient := &types.User{FullName: "דנה לוי", Phone: "050-1234567", Email: "dana@example.com"}
	got := renderPatientText(patient)
	want := "שם מטופל: דנה לוי\nטלפון: 050-1234567\nאימייל: dana@example.com"
	if got != want {
		t.Fatalf("rendered patient mismatch:\nwant:\n%s\ngot:\n%s", want, got)
	}

	if got := renderPatientText(&types.User{FullName: " ", Phone: "", Email: ""}); got != "" {
		t.Fatalf("patient with no indexable fields should render empty, got %q", got)
	}
}
