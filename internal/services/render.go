package services

import (
  "strings"

  "github.com/medclinic/rag-server/internal/types"
)

// chunkMetadata is the citation payload stored on every chunk: enough to
// show "which patient, which date" without re-reading the source record.
type chunkMetadata struct {
  Type        string `json:"type"`
  PatientName string `json:"patient_name"`
  Date        string `json:"date,omitempty"`
}

const unknownPatientLabel = "לא ידוע"

func patientDisplayName(patient *types.User) string {
  if patient == nil || strings.TrimSpace(patient.FullName) == "" {
    return unknownPatientLabel
  }
  return patient.FullName
}

// renderTreatmentSummaryText flattens a treatment summary into the plain-text
// document that gets chunked. Field order is fixed so re-indexing an
// unchanged record reproduces the exact same chunks.
func renderTreatmentSummaryText(summary *types.TreatmentSummary) string {
  var parts []string

  parts = append(parts, "מטופל: "+patientDisplayName(summary.Patient))
  parts = append(parts, "תאריך: "+summary.CreatedAt.Format("2006-01-02"))

  if strings.TrimSpace(summary.Diagnosis) != "" {
    parts = append(parts, "אבחנה: "+summary.Diagnosis)
  }
  if strings.TrimSpace(summary.TreatmentNotes) != "" {
    parts = append(parts, "טיפול: "+summary.TreatmentNotes)
  }
  if strings.TrimSpace(summary.Prescription) != "" {
    parts = append(parts, "מרשם: "+summary.Prescription)
  }
  if summary.FollowUpRequired {
    parts = append(parts, "מעקב נדרש: כן")
    if summary.FollowUpDate != nil {
      parts = append(parts, "תאריך מעקב: "+summary.FollowUpDate.Format("2006-01-02"))
    }
  }

  return strings.Join(parts, "\n")
}

func renderTranscriptionText(transcription *types.Transcription) string {
  var parts []string

  parts = append(parts, "תמלול ביקור - מטופל: "+patientDisplayName(transcription.Patient))
  parts = append(parts, "תאריך: "+transcription.CreatedAt.Format("2006-01-02"))

  if strings.TrimSpace(transcription.TranscriptionText) != "" {
    parts = append(parts, transcription.TranscriptionText)
  }

  return strings.Join(parts, "\n")
}

// renderPatientText returns "" when the record carries nothing worth
// indexing; the caller treats that as a render-empty failure.
func renderPatientText(patient *types.User) string {
  var parts []string

  if strings.TrimSpace(patient.FullName) != "" {
    parts = append(parts, "שם מטופל: "+patient.FullName)
  }
  if strings.TrimSpace(patient.Phone) != "" {
    parts = append(parts, "טלפון: "+patient.Phone)
  }
  if strings.TrimSpace(patient.Email) != "" {
    parts = append(parts, "אימייל: "+patient.Email)
  }

  return strings.Join(parts, "\n")
}
