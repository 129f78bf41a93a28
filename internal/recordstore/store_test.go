package recordstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeBundle(t *testing.T, dir, name, patientID string) {
	t.Helper()
	content := `{
		"resourceType": "Bundle",
		"entry": [
			{"resource": {"resourceType": "Patient", "id": "` + patientID + `", "gender": "female"}},
			{"resource": {"resourceType": "Condition", "id": "c1", "code": {"text": "Hypertension"}}},
			{"resource": {"resourceType": "Condition", "id": "c2", "code": {"text": "Diabetes"}}},
			{"resource": {"resourceType": "Observation", "id": "o1"}}
		]
	}`
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(dir, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func TestLoadRecordByFilename(t *testing.T) {
	s, dir := newTestStore(t)
	writeBundle(t, dir, "p-100.json", "p-100")

	bundle, err := s.LoadRecord("p-100")
	if err != nil {
		t.Fatalf("LoadRecord failed: %v", err)
	}
	if bundle["resourceType"] != "Bundle" {
		t.Error("unexpected bundle content")
	}
}

func TestLoadRecordByScan(t *testing.T) {
	s, dir := newTestStore(t)
	// Filename does not follow any known pattern.
	writeBundle(t, dir, "weird_name.json", "p-200")

	if _, err := s.LoadRecord("p-200"); err != nil {
		t.Fatalf("scan fallback failed: %v", err)
	}
}

func TestLoadRecordNotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.LoadRecord("missing")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}

	var nf *RecordNotFoundError
	if !errors.As(err, &nf) || nf.PatientID != "missing" {
		t.Error("expected typed error with patient ID")
	}
}

func TestSearchFiltersByResourceType(t *testing.T) {
	s, dir := newTestStore(t)
	writeBundle(t, dir, "p-1.json", "p-1")

	bundle, err := s.LoadRecord("p-1")
	if err != nil {
		t.Fatal(err)
	}

	conditions := Search(bundle, "Condition")
	if len(conditions) != 2 {
		t.Errorf("expected 2 conditions, got %d", len(conditions))
	}
	allergies := Search(bundle, "AllergyIntolerance")
	if len(allergies) != 0 {
		t.Errorf("expected no allergies, got %d", len(allergies))
	}
}

func TestListPatientIDs(t *testing.T) {
	s, dir := newTestStore(t)
	writeBundle(t, dir, "a.json", "p-1")
	writeBundle(t, dir, "b.json", "p-2")
	writeBundle(t, dir, "c.json", "p-3")

	ids, err := s.ListPatientIDs(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Errorf("expected limit of 2 respected, got %d", len(ids))
	}

	all, err := s.ListPatientIDs(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 patients, got %d", len(all))
	}
}

func TestSkipsUnparseableFiles(t *testing.T) {
	s, dir := newTestStore(t)
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	writeBundle(t, dir, "ok.json", "p-9")

	ids, err := s.ListPatientIDs(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "p-9" {
		t.Errorf("expected only the valid bundle, got %v", ids)
	}
}
