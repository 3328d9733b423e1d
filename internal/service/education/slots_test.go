package education

import "testing"

func TestExtractSlotsGradeNumberForms(t *testing.T) {
	if updates := extractSlots("schools for grade 10"); updates[SlotGradeLevel] != "10" {
		t.Fatalf("expected 10, got %q", updates[SlotGradeLevel])
	}
	if updates := extractSlots("my kid starts 5th grade"); updates[SlotGradeLevel] != "5" {
		t.Fatalf("expected 5, got %q", updates[SlotGradeLevel])
	}
}

func TestExtractSlotsKindergartenWinsOverDigits(t *testing.T) {
	updates := extractSlots("kindergarten options near riverside")

	if updates[SlotGradeLevel] != "kindergarten" {
		t.Fatalf("expected kindergarten, got %q", updates[SlotGradeLevel])
	}
	if updates[SlotLocation] != "riverside" {
		t.Fatalf("expected riverside, got %q", updates[SlotLocation])
	}
}

func TestExtractSlotsGradeAndLocationTogether(t *testing.T) {
	updates := extractSlots("grade 3 schools in old town")

	if updates[SlotGradeLevel] != "3" {
		t.Fatalf("expected 3, got %q", updates[SlotGradeLevel])
	}
	if updates[SlotLocation] != "old town" {
		t.Fatalf("expected old town, got %q", updates[SlotLocation])
	}
}

func TestExtractSlotsNothingMentioned(t *testing.T) {
	if updates := extractSlots("what can you do"); len(updates) != 0 {
		t.Fatalf("expected no updates, got %v", updates)
	}
}
