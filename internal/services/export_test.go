package services

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/soaringjerry/whenwhy/internal/models"
)

func readCSV(t *testing.T, b []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(string(b))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	return rows
}

func TestExportIdeasCSV(t *testing.T) {
	b, err := ExportIdeasCSV([]*models.Participant{completedParticipant("P002"), {ParticipantID: "P001"}})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	rows := readCSV(t, b)
	if len(rows) != 3 {
		t.Fatalf("want header plus 2 ideas, got %d rows", len(rows))
	}
	if rows[0][0] != "participant_id" || rows[0][6] != "content" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[2][6] != "Claims by plan, region" || rows[2][7] != "true" || rows[2][8] != "g1_0" {
		t.Fatalf("unexpected idea row: %v", rows[2])
	}
	if rows[1][3] != "jit" || rows[1][4] != "required" {
		t.Fatalf("condition columns wrong: %v", rows[1])
	}
}

func TestExportQuestionnaireCSV(t *testing.T) {
	b, err := ExportQuestionnaireCSV([]*models.Participant{completedParticipant("P001")})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	rows := readCSV(t, b)
	if len(rows) != 2 {
		t.Fatalf("only answered sessions are exported, got %d rows", len(rows))
	}
	header, row := rows[0], rows[1]
	if len(header) != 6+AgencyItems+1+LoadItems || len(row) != len(header) {
		t.Fatalf("unexpected width: header=%d row=%d", len(header), len(row))
	}
	if header[6] != "agency_1" || header[12] != "dependence" || header[15] != "cognitive_load_3" {
		t.Fatalf("unexpected header: %v", header)
	}
	if row[4] != "2" || row[5] != "612" || row[6] != "5" || row[12] != "3" || row[15] != "2" {
		t.Fatalf("unexpected row: %v", row)
	}
}
