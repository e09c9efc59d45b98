package services

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"
	"time"

	"github.com/soaringjerry/whenwhy/internal/models"
)

// ExportIdeasCSV renders one row per submitted idea across all sessions.
func ExportIdeasCSV(ps []*models.Participant) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"participant_id", "session_id", "task_id", "timing", "reflection", "idea_id", "content", "ai_influenced", "ai_suggestion_id", "submitted_at"})
	for _, p := range sortedParticipants(ps) {
		for _, s := range p.Sessions {
			for _, idea := range s.Ideas {
				rec := []string{
					p.ParticipantID,
					s.SessionID,
					strconv.Itoa(s.TaskID),
					string(s.Condition.Timing),
					string(s.Condition.Reflection),
					idea.ID,
					idea.Content,
					strconv.FormatBool(idea.AIInfluenced),
					idea.AISuggestionID,
					idea.Timestamp.UTC().Format(time.RFC3339),
				}
				if err := w.Write(rec); err != nil {
					return nil, err
				}
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportQuestionnaireCSV renders a wide CSV with one row per completed
// session and one column per questionnaire item.
func ExportQuestionnaireCSV(ps []*models.Participant) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := []string{"participant_id", "task_id", "timing", "reflection", "ideas", "duration"}
	for i := 1; i <= AgencyItems; i++ {
		header = append(header, "agency_"+strconv.Itoa(i))
	}
	header = append(header, "dependence")
	for i := 1; i <= LoadItems; i++ {
		header = append(header, "cognitive_load_"+strconv.Itoa(i))
	}
	_ = w.Write(header)
	for _, p := range sortedParticipants(ps) {
		for _, s := range p.Sessions {
			if s.Questionnaire == nil {
				continue
			}
			row := []string{p.ParticipantID, strconv.Itoa(s.TaskID), string(s.Condition.Timing), string(s.Condition.Reflection), strconv.Itoa(len(s.Ideas)), ""}
			if d := SessionDuration(s.StartTime, s.EndTime); d != nil {
				row[5] = strconv.Itoa(*d)
			}
			row = append(row, padScores(s.Questionnaire.Agency, AgencyItems)...)
			row = append(row, strconv.Itoa(s.Questionnaire.Dependence))
			row = append(row, padScores(s.Questionnaire.CognitiveLoad, LoadItems)...)
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func padScores(vals []int, n int) []string {
	out := make([]string, n)
	for i := 0; i < n && i < len(vals); i++ {
		out[i] = strconv.Itoa(vals[i])
	}
	return out
}

func sortedParticipants(ps []*models.Participant) []*models.Participant {
	out := append([]*models.Participant(nil), ps...)
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out
}
