package services

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/soaringjerry/whenwhy/internal/models"
)

type participantList []*models.Participant

func (l participantList) ListParticipants(context.Context) ([]*models.Participant, error) {
	return l, nil
}

func completedSession(c models.Condition, start time.Time, ideas int, q *models.Questionnaire) models.Session {
	s := models.Session{Condition: c, StartTime: start, Completed: q != nil, Questionnaire: q}
	for i := 0; i < ideas; i++ {
		s.Ideas = append(s.Ideas, models.Idea{Content: "idea"})
	}
	return s
}

func TestAnalyticsSummaryByCondition(t *testing.T) {
	day1 := time.Date(2025, 9, 18, 10, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	jit := baseConditions[0]
	ps := participantList{
		{ParticipantID: "P001", Sessions: []models.Session{
			completedSession(jit, day1, 3, &models.Questionnaire{Agency: []int{5, 5, 5, 5, 5, 5}, CognitiveLoad: []int{2, 3, 4}, Dependence: 4}),
			completedSession(baseConditions[1], day1, 1, nil),
		}},
		{ParticipantID: "P002", Sessions: []models.Session{
			completedSession(jit, day2, 1, &models.Questionnaire{Agency: []int{7, 7, 7, 7, 7, 7}, CognitiveLoad: []int{4, 5, 6}, Dependence: 6}),
		}},
	}
	got, err := NewAnalyticsService(ps).Summary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if got.Participants != 2 || len(got.Conditions) != ConditionCount {
		t.Fatalf("unexpected shape: %+v", got)
	}
	want := []AnalyticsTimeseries{{Date: "2025-09-18", Count: 2}, {Date: "2025-09-19", Count: 1}}
	if diff := cmp.Diff(want, got.Timeseries); diff != "" {
		t.Fatalf("timeseries mismatch (-want +got):\n%s", diff)
	}

	c := got.Conditions[0]
	if c.Condition != jit || c.Sessions != 2 || c.MeanIdeas != 2 {
		t.Fatalf("condition summary: %+v", c)
	}
	if c.Agency.N != 2 || c.Agency.Mean != 6 || c.Agency.Items[0][4] != 1 || c.Agency.Items[0][6] != 1 {
		t.Fatalf("agency summary: %+v", c.Agency)
	}
	if math.Abs(c.Agency.Alpha-1) > 1e-9 || math.Abs(c.CognitiveLoad.Alpha-1) > 1e-9 {
		t.Fatalf("parallel answers should be fully consistent: %f %f", c.Agency.Alpha, c.CognitiveLoad.Alpha)
	}
	if c.Dependence[3] != 1 || c.Dependence[5] != 1 {
		t.Fatalf("dependence histogram: %v", c.Dependence)
	}
	if open := got.Conditions[1]; open.Sessions != 0 || open.Agency.N != 0 {
		t.Fatalf("open sessions must not count: %+v", open)
	}
}

func TestSummarizeScaleSkipsIncompleteRows(t *testing.T) {
	sum := summarizeScale([][]int{{1, 2, 3}, {4, 9, 6}, {2, 2}}, LoadItems)
	if sum.N != 1 || sum.Incomplete != 2 {
		t.Fatalf("unexpected counts: %+v", sum)
	}
	// Answers in range still land in the histograms.
	if sum.Items[0][3] != 1 || sum.Items[1][1] != 2 {
		t.Fatalf("histograms: %v", sum.Items)
	}
	if sum.Mean != 2 || sum.Alpha != 0 {
		t.Fatalf("mean/alpha: %f %f", sum.Mean, sum.Alpha)
	}
}
