package services

import (
	"context"
	"sort"

	"github.com/soaringjerry/whenwhy/internal/models"
)

type AnalyticsStore interface {
	ListParticipants(ctx context.Context) ([]*models.Participant, error)
}

type AnalyticsService struct {
	store AnalyticsStore
}

// ScaleSummary describes one multi-item questionnaire scale.
type ScaleSummary struct {
	Items      [][]int `json:"histograms"`
	Mean       float64 `json:"mean"`
	Alpha      float64 `json:"alpha"`
	N          int     `json:"n"`
	Incomplete int     `json:"incomplete"`
}

type ConditionSummary struct {
	Condition     models.Condition `json:"condition"`
	Sessions      int              `json:"sessions"`
	MeanIdeas     float64          `json:"meanIdeas"`
	Agency        ScaleSummary     `json:"agency"`
	CognitiveLoad ScaleSummary     `json:"cognitiveLoad"`
	Dependence    []int            `json:"dependence"`
}

type AnalyticsTimeseries struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type AnalyticsSummary struct {
	Participants int                   `json:"participants"`
	Conditions   []ConditionSummary    `json:"conditions"`
	Timeseries   []AnalyticsTimeseries `json:"timeseries"`
}

func NewAnalyticsService(store AnalyticsStore) *AnalyticsService {
	return &AnalyticsService{store: store}
}

// Summary groups completed sessions by condition and summarizes their
// questionnaires. Conditions are reported in the fixed 2x2 order.
func (s *AnalyticsService) Summary(ctx context.Context) (*AnalyticsSummary, error) {
	ps, err := s.store.ListParticipants(ctx)
	if err != nil {
		return nil, err
	}
	byCond := map[models.Condition][]*models.Session{}
	countsByDay := map[string]int{}
	for _, p := range ps {
		for i := range p.Sessions {
			sess := &p.Sessions[i]
			countsByDay[sess.StartTime.UTC().Format("2006-01-02")]++
			if !sess.Completed {
				continue
			}
			byCond[sess.Condition] = append(byCond[sess.Condition], sess)
		}
	}
	out := &AnalyticsSummary{
		Participants: len(ps),
		Conditions:   make([]ConditionSummary, 0, len(baseConditions)),
		Timeseries:   buildTimeseries(countsByDay),
	}
	for _, c := range baseConditions {
		out.Conditions = append(out.Conditions, summarizeCondition(c, byCond[c]))
	}
	return out, nil
}

func summarizeCondition(c models.Condition, sessions []*models.Session) ConditionSummary {
	cs := ConditionSummary{
		Condition:  c,
		Sessions:   len(sessions),
		Dependence: make([]int, LikertMax),
	}
	var agency, load [][]int
	ideas := 0
	for _, sess := range sessions {
		ideas += len(sess.Ideas)
		q := sess.Questionnaire
		if q == nil {
			continue
		}
		agency = append(agency, q.Agency)
		load = append(load, q.CognitiveLoad)
		if onLikert(q.Dependence) {
			cs.Dependence[q.Dependence-1]++
		}
	}
	if len(sessions) > 0 {
		cs.MeanIdeas = float64(ideas) / float64(len(sessions))
	}
	cs.Agency = summarizeScale(agency, AgencyItems)
	cs.CognitiveLoad = summarizeScale(load, LoadItems)
	return cs
}

// summarizeScale builds per-item histograms from every answer in range and
// computes mean and alpha over the rows that answered all k items.
func summarizeScale(rows [][]int, k int) ScaleSummary {
	sum := ScaleSummary{Items: make([][]int, k)}
	for i := range sum.Items {
		sum.Items[i] = make([]int, LikertMax)
	}
	matrix := make([][]float64, 0, len(rows))
	var total float64
	for _, row := range rows {
		complete := len(row) == k
		for i, v := range row {
			if i >= k || v < LikertMin || v > LikertMax {
				complete = false
				continue
			}
			sum.Items[i][v-1]++
		}
		if !complete {
			sum.Incomplete++
			continue
		}
		r := make([]float64, k)
		for i, v := range row {
			r[i] = float64(v)
			total += float64(v)
		}
		matrix = append(matrix, r)
	}
	sum.N = len(matrix)
	if sum.N > 0 {
		sum.Mean = total / float64(sum.N*k)
	}
	sum.Alpha = CronbachAlpha(matrix)
	return sum
}

func buildTimeseries(counts map[string]int) []AnalyticsTimeseries {
	days := make([]string, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Strings(days)
	out := make([]AnalyticsTimeseries, 0, len(days))
	for _, d := range days {
		out = append(out, AnalyticsTimeseries{Date: d, Count: counts[d]})
	}
	return out
}
