package services

import "github.com/soaringjerry/whenwhy/internal/models"

// Dataset slots 1..4 back the main tasks, 5 and 6 the transfer tasks.
const (
	FirstTransferDataset = 5
	TransferTaskCount    = 2
)

var datasets = map[int]models.Dataset{
	1: {
		ID:          1,
		Title:       "Health Insurance Claims Dataset",
		Description: "A comprehensive healthcare dataset containing patient demographics (age, gender, location), treatment costs, diagnosis codes (ICD-10), physician specialties, insurance plan types, claim approval rates, and treatment outcomes. The dataset spans 3 years and includes 50,000+ patient records from a regional insurance network.",
		Variables:   []string{"patient_age", "gender", "location", "diagnosis_code", "treatment_cost", "physician_specialty", "insurance_plan", "claim_status", "treatment_outcome", "hospital_type"},
	},
	2: {
		ID:          2,
		Title:       "University Student Success Dataset",
		Description: "Educational data tracking student progression through a 4-year computer science program. Includes demographics, course grades, study habits, extracurricular activities, financial aid status, housing arrangements, and graduation outcomes. Contains records for 8,000 students over 10 years.",
		Variables:   []string{"student_id", "demographics", "gpa_by_semester", "course_grades", "study_hours", "extracurriculars", "financial_aid", "housing_type", "graduation_status", "time_to_degree"},
	},
	3: {
		ID:          3,
		Title:       "E-commerce Customer Behavior Dataset",
		Description: "Online retail platform data capturing customer purchase patterns, browsing behavior, product interactions, and demographic information. Includes session data, cart abandonment, product reviews, seasonal trends, and customer lifetime value metrics from 100,000+ customers.",
		Variables:   []string{"customer_id", "session_duration", "pages_viewed", "products_clicked", "cart_items", "purchase_amount", "review_ratings", "return_frequency", "seasonal_activity", "device_type"},
	},
	4: {
		ID:          4,
		Title:       "Climate and Environmental Monitoring Dataset",
		Description: "Multi-sensor environmental data from urban monitoring stations tracking air quality, temperature, humidity, precipitation, wind patterns, and pollution levels. Includes traffic density, industrial activity, and vegetation indices across 50 monitoring locations over 5 years.",
		Variables:   []string{"station_id", "temperature", "humidity", "air_quality_index", "pollution_levels", "wind_speed", "precipitation", "traffic_density", "vegetation_index", "industrial_activity"},
	},
	5: {
		ID:          5,
		Title:       "Social Media Engagement Dataset",
		Description: "Platform analytics data examining user engagement patterns, content performance, and community interactions. Includes post metrics, user demographics, engagement timing, content categories, and viral spread patterns from a social platform with 1M+ active users.",
		Variables:   []string{"user_id", "post_type", "engagement_rate", "follower_count", "posting_frequency", "content_category", "interaction_type", "time_of_day", "hashtag_usage", "viral_coefficient"},
	},
	6: {
		ID:          6,
		Title:       "Urban Transportation Dataset",
		Description: "City-wide transportation data combining public transit usage, traffic patterns, ride-sharing services, and pedestrian flows. Includes route efficiency, peak hour analysis, weather impact, and accessibility metrics across different neighborhoods and transportation modes.",
		Variables:   []string{"route_id", "passenger_count", "travel_time", "delay_minutes", "weather_conditions", "peak_hours", "transportation_mode", "neighborhood", "accessibility_score", "cost_efficiency"},
	},
}

// DatasetByID returns a copy of the dataset for a task slot.
func DatasetByID(id int) (models.Dataset, error) {
	ds, ok := datasets[id]
	if !ok {
		return models.Dataset{}, ErrDatasetNotFound
	}
	ds.Variables = append([]string(nil), ds.Variables...)
	return ds, nil
}

// Datasets returns the whole catalog keyed by task slot.
func Datasets() map[int]models.Dataset {
	out := make(map[int]models.Dataset, len(datasets))
	for id := range datasets {
		ds, _ := DatasetByID(id)
		out[id] = ds
	}
	return out
}
