package utils

// Server-side messages are limited to error keys returned by the API.
// Everything else is rendered by the client.

var translations = map[string]map[string]string{
	"en": {
		"health.ok": "ok",

		"request.invalid_json": "The request body is not valid JSON.",
		"request.unauthorized": "Authentication required.",
		"server.error":         "Something went wrong. Please try again.",

		"participant.not_found":         "Participant not found.",
		"participant.exists":            "Participant already exists.",
		"session.not_found":             "Session not found.",
		"session.invalid_condition":     "Unknown study condition.",
		"session.ideas_append_only":     "Saved ideas cannot be changed or removed.",
		"session.suggestion_flags":      "A suggestion cannot be both accepted and dismissed.",
		"session.suggestion_reverted":   "An answered suggestion cannot be changed.",
		"session.already_completed":     "This session is already complete.",
		"dataset.not_found":             "Dataset not found.",
		"dataset.invalid_task":          "Invalid task ID.",
		"interaction.action_required":   "An interaction needs an action.",
		"transfer.too_many_tasks":       "At most two transfer tasks can be saved.",
		"study.wrong_phase":             "This step is not available right now.",
		"study.condition_order_missing": "No condition order has been assigned.",

		"idea.empty":                "Please enter an idea before submitting.",
		"rationale.too_short":       "Please explain your reasoning in at least 20 characters.",
		"rationale.no_pending_idea": "There is no idea waiting for a rationale.",
		"suggestion.unknown":        "That suggestion is no longer shown.",
		"suggestion.resolved":       "That suggestion was already answered.",
		"task.invalid_state":        "That action is not available at the moment.",
		"task.not_active":           "The task is not running.",
		"task.already_active":       "A task is already in progress.",
		"export.unknown_kind":       "Unknown export table.",
		"ai.generation_failed":      "Failed to generate suggestions",

		"validation.age_range":                "Age must be between 18 and 100.",
		"validation.gender_required":          "Please select a gender option.",
		"validation.academic_level_required":  "Please select your academic level.",
		"validation.major_required":           "Please enter your major.",
		"validation.likert_range":             "Ratings must be between 1 and 7.",
		"validation.questionnaire_incomplete": "Please answer every question.",
		"validation.ranking_permutation":      "Rank each condition exactly once from 1 to 4.",
	},
	"zh": {
		"health.ok": "好的",

		"request.invalid_json": "请求内容不是有效的 JSON。",
		"request.unauthorized": "需要登录。",
		"server.error":         "出现错误，请重试。",

		"participant.not_found":         "未找到参与者。",
		"participant.exists":            "参与者已存在。",
		"session.not_found":             "未找到会话。",
		"session.invalid_condition":     "未知的实验条件。",
		"session.ideas_append_only":     "已保存的想法不能修改或删除。",
		"session.suggestion_flags":      "建议不能同时被采纳和忽略。",
		"session.suggestion_reverted":   "已回应的建议不能更改。",
		"session.already_completed":     "该会话已完成。",
		"dataset.not_found":             "未找到数据集。",
		"dataset.invalid_task":          "无效的任务编号。",
		"interaction.action_required":   "交互记录缺少动作。",
		"transfer.too_many_tasks":       "最多只能保存两个迁移任务。",
		"study.wrong_phase":             "当前无法进行此步骤。",
		"study.condition_order_missing": "尚未分配实验条件顺序。",

		"idea.empty":                "请先输入想法再提交。",
		"rationale.too_short":       "请用至少 20 个字符说明你的理由。",
		"rationale.no_pending_idea": "没有等待说明理由的想法。",
		"suggestion.unknown":        "该建议已不再显示。",
		"suggestion.resolved":       "该建议已被处理。",
		"task.invalid_state":        "当前无法执行该操作。",
		"task.not_active":           "任务未在进行中。",
		"task.already_active":       "已有任务正在进行。",
		"export.unknown_kind":       "未知的导出表。",
		"ai.generation_failed":      "生成建议失败",

		"validation.age_range":                "年龄必须在 18 到 100 岁之间。",
		"validation.gender_required":          "请选择性别。",
		"validation.academic_level_required":  "请选择学历层次。",
		"validation.major_required":           "请填写专业。",
		"validation.likert_range":             "评分必须在 1 到 7 之间。",
		"validation.questionnaire_incomplete": "请回答所有问题。",
		"validation.ranking_permutation":      "请为每个条件从 1 到 4 各排一次名。",
	},
}

// T returns the translated string for key in locale; falls back to English,
// then to the key itself.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if m, ok := translations["en"]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return key
}
