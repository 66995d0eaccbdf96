package gm

import (
	"strings"

	"github.com/mtzanidakis/agency/internal/model"
	"github.com/mtzanidakis/agency/internal/registry"
)

// Keyword heuristics for task classification. Users write in Chinese or
// English, so both keyword sets are matched against the lowercased
// description.
var typeKeywords = []struct {
	taskType model.TaskType
	words    []string
}{
	{model.TaskCoding, []string{"开发", "代码", "api", "网站", "coding", "implement", "develop"}},
	{model.TaskWriting, []string{"写", "文章", "书", "博客", "writing", "write", "blog"}},
	{model.TaskResearch, []string{"调研", "分析", "研究", "research", "investigate"}},
	{model.TaskReview, []string{"审查", "审核", "review", "audit"}},
	{model.TaskDeployment, []string{"部署", "发布", "deploy", "release"}},
}

var complexIndicators = []string{
	"系统", "架构", "分布式", "微服务", "大规模",
	"高可用", "多语言", "跨平台", "集成", "迁移",
	"architecture", "distributed", "microservice", "migration",
}

var criticalIndicators = []string{
	"生产环境", "紧急", "关键", "核心", "不可中断",
	"production", "urgent", "critical",
}

var hoursByComplexity = map[model.Complexity]int{
	model.ComplexityLow:      2,
	model.ComplexityMedium:   8,
	model.ComplexityHigh:     24,
	model.ComplexityCritical: 72,
}

var skillsByType = map[model.TaskType][]string{
	model.TaskCoding:     {"coding", "testing", "git"},
	model.TaskWriting:    {"writing", "editing"},
	model.TaskResearch:   {"research", "analysis"},
	model.TaskReview:     {"review", "analysis"},
	model.TaskDeployment: {"devops", "ci-cd"},
	model.TaskAnalysis:   {"analysis", "data-processing"},
}

var budgetMultiplier = map[model.Complexity]int64{
	model.ComplexityLow:      1,
	model.ComplexityMedium:   3,
	model.ComplexityHigh:     10,
	model.ComplexityCritical: 50,
}

// AnalyzeTask classifies a task and judges feasibility. Deterministic
// for a fixed description. CanDo false carries a reason; callers must
// not proceed to appointment.
func (g *GM) AnalyzeTask(task model.Task) model.Analysis {
	taskType := identifyTaskType(task.Description)
	complexity := assessComplexity(task.Description)
	skills := requiredSkills(taskType)
	resources := requiredResources(taskType, complexity)

	canDo := len(g.registry.MatchWorker(registry.WorkerRequirements{Skills: skills})) > 0

	a := model.Analysis{
		Type:              taskType,
		Complexity:        complexity,
		EstimatedHours:    hoursByComplexity[complexity],
		RequiredSkills:    skills,
		RequiredResources: resources,
		CanDo:             canDo,
	}
	if !canDo {
		a.Reason = "no available skills for " + string(taskType) + " tasks"
	}
	return a
}

func identifyTaskType(description string) model.TaskType {
	lower := strings.ToLower(description)
	for _, entry := range typeKeywords {
		for _, w := range entry.words {
			if strings.Contains(lower, w) {
				return entry.taskType
			}
		}
	}
	return model.TaskUnknown
}

func assessComplexity(description string) model.Complexity {
	lower := strings.ToLower(description)

	for _, ind := range criticalIndicators {
		if strings.Contains(lower, strings.ToLower(ind)) {
			return model.ComplexityCritical
		}
	}
	for _, ind := range complexIndicators {
		if strings.Contains(lower, strings.ToLower(ind)) {
			return model.ComplexityHigh
		}
	}

	wordCount := len(strings.Fields(description))
	if wordCount > 100 || strings.Contains(description, "多个") || strings.Contains(description, "复杂") {
		return model.ComplexityMedium
	}
	return model.ComplexityLow
}

func requiredSkills(taskType model.TaskType) []string {
	if skills, ok := skillsByType[taskType]; ok {
		return skills
	}
	return []string{}
}

// Every task needs an LLM. Coding additionally needs shell/file/browser,
// high and critical complexity additionally needs a database.
func requiredResources(taskType model.TaskType, complexity model.Complexity) []string {
	resources := []string{"llm"}
	if taskType == model.TaskCoding {
		resources = append(resources, "shell", "file", "browser")
	}
	if complexity == model.ComplexityHigh || complexity == model.ComplexityCritical {
		resources = append(resources, "database")
	}
	return resources
}
