package registry

import (
	"time"

	"github.com/mtzanidakis/agency/internal/model"
)

// builtinTemplates is the fixed catalog loaded at startup. Fixed ids
// keep Initialize idempotent across restarts.
func builtinTemplates() []*model.AgentTemplate {
	now := time.Now()

	tpl := func(id, name, category, description string, rating float64, tags []string, cfg model.AgentConfig) *model.AgentTemplate {
		return &model.AgentTemplate{
			ID:          id,
			Name:        name,
			Category:    category,
			Description: description,
			Config:      cfg,
			Version:     "1.0.0",
			Author:      "agency",
			Rating:      rating,
			Tags:        tags,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	return []*model.AgentTemplate{
		tpl("template-gm", "GM Agent", "core",
			"Top-level decision maker: analyzes tasks, appoints and reviews PMs",
			5.0, []string{"core", "management", "decision"},
			model.AgentConfig{
				Role: model.RoleGM,
				Tier: model.TierL3,
				LLM: model.LLMConfig{
					Model: "claude-opus",
					Quota: model.LLMQuota{
						MaxTokensPerRequest: 100_000,
						MaxTokensPerDay:     10_000_000,
						MaxRequestsPerMin:   100,
					},
				},
				Limits: model.Limits{
					MaxConcurrentTasks: 10,
					MaxTokensPerDay:    10_000_000,
					MaxExecutionTimeMs: 3_600_000,
					MaxMemoryMB:        2048,
				},
			}),

		tpl("template-assistant", "Assistant Agent", "core",
			"Sole human interaction entry point: parses intent, relays tasks and reports",
			5.0, []string{"core", "interaction", "user-facing"},
			model.AgentConfig{
				Role: model.RoleAssistant,
				Tier: model.TierL1,
				LLM: model.LLMConfig{
					Model: "glm-5",
					Quota: model.LLMQuota{
						MaxTokensPerRequest: 8000,
						MaxTokensPerDay:     500_000,
						MaxRequestsPerMin:   30,
					},
				},
				Skills: []model.SkillRef{
					{ID: "interaction", Name: "User Interaction", Version: "1.0.0", Category: "core"},
				},
				Limits: model.Limits{
					MaxConcurrentTasks: 1,
					MaxTokensPerDay:    500_000,
					MaxExecutionTimeMs: 60_000,
					MaxMemoryMB:        256,
				},
			}),

		tpl("template-platform-pm", "Platform PM", "core",
			"Permanent PM for platform work: builds agents, imports skills, maintains the ecosystem",
			5.0, []string{"core", "platform", "builder"},
			model.AgentConfig{
				Role: model.RolePlatformPM,
				Tier: model.TierL2,
				LLM: model.LLMConfig{
					Model: "claude-sonnet",
					Quota: model.LLMQuota{
						MaxTokensPerRequest: 50_000,
						MaxTokensPerDay:     5_000_000,
						MaxRequestsPerMin:   50,
					},
				},
				Skills: []model.SkillRef{
					{ID: "agent-builder", Name: "Agent Builder", Version: "1.0.0", Category: "platform"},
					{ID: "skill-importer", Name: "Skill Importer", Version: "1.0.0", Category: "platform"},
				},
				Limits: model.Limits{
					MaxConcurrentTasks: 5,
					MaxTokensPerDay:    5_000_000,
					MaxExecutionTimeMs: 1_800_000,
					MaxMemoryMB:        1024,
				},
			}),

		tpl("template-dev-pm", "Dev PM", "coding",
			"Project PM for development work: assembles dev teams and drives coding tasks",
			5.0, []string{"coding", "management", "project-pm"},
			model.AgentConfig{
				Role: model.RoleProjectPM,
				Tier: model.TierL2,
				LLM: model.LLMConfig{
					Model: "claude-sonnet",
					Quota: model.LLMQuota{
						MaxTokensPerRequest: 50_000,
						MaxTokensPerDay:     3_000_000,
						MaxRequestsPerMin:   30,
					},
				},
				Skills: []model.SkillRef{
					{ID: "team-builder", Name: "Team Builder", Version: "1.0.0", Category: "management"},
					{ID: "code-review", Name: "Code Review", Version: "1.0.0", Category: "coding"},
				},
				Knowledge: []model.KnowledgeRef{
					{ID: "coding-patterns", Name: "Coding Patterns", Type: "vector", Access: "read"},
				},
				Limits: model.Limits{
					MaxConcurrentTasks: 3,
					MaxTokensPerDay:    3_000_000,
					MaxExecutionTimeMs: 1_800_000,
					MaxMemoryMB:        1024,
				},
			}),

		tpl("template-writing-pm", "Writing PM", "writing",
			"Project PM for writing and documentation work",
			4.5, []string{"writing", "management", "project-pm"},
			model.AgentConfig{
				Role: model.RoleProjectPM,
				Tier: model.TierL2,
				LLM: model.LLMConfig{
					Model: "claude-sonnet",
					Quota: model.LLMQuota{
						MaxTokensPerRequest: 50_000,
						MaxTokensPerDay:     2_000_000,
						MaxRequestsPerMin:   30,
					},
				},
				Skills: []model.SkillRef{
					{ID: "team-builder", Name: "Team Builder", Version: "1.0.0", Category: "management"},
					{ID: "editing", Name: "Editing", Version: "1.0.0", Category: "writing"},
				},
				Knowledge: []model.KnowledgeRef{
					{ID: "writing-style", Name: "Writing Style", Type: "vector", Access: "read"},
				},
				Limits: model.Limits{
					MaxConcurrentTasks: 3,
					MaxTokensPerDay:    2_000_000,
					MaxExecutionTimeMs: 1_800_000,
					MaxMemoryMB:        512,
				},
			}),

		tpl("template-research-pm", "Research PM", "research",
			"Project PM for research and analysis work",
			4.5, []string{"research", "management", "project-pm"},
			model.AgentConfig{
				Role: model.RoleProjectPM,
				Tier: model.TierL2,
				LLM: model.LLMConfig{
					Model: "claude-sonnet",
					Quota: model.LLMQuota{
						MaxTokensPerRequest: 50_000,
						MaxTokensPerDay:     2_000_000,
						MaxRequestsPerMin:   30,
					},
				},
				Skills: []model.SkillRef{
					{ID: "team-builder", Name: "Team Builder", Version: "1.0.0", Category: "management"},
					{ID: "synthesis", Name: "Synthesis", Version: "1.0.0", Category: "research"},
				},
				Limits: model.Limits{
					MaxConcurrentTasks: 3,
					MaxTokensPerDay:    2_000_000,
					MaxExecutionTimeMs: 1_800_000,
					MaxMemoryMB:        512,
				},
			}),

		tpl("template-review-pm", "Review PM", "review",
			"Project PM for review and audit work",
			4.5, []string{"review", "management", "project-pm"},
			model.AgentConfig{
				Role: model.RoleProjectPM,
				Tier: model.TierL2,
				LLM: model.LLMConfig{
					Model: "claude-sonnet",
					Quota: model.LLMQuota{
						MaxTokensPerRequest: 50_000,
						MaxTokensPerDay:     2_000_000,
						MaxRequestsPerMin:   30,
					},
				},
				Skills: []model.SkillRef{
					{ID: "code-review", Name: "Code Review", Version: "1.0.0", Category: "coding"},
					{ID: "quality-audit", Name: "Quality Audit", Version: "1.0.0", Category: "review"},
				},
				Limits: model.Limits{
					MaxConcurrentTasks: 3,
					MaxTokensPerDay:    2_000_000,
					MaxExecutionTimeMs: 1_800_000,
					MaxMemoryMB:        512,
				},
			}),

		tpl("template-frontend-worker", "Frontend Worker", "worker",
			"Frontend development worker",
			4.5, []string{"worker", "frontend", "react", "typescript"},
			model.AgentConfig{
				Role: model.RoleWorker,
				Tier: model.TierWorker,
				LLM: model.LLMConfig{
					Model: "gpt-codex",
					Quota: model.LLMQuota{
						MaxTokensPerRequest: 16_000,
						MaxTokensPerDay:     500_000,
						MaxRequestsPerMin:   20,
					},
				},
				Tools: []model.ToolRef{
					{ID: "shell", Name: "Shell", Type: "shell"},
					{ID: "file", Name: "File System", Type: "file"},
					{ID: "browser", Name: "Browser", Type: "browser"},
				},
				Skills: []model.SkillRef{
					{ID: "react-dev", Name: "React Development", Version: "1.0.0", Category: "frontend", Tags: []string{"react", "javascript"}},
					{ID: "typescript-expert", Name: "TypeScript Expert", Version: "1.0.0", Category: "language", Tags: []string{"typescript"}},
				},
				Knowledge: []model.KnowledgeRef{
					{ID: "frontend-patterns", Name: "Frontend Patterns", Type: "vector", Access: "read"},
				},
				Limits: model.Limits{
					MaxConcurrentTasks: 1,
					MaxTokensPerDay:    500_000,
					MaxExecutionTimeMs: 600_000,
					MaxMemoryMB:        512,
				},
			}),

		tpl("template-backend-worker", "Backend Worker", "worker",
			"Backend development worker",
			4.5, []string{"worker", "backend", "python", "api"},
			model.AgentConfig{
				Role: model.RoleWorker,
				Tier: model.TierWorker,
				LLM: model.LLMConfig{
					Model: "gpt-codex",
					Quota: model.LLMQuota{
						MaxTokensPerRequest: 16_000,
						MaxTokensPerDay:     500_000,
						MaxRequestsPerMin:   20,
					},
				},
				Tools: []model.ToolRef{
					{ID: "shell", Name: "Shell", Type: "shell"},
					{ID: "file", Name: "File System", Type: "file"},
					{ID: "database", Name: "Database", Type: "database"},
				},
				Skills: []model.SkillRef{
					{ID: "python-expert", Name: "Python Expert", Version: "1.0.0", Category: "language", Tags: []string{"python"}},
					{ID: "api-dev", Name: "API Development", Version: "1.0.0", Category: "backend", Tags: []string{"api"}},
				},
				Knowledge: []model.KnowledgeRef{
					{ID: "backend-patterns", Name: "Backend Patterns", Type: "vector", Access: "read"},
				},
				Limits: model.Limits{
					MaxConcurrentTasks: 1,
					MaxTokensPerDay:    500_000,
					MaxExecutionTimeMs: 600_000,
					MaxMemoryMB:        512,
				},
			}),

		tpl("template-test-worker", "Test Worker", "worker",
			"Testing worker",
			4.0, []string{"worker", "testing", "pytest", "jest"},
			model.AgentConfig{
				Role: model.RoleWorker,
				Tier: model.TierWorker,
				LLM: model.LLMConfig{
					Model: "gemini-flash",
					Quota: model.LLMQuota{
						MaxTokensPerRequest: 8000,
						MaxTokensPerDay:     300_000,
						MaxRequestsPerMin:   30,
					},
				},
				Tools: []model.ToolRef{
					{ID: "shell", Name: "Shell", Type: "shell"},
					{ID: "file", Name: "File System", Type: "file"},
				},
				Skills: []model.SkillRef{
					{ID: "pytest", Name: "Pytest", Version: "1.0.0", Category: "testing", Tags: []string{"pytest", "python"}},
					{ID: "jest", Name: "Jest", Version: "1.0.0", Category: "testing", Tags: []string{"jest", "javascript"}},
				},
				Limits: model.Limits{
					MaxConcurrentTasks: 1,
					MaxTokensPerDay:    300_000,
					MaxExecutionTimeMs: 300_000,
					MaxMemoryMB:        256,
				},
			}),

		tpl("template-github-worker", "GitHub Worker", "worker",
			"GitHub collaboration worker",
			4.5, []string{"worker", "github", "git", "pr"},
			model.AgentConfig{
				Role: model.RoleWorker,
				Tier: model.TierWorker,
				LLM: model.LLMConfig{
					Model: "claude-sonnet",
					Quota: model.LLMQuota{
						MaxTokensPerRequest: 8000,
						MaxTokensPerDay:     200_000,
						MaxRequestsPerMin:   10,
					},
				},
				Tools: []model.ToolRef{
					{ID: "http", Name: "HTTP Client", Type: "http"},
				},
				Skills: []model.SkillRef{
					{ID: "git-operations", Name: "Git Operations", Version: "1.0.0", Category: "github", Tags: []string{"git"}},
					{ID: "pr-management", Name: "PR Management", Version: "1.0.0", Category: "github", Tags: []string{"pr"}},
				},
				Limits: model.Limits{
					MaxConcurrentTasks: 1,
					MaxTokensPerDay:    200_000,
					MaxExecutionTimeMs: 120_000,
					MaxMemoryMB:        128,
				},
			}),
	}
}
