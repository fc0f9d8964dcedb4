package assistant

import (
	"strings"
)

const (
	identityPrompt = "You are REE (Research, Explain, Elevate), the user's study, project, and exam companion. " +
		"You must follow the selected mode rules strictly."

	studyModePrompt = "Mode: STUDY. Behave Socratically: ask guiding questions, explain step-by-step, " +
		"and break content into small chunks."

	generalModePrompt = "Mode: GENERAL. Provide direct answers with simple explanations. " +
		"Ask a brief follow-up question if needed."

	notesModePrompt = "Mode: STUDY (Notes Integration). " +
		"Work only with the provided note. Be concise and helpful."

	projectTemplate = "Use ONLY the Standard ZIMSEC Project Framework and report structure. " +
		"Include all mandatory stages and headings.\n" +
		"Mandatory stages (include in order with typical marks):\n" +
		"1) Problem Identification (5 marks)\n" +
		"2) Investigation of Ideas (10 marks)\n" +
		"3) Generation of Ideas (10 marks)\n" +
		"4) Development/Refinement (10 marks)\n" +
		"5) Presentation of Results (10 marks)\n" +
		"6) Evaluation & Recommendations (5 marks)\n" +
		"General report structure (use these formal headings):\n" +
		"Title Page\n" +
		"Table of Contents\n" +
		"Introduction\n" +
		"Research Methodology\n" +
		"Findings & Analysis\n" +
		"Appendices"

	projectFormattingRules = "Formatting rules (Project Mode only): A4 paper, Times New Roman, font size 12, " +
		"line spacing 1.5, margins: left 1.5\", right 1\", top 1\", bottom 1\"."

	originalityRules = "Originality and safety rules: Never copy content directly. Rewrite everything originally. " +
		"Localize examples. Avoid plagiarism. Match ZIMSEC expectations."

	guidedProjectInstruction = "Guided Project Mode: ask step-by-step questions to build the project. " +
		"Ask for subject, topic, and school level if missing. " +
		"Build each section with the student."

	fastProjectInstruction = "Fast Project Mode: generate a complete project using the ZIMSEC template. " +
		"If the user says 'do everything' or topic is missing, choose a suitable topic yourself. " +
		"Use subject-specific rules. Localize examples. Examiner-safe language."

	noProjectContext = "No extra context provided."

	// ProjectRedirectAnswer is returned by general mode for questions that belong in project mode.
	ProjectRedirectAnswer = "This looks like a project request. Please switch to Project Mode so I can use the " +
		"ZIMSEC template and subject-specific rules."
)

const (
	ProjectModeGuided = "guided"
	ProjectModeFast   = "fast"
)

var studyTaskDirectives = map[string]string{
	"summarize": "Summarize the following notes clearly and concisely.",
	"explain":   "Explain the notes in simple, understandable terms.",
	"quiz":      "Create a quiz with questions and answers from these notes.",
	"simplify":  "Simplify the topic into very easy language.",
}

var noteActionDirectives = map[string]string{
	"summarize":      "Summarize the notes concisely.",
	"explain":        "Explain the notes in simple, understandable terms.",
	"understandable": "Rewrite the notes to make them very easy to understand.",
	"questions":      "Turn the notes into study questions with short answers.",
}

var projectKeywords = []string{"project", "zimsec", "proposal", "title page", "abstract", "literature review", "methodology"}

// IsProjectRequest reports whether free-form text asks for project work.
func IsProjectRequest(text string) bool {
	if text == "" {
		return false
	}
	lowered := strings.ToLower(text)
	for _, keyword := range projectKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

func joinPrompt(parts ...string) string {
	return strings.Join(parts, " ")
}

func studySystemPrompt(task string) string {
	prompt := joinPrompt(identityPrompt, studyModePrompt)
	if directive, ok := studyTaskDirectives[task]; ok {
		prompt += " " + directive
	}
	return prompt
}

func generalSystemPrompt() string {
	return joinPrompt(identityPrompt, generalModePrompt)
}

func notesSystemPrompt(action string) string {
	prompt := joinPrompt(identityPrompt, notesModePrompt)
	if directive, ok := noteActionDirectives[action]; ok {
		prompt += " " + directive
	}
	return prompt
}

func projectSystemPrompt(subject string) string {
	return joinPrompt(
		identityPrompt,
		"Mode: PROJECT (ZIMSEC).",
		projectTemplate,
		projectFormattingRules,
		originalityRules,
		projectSubjectRules(subject),
	)
}

func projectInstruction(mode string) string {
	if mode == ProjectModeGuided {
		return guidedProjectInstruction
	}
	return fastProjectInstruction
}

func projectSubjectRules(subject string) string {
	lowered := strings.ToLower(subject)
	switch {
	case strings.Contains(lowered, "science"):
		return "Science/Geography: expand Research Methodology and Findings & Analysis with clear " +
			"environmental or experimental evidence. Use the 6 stages."
	case strings.Contains(lowered, "math"):
		return "Mathematics: include relevant calculations, formulas, and worked examples tied to " +
			"real-life data (profits, surveys, measurements, modeling)."
	case strings.Contains(lowered, "computer"), strings.Contains(lowered, "ict"):
		return "Computer Science/ICT (4021): include system analysis approach with Section A " +
			"(Investigation), Section B (Design), Section C (Development), and Section D " +
			"(Testing/Evaluation)."
	case strings.Contains(lowered, "english"), strings.Contains(lowered, "shona"):
		return "Languages: focus on communication strategies, literacy improvements, or cultural " +
			"preservation as appropriate."
	case strings.Contains(lowered, "heritage"):
		return "Include local history, culture, traditions, and community knowledge."
	default:
		return ""
	}
}

func projectContext(projectName, subject, level, details string) string {
	var lines []string
	if projectName != "" {
		lines = append(lines, "Project topic: "+projectName)
	}
	if subject != "" {
		lines = append(lines, "Subject: "+subject)
	}
	if level != "" {
		lines = append(lines, "School level: "+level)
	}
	if details != "" {
		lines = append(lines, "Additional info: "+details)
	}
	if len(lines) == 0 {
		return noProjectContext
	}
	return strings.Join(lines, "\n")
}
