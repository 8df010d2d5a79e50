package ai

import (
	"fmt"
	"strings"

	"github.com/tbourn/go-interview-backend/internal/domain"
	"github.com/tbourn/go-interview-backend/internal/interview"
)

func questionsPrompt(resumeText string) string {
	return `Based on the following resume, generate 6 technical interview questions for a Full Stack (React/Node) developer role.

Resume:
` + resumeText + `

Generate exactly 6 questions following this pattern:
- 2 Easy questions (20 seconds each)
- 2 Medium questions (60 seconds each)
- 2 Hard questions (120 seconds each)

Return the questions in JSON format as an array with this structure:
[
  {
    "question": "question text here",
    "difficulty": "Easy|Medium|Hard"
  }
]

Focus on React, Node.js, JavaScript, TypeScript, databases, and full-stack concepts. Make questions specific and practical.`
}

func evaluatePrompt(question, answer string, difficulty domain.Difficulty) string {
	return fmt.Sprintf(`Evaluate this interview answer on a scale of 0-10.

Question (%s): %s
Answer: %s

Provide a JSON response with:
{
  "score": <number 0-10>,
  "feedback": "<brief feedback in one sentence>"
}`, difficulty, question, answer)
}

func summaryPrompt(name string, answers []domain.QuestionAnswer) string {
	blocks := make([]string, len(answers))
	for i, qa := range answers {
		blocks[i] = fmt.Sprintf("Q%d (%s): %s\nA: %s\nScore: %s/10",
			i+1, qa.Difficulty, qa.Question, qa.Answer, interview.FormatScore(qa.Score))
	}
	return fmt.Sprintf(`Create a brief interview summary (2-3 sentences) for candidate %s based on their performance:

%s

Provide a concise professional summary of their strengths and areas for improvement.`, name, strings.Join(blocks, "\n\n"))
}

func profilePrompt(resumeText string) string {
	return `Based on the following resume text, create a concise professional profile description (2-4 sentences) highlighting the candidate's key skills, experience, and expertise. Focus on their technical background and qualifications.

Resume:
` + resumeText + `

Provide only the profile description without any additional commentary.`
}
