package content

import "fmt"

const lessonSystem = "You are a solutions architect and software engineering professor writing course material."

const quizSystem = "You write multiple choice quizzes for software engineering students. Answer with JSON only."

func lessonPrompt(topic string) string {
	return fmt.Sprintf(`Write a deep, technical and well structured lesson about %q.

Mandatory structure, using these exact tags:
1. <h1>%s</h1> followed by one paragraph on why the topic matters in the industry.
2. <h2>The problem it solves</h2> and a paragraph describing the pain or technical challenge.
3. <h2>Technical explanation</h2> covering the fundamentals, using <strong> for key terms.
4. <h2>Hands-on example</h2> with a commented snippet inside <pre><code></code></pre>.
5. A <div class="tip"> with an <h4>Senior tip</h4> and a paragraph of practical advice.

Rules:
- Return ONLY the inner HTML fragment: no <html>, <head>, <body> or DOCTYPE.
- Do NOT use markdown code fences.
- No greetings or introduction: start directly at the <h1>.`, topic, topic)
}

func quizPrompt(chapterContent string) string {
	return fmt.Sprintf(`Write %d multiple choice questions about the content below.

CONTENT: %q

Rules:
1. Return ONLY a JSON array.
2. Every question has exactly 4 alternatives.
3. Exactly one alternative has "correct": true.
4. Default xp: %d.

Format:
[
  {
    "statement": "Question?",
    "xp": %d,
    "alternatives": [
      {"text": "Option A", "correct": true},
      {"text": "Option B", "correct": false},
      {"text": "Option C", "correct": false},
      {"text": "Option D", "correct": false}
    ]
  }
]`, quizSize, chapterContent, defaultQuestionXP, defaultQuestionXP)
}
