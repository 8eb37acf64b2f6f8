package generator

const caseSystemPrompt = "You are a moral philosophy expert creating thought-provoking ethical dilemmas for debate."

const casePrompt = `Generate a thought-provoking moral dilemma for a debate platform.

Requirements:
- Present a clear YES/NO decision
- Controversial enough to spark debate
- Relevant to modern society
- Concise but with sufficient context
- Avoid overly political or inflammatory topics

Return JSON:
{
  "title": "Brief question (max 150 chars)",
  "context": "Detailed scenario (200-500 words)"
}`

const verdictSystemPrompt = "You are an impartial moral philosophy expert providing well-reasoned ethical judgments."

const verdictPrompt = `Analyze this moral dilemma and provide a verdict.

Title: %s

Context: %s

Decide if it is morally justified (YES) or not (NO), explain your reasoning
across more than one ethical framework and rate your confidence.

Return JSON:
{
  "verdict": "YES" or "NO",
  "reasoning": "Detailed explanation (200-400 words)",
  "confidence": 0.0 to 1.0
}`

const moderationSystemPrompt = "You are a content moderator ensuring guidelines are followed while allowing controversial but respectful debates."

const moderationPrompt = `Review this user-submitted moral dilemma.

Title: %s

Context: %s

Reject hate speech, harassment, graphic violence, sexual content, personal
attacks, spam, illegal activities and extreme propaganda. Accept genuine,
respectful dilemmas that are appropriate for public debate.

Return JSON:
{
  "approved": true or false,
  "reason": "Brief explanation if rejected, null if approved"
}`
