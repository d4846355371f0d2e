package extract

import (
	"fmt"
	"strings"

	"mailminer/core/domain"
)

const extractionPromptTemplate = `You are a specialized task extraction system. Your sole purpose is to identify action items from emails and format them as structured tasks. Analyze the following email:

<email>
From: %s
To: %s
Subject: %s
Date: %s

%s
</email>

## TASK EXTRACTION RULES
1. Extract ONLY explicit tasks where:
   - Someone is clearly expected to do something
   - A deadline is mentioned or can be inferred
2. For relative deadlines (tomorrow, next week, in 3 days), calculate the actual date using the email date (%s)
3. For incomplete dates (like "March 10" without year), assume the current or next occurrence
4. Use the same language as the email for descriptions
5. Return ONLY the JSON object, no additional text
6. Empty fields use "" for strings, [] for arrays
7. If no valid tasks found, return {"action_items": []}

## OUTPUT FORMAT
Return only a clean JSON object with this structure:
{
  "action_items": [
    {
      "type": "task|meeting|deadline|decision|information",
      "description": "Brief, actionable description",
      "due_date": "YYYY-MM-DD[THH:MM:SS]",
      "owners": ["name or email of who must act"],
      "waiters": ["name or email of who waits on the result"],
      "confidence": 0.0-1.0
    }
  ]
}

## CONFIDENCE SCORING
- 0.9-1.0: Explicit task with clear deadline and owner
- 0.7-0.8: Clear task but some details inferred
- 0.5-0.6: Task exists but significant details missing
- Below 0.5: Potential task but highly uncertain

## EXAMPLE
Email: "Hi team, please complete the Q3 report by next Friday. John needs to submit financial data by Wednesday."

Output:
{
  "action_items": [
    {
      "type": "task",
      "description": "Complete Q3 report",
      "due_date": "2025-05-30",
      "owners": [],
      "waiters": [],
      "confidence": 0.8
    },
    {
      "type": "task",
      "description": "Submit financial data",
      "due_date": "2025-05-28",
      "owners": ["John"],
      "waiters": [],
      "confidence": 0.9
    }
  ]
}`

// BuildPrompt renders the extraction prompt for one email. The email
// date appears both in the header and in the relative-deadline rule so
// the model anchors "tomorrow" and "Friday" to the email, not to now.
func BuildPrompt(email *domain.EmailRecord) string {
	recipients := make([]string, 0, len(email.Recipients))
	for _, r := range email.Recipients {
		recipients = append(recipients, r.String())
	}
	emailDate := email.Timestamp.Format("2006-01-02")

	return fmt.Sprintf(extractionPromptTemplate,
		email.Sender.String(),
		strings.Join(recipients, ", "),
		email.Subject,
		emailDate,
		email.CleanedContent,
		emailDate,
	)
}
