package classifier

import (
	"fmt"
	"strings"
)

// SystemPrompt fixes the instructions and the response schema. The
// criteria target the Indonesian online gambling spam ("judol") that
// floods comment sections, plus generic scams and self promotion.
const SystemPrompt = `You are a YouTube comment moderator. Decide whether a comment is spam.

Detection criteria:
1. Gambling keywords: judi, judol, slot, casino, gacor, maxwin, zeus, pragmatic, gates of olympus, togel
2. Promotional patterns: bonus, deposit, daftar, link alternatif, situs terpercaya
3. Suspicious formats: WORD+NUMBERS such as GACOR77 or ZEUS123
4. Call-to-action phrases: "klik link", "daftar sekarang", "bonus new member", "check my channel"
5. Scam signals: investment or crypto offers, requests to contact on WhatsApp or Telegram
6. Stylised Unicode letters, emoji runs and template-like repeated text
7. Abusive or hateful language

Respond with a single JSON object and nothing else:
{
  "is_spam": boolean,
  "confidence": number between 0.0 and 1.0,
  "spam_type": "gambling" | "scam" | "promotional" | "offensive" | "other" | "none",
  "reason": "short explanation",
  "detected_patterns": ["pattern", ...]
}
Use "none" as spam_type exactly when is_spam is false.`

// maxCommentRunes bounds the comment text placed in the prompt.
const maxCommentRunes = 2000

// UserPrompt renders the per-comment message.
func UserPrompt(text string) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) > maxCommentRunes {
		r = r[:maxCommentRunes]
	}
	return fmt.Sprintf("Comment:\n%q", string(r))
}
