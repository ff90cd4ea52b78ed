package gateway

import (
	"fmt"

	"github.com/finoramarket/ai-gateway/internal/gemini"
)

// Generation settings per operation class. Analysis wants deterministic
// structured output; chat wants short conversational replies.
var (
	chatGenConfig = gemini.GenerationConfig{
		Temperature:     0.8,
		MaxOutputTokens: 250,
	}
	analysisGenConfig = gemini.GenerationConfig{
		Temperature:     0.3,
		MaxOutputTokens: 1000,
	}
)

// chatPrompt wraps the user's question in the assistant's fixed framing.
func chatPrompt(message string) string {
	return fmt.Sprintf(`Siz Finora Markent AI yordamchisiz. Har doim "hurmatli foydalanuvchi" deb murojaat qiling. Faqat o'zbek tilida javob bering.

Savol: %s

Qisqa javob bering (2-3 gap).`, message)
}

// analysisPrompt builds the listing-quality prompt. The model is told to
// answer with a bare JSON object; the recovery parser deals with how well
// it listens.
func analysisPrompt(l Listing) string {
	return fmt.Sprintf(`Siz Parkent Finora Markent platformasining rasmiy AI yordamchisiz. O'zingizni "Finora Markent AI" deb tanishtiring va har doim hurmatli murojaat qiling.

MA'LUMOTLAR:
- Sarlavha: %s
- Tavsif: %s
- Kategoriya: %s
- Narx: %.0f so'm
- Shahar: %s

VAZIFALAR:
1. E'lon sifatini 0 dan 10 gacha baholang (10 - eng yuqori sifat)
2. Qisqa tahlil yozing (150-200 so'z ichida)
3. Kalit so'zlarni ajratib oling (5-8 ta kalit so'z)

BAHOLASH MEZONLARI:
- Tavsifning batafsilligi va aniqligi
- Narxning mosligi
- Sarlavhaning jalb qiluvchanligi
- Kategoriyaga to'g'ri kelishi
- Umumiy sifat

JAVOB FORMATI (faqat JSON formatida, hech qanday qo'shimcha matn siz):
{
  "score": 7.5,
  "analysis": "Tahlil matni shu yerda bo'ladi...",
  "keywords": ["kalit", "so'zlar", "shu", "yerda"]
}`, l.Title, l.Description, l.Category, l.Price, l.City)
}
