// Package triggers — detectors.go определяет, похоже ли сообщение
// на смех, благодарность или упоминание.
package triggers

import "strings"

// laughMarkers — подстроки, по которым узнаём смех.
var laughMarkers = []string{"ахах", "хаха", "лол", "lol", "lmao", "кек", "kek"}

// IsLaugh проверяет, является ли текст смехом.
// Регистр не важен. Три и больше скобок подряд тоже считаются.
func IsLaugh(text string) bool {
	cleaned := strings.ToLower(strings.TrimSpace(text))
	if cleaned == "" {
		return false
	}
	for _, m := range laughMarkers {
		if strings.Contains(cleaned, m) {
			return true
		}
	}
	return strings.Count(cleaned, ")") >= 3 && strings.Trim(cleaned, ")") == ""
}

// kudosPrefixes — слова, с которых начинается благодарность.
var kudosPrefixes = []string{"спасибо", "благодарю", "+rep", "респект"}

// ParseKudos разбирает благодарность вида «спасибо @username».
// Возвращает имя цели без @ и признак, что это вообще благодарность.
func ParseKudos(text string) (string, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) < 2 {
		return "", false
	}

	first := strings.ToLower(strings.TrimRight(fields[0], "!.,"))
	match := false
	for _, p := range kudosPrefixes {
		if first == p {
			match = true
			break
		}
	}
	if !match {
		return "", false
	}

	target := strings.TrimPrefix(fields[1], "@")
	target = strings.TrimRight(target, "!.,")
	if target == "" {
		return "", false
	}
	return target, true
}

// ParseMention находит первое упоминание @username в тексте.
func ParseMention(text string) (string, bool) {
	for _, f := range strings.Fields(text) {
		if strings.HasPrefix(f, "@") && len(f) > 1 {
			target := strings.TrimRight(strings.TrimPrefix(f, "@"), "!.,:")
			if target != "" {
				return target, true
			}
		}
	}
	return "", false
}
