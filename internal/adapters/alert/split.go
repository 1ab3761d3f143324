package alert

import "strings"

// Лимит Telegram на длину одного сообщения.
const tgMessageLimit = 4096

// splitMessage режет текст оповещения на куски в пределах лимита,
// предпочитая границы строк, чтобы блоки payload не рвались посередине.
func splitMessage(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= tgMessageLimit {
		return []string{trimmed}
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := start + tgMessageLimit
		if end >= len(runes) {
			if chunk := strings.Trim(string(runes[start:]), "\n"); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		cut := -1
		for i := end; i > start; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		if cut == -1 {
			cut = end
		}

		if chunk := strings.Trim(string(runes[start:cut]), "\n"); chunk != "" {
			chunks = append(chunks, chunk)
		}

		start = cut
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}

	if len(chunks) == 0 {
		return []string{trimmed}
	}

	return chunks
}
