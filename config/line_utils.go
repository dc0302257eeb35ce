package config

import "strings"

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func skipWhitespace(data []byte) int {
	i := 0
	for i < len(data) && isSpace(data[i]) {
		i++
	}
	return i
}

func isComment(data []byte) bool {
	i := skipWhitespace(data)
	return i < len(data) && data[i] == '#'
}

// parseLine splits a line into its commands.
func parseLine(data []byte) ([]Command, error) {
	var (
		commands []Command
		words    []string
	)
	flush := func() {
		if len(words) > 0 {
			commands = append(commands, Command{Name: words[0], Args: words[1:]})
		}
		words = nil
	}

	i := 0
	for i < len(data) {
		i += skipWhitespace(data[i:])
		if i >= len(data) {
			break
		}

		switch c := data[i]; c {
		case '#':
			flush()
			return commands, nil
		case ';':
			flush()
			i++
		case '"':
			var sb strings.Builder
			j := i + 1
			for ; j < len(data) && data[j] != '"'; j++ {
				if data[j] == '\\' && j+1 < len(data) && (data[j+1] == '"' || data[j+1] == '\\') {
					j++
				}
				sb.WriteByte(data[j])
			}
			if j >= len(data) {
				return nil, ErrUnterminated
			}
			words = append(words, sb.String())
			i = j + 1
		default:
			j := i
			for j < len(data) && !isSpace(data[j]) && data[j] != ';' && data[j] != '"' && data[j] != '#' {
				j++
			}
			words = append(words, string(data[i:j]))
			i = j
		}
	}
	flush()
	return commands, nil
}
