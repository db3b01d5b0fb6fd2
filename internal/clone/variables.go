package clone

import "regexp"

// variablePattern matches {{variable}} placeholders
var variablePattern = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)

// SubstituteVariables replaces {{variable}} with values from vars.
// Unknown variables are left unchanged.
func SubstituteVariables(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return text
	}
	return variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		if val, ok := vars[match[2:len(match)-2]]; ok {
			return val
		}
		return match
	})
}

// ExtractVariables returns the distinct {{variable}} names in texts, in order
// of first occurrence.
func ExtractVariables(texts ...string) []string {
	seen := make(map[string]bool)
	var vars []string
	for _, text := range texts {
		for _, m := range variablePattern.FindAllStringSubmatch(text, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				vars = append(vars, m[1])
			}
		}
	}
	return vars
}
