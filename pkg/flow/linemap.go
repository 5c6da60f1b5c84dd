package flow

import (
	"regexp"
	"strings"
)

var (
	listItemPattern  = regexp.MustCompile(`^(\s*)-\s`)
	bareItemPattern  = regexp.MustCompile(`^(\s*)-\s*$`)
	keyTokenPattern  = regexp.MustCompile(`^\s*-?\s*[\w.$-]+\s*:`)
	stepFieldPattern = regexp.MustCompile(`^\s*(name|flow|file|method|url|script|assert)\s*:`)
)

// lookahead bounds how far past a bare list item we search for a step field
// before giving up on it.
const lookahead = 5

// MapSteps scans flow source text and returns a map from step index to the
// 1-based line number of that step's list item. Indices follow the same
// ordering the executor uses when flattening beforeTest, steps, and
// afterTest, provided the sections appear in that order in the document.
//
// Only lines after the top-level "---" divider are scanned when one is
// present. The indentation of the first list item found defines the
// "top-level step" indentation for the rest of the file; deeper items
// (nested bodies, header lists) are ignored. An item counts as a step if
// its own line carries a key, or one of the next few lines carries a step
// field before a sibling item begins. Both single-line commands and
// multi-line block steps are recognized.
func MapSteps(source string) map[int]int {
	lines := strings.Split(source, "\n")

	start := 0
	for i, line := range lines {
		if strings.TrimSpace(line) == "---" {
			start = i + 1
			break
		}
	}

	stepIndent := -1
	steps := make(map[int]int)
	index := 0

	for i := start; i < len(lines); i++ {
		line := lines[i]
		m := listItemPattern.FindStringSubmatch(line)
		bare := bareItemPattern.MatchString(line)
		if m == nil && !bare {
			continue
		}

		indent := 0
		if m != nil {
			indent = len(m[1])
		} else {
			indent = len(line) - len(strings.TrimLeft(line, " \t"))
		}

		if stepIndent == -1 {
			stepIndent = indent
		}
		if indent != stepIndent {
			continue
		}

		if isStepItem(lines, i, indent) {
			steps[index] = i + 1
			index++
		}
	}

	return steps
}

// isStepItem reports whether the list item at lines[i] looks like a step:
// either its own line already carries a key, or a step field appears within
// the lookahead window before a sibling item at equal-or-lesser indentation.
func isStepItem(lines []string, i, indent int) bool {
	if keyTokenPattern.MatchString(lines[i]) {
		return true
	}

	for j := i + 1; j < len(lines) && j <= i+lookahead; j++ {
		line := lines[j]
		if strings.TrimSpace(line) == "" {
			continue
		}
		if m := listItemPattern.FindStringSubmatch(line); m != nil && len(m[1]) <= indent {
			break
		}
		if stepFieldPattern.MatchString(line) || keyTokenPattern.MatchString(line) {
			return true
		}
	}

	return false
}
